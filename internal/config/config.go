// Package config loads sessionstore settings from YAML files and the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/creastat/sessionstore/internal/log"
	"github.com/creastat/sessionstore/internal/tracing"
	"github.com/creastat/sessionstore/session"
)

// EnvPrefix prefixes environment overrides, e.g. SESSIONSTORE_GRANULARITY.
const EnvPrefix = "SESSIONSTORE"

// Config holds all configuration options for a session repository.
type Config struct {
	// URI of the remote cache, e.g. redis://localhost:6379/0.
	URI string `mapstructure:"uri" yaml:"uri"`

	// Properties are passed to the cache driver (pool_size, cluster_addrs, ...).
	Properties map[string]string `mapstructure:"properties" yaml:"properties"`

	// Template namespaces keys, so several applications can share a cache.
	Template string `mapstructure:"template" yaml:"template"`

	// Granularity is "coarse" (default) or "fine".
	Granularity string `mapstructure:"granularity" yaml:"granularity"`

	// MaxActiveSessions bounds locally tracked sessions. Negative means unbounded.
	MaxActiveSessions int `mapstructure:"max_active_sessions" yaml:"max_active_sessions"`

	MaxInactiveInterval time.Duration `mapstructure:"max_inactive_interval" yaml:"max_inactive_interval"`

	Log     LogConfig      `mapstructure:"log" yaml:"log"`
	Tracing tracing.Config `mapstructure:"tracing" yaml:"tracing"`
}

// LogConfig controls the category logger.
type LogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Level   string `mapstructure:"level" yaml:"level"`
	// File receives log output instead of stderr when set.
	File string `mapstructure:"file" yaml:"file"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		URI:                 "redis://localhost:6379/0",
		Properties:          map[string]string{},
		Template:            session.DefaultTemplateName,
		Granularity:         session.Coarse.String(),
		MaxActiveSessions:   -1,
		MaxInactiveInterval: session.DefaultMaxInactiveInterval,
		Log: LogConfig{
			Level: "info",
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads path (if not empty) over the defaults, then applies environment
// overrides. A missing explicit file is an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			log.ErrorErr(log.CatConfig, "Failed to read config", err, "path", path)
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		log.Debug(log.CatConfig, "Loaded config", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Properties == nil {
		cfg.Properties = map[string]string{}
	}
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("uri", d.URI)
	v.SetDefault("properties", d.Properties)
	v.SetDefault("template", d.Template)
	v.SetDefault("granularity", d.Granularity)
	v.SetDefault("max_active_sessions", d.MaxActiveSessions)
	v.SetDefault("max_inactive_interval", d.MaxInactiveInterval)
	v.SetDefault("log.enabled", d.Log.Enabled)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Validate checks the settings that can be checked without connecting.
func (c Config) Validate() error {
	if c.URI == "" {
		return errors.New("uri is required")
	}
	if _, err := url.Parse(c.URI); err != nil {
		return fmt.Errorf("uri: %w", err)
	}
	if _, err := session.ParseGranularity(c.Granularity); err != nil {
		return fmt.Errorf("granularity: %w", err)
	}
	if c.MaxInactiveInterval < 0 {
		return fmt.Errorf("max_inactive_interval must not be negative, got %s", c.MaxInactiveInterval)
	}
	if err := c.Tracing.Validate(); err != nil {
		return err
	}
	return nil
}

// SessionConfig converts c into a session.Config with the stock marshaller
// and identifier factory. A negative max_active_sessions becomes unbounded.
func (c Config) SessionConfig() (session.Config, error) {
	if err := c.Validate(); err != nil {
		return session.Config{}, err
	}

	uri, err := url.Parse(c.URI)
	if err != nil {
		return session.Config{}, fmt.Errorf("uri: %w", err)
	}
	granularity, err := session.ParseGranularity(c.Granularity)
	if err != nil {
		return session.Config{}, fmt.Errorf("granularity: %w", err)
	}

	out := session.DefaultConfig()
	out.URI = uri
	out.Granularity = granularity
	out.MaxInactiveInterval = c.MaxInactiveInterval
	if c.Template != "" {
		out.TemplateName = c.Template
	}
	for k, v := range c.Properties {
		out.Properties[k] = v
	}
	if c.MaxActiveSessions >= 0 {
		out.MaxActiveSessions = session.IntPtr(c.MaxActiveSessions)
	}
	return out, nil
}

// WriteDefault writes the default configuration to path as YAML.
// Creates the parent directory if it doesn't exist.
func WriteDefault(path string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", path)

	data, err := yaml.Marshal(Defaults())
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "path", path)
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", path)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", path)
	return nil
}
