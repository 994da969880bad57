package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/creastat/sessionstore/session"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
uri: redis://cache.internal:6380/2
template: shop
granularity: fine
max_active_sessions: 500
max_inactive_interval: 45m
properties:
  pool_size: 20
  client_name: shop-web
log:
  enabled: true
  level: debug
tracing:
  enabled: true
  exporter: otlp
  sample_rate: 0.25
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "redis://cache.internal:6380/2", cfg.URI)
	require.Equal(t, "shop", cfg.Template)
	require.Equal(t, "fine", cfg.Granularity)
	require.Equal(t, 500, cfg.MaxActiveSessions)
	require.Equal(t, 45*time.Minute, cfg.MaxInactiveInterval)
	require.Equal(t, map[string]string{"pool_size": "20", "client_name": "shop-web"}, cfg.Properties)
	require.True(t, cfg.Log.Enabled)
	require.Equal(t, "debug", cfg.Log.Level)
	require.True(t, cfg.Tracing.Enabled)
	require.Equal(t, "otlp", cfg.Tracing.Exporter)
	require.Equal(t, 0.25, cfg.Tracing.SampleRate)
	require.Equal(t, "localhost:4317", cfg.Tracing.OTLPEndpoint, "unset keys keep defaults")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SESSIONSTORE_GRANULARITY", "attribute")
	t.Setenv("SESSIONSTORE_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "attribute", cfg.Granularity)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, "granularity: medium\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "granularity")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty uri", mutate: func(c *Config) { c.URI = "" }, wantErr: "uri"},
		{name: "bad granularity", mutate: func(c *Config) { c.Granularity = "" }, wantErr: "granularity"},
		{name: "negative interval", mutate: func(c *Config) { c.MaxInactiveInterval = -time.Second }, wantErr: "max_inactive_interval"},
		{name: "bad tracing", mutate: func(c *Config) { c.Tracing.SampleRate = 2 }, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSessionConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Granularity = "fine"
	cfg.Template = "shop"
	cfg.Properties = map[string]string{"pool_size": "4"}

	out, err := cfg.SessionConfig()
	require.NoError(t, err)
	require.Equal(t, session.Fine, out.Granularity)
	require.Equal(t, "shop", out.TemplateName)
	require.Equal(t, "localhost:6379", out.URI.Host)
	require.Equal(t, "4", out.Properties["pool_size"])
	require.Nil(t, out.MaxActiveSessions, "negative limit means unbounded")
	require.NotNil(t, out.MarshallerFactory)
	require.NotNil(t, out.IdentifierFactory)

	cfg.MaxActiveSessions = 0
	out, err = cfg.SessionConfig()
	require.NoError(t, err)
	require.NotNil(t, out.MaxActiveSessions)
	require.Equal(t, 0, *out.MaxActiveSessions)
}

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, Defaults(), cfg)
}
