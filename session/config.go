package session

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/creastat/sessionstore"
	"github.com/creastat/sessionstore/marshal"
)

const (
	// DefaultTemplateName namespaces cache keys when no template is configured.
	DefaultTemplateName = "dist-sync"
	// DefaultMaxInactiveInterval applies when Config leaves it zero.
	DefaultMaxInactiveInterval = 30 * time.Minute
)

// Config holds everything a Repository needs. It is validated once by
// NewRepository; invalid settings are configuration errors.
type Config struct {
	// URI is the remote cache endpoint, used by Dial.
	URI *url.URL

	// Properties are driver connection properties, used by Dial.
	Properties map[string]string

	// TemplateName namespaces this repository's keys in the remote cache.
	TemplateName string

	// MaxActiveSessions bounds the sessions tracked by this repository.
	// Nil means unbounded. Negative values are rejected.
	MaxActiveSessions *int

	// Granularity must be Coarse or Fine, and must match what the cache already holds.
	Granularity Granularity

	// MarshallerFactory builds the attribute codec for Types. Required.
	MarshallerFactory marshal.Factory

	// IdentifierFactory generates session ids. Defaults to random UUIDs.
	IdentifierFactory func() string

	// Types is the type context attribute values are resolved against.
	Types *marshal.Context

	// MaxInactiveInterval is the idle timeout given to new sessions.
	MaxInactiveInterval time.Duration

	// Tracer, if set, wraps the cache opened by Dial in spans.
	Tracer trace.Tracer

	// Clock overrides time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the settings used when nothing is configured:
// coarse granularity, the default marshaller and random UUID identifiers.
func DefaultConfig() Config {
	return Config{
		Properties:          map[string]string{},
		TemplateName:        DefaultTemplateName,
		Granularity:         Coarse,
		MarshallerFactory:   marshal.Default,
		IdentifierFactory:   uuid.NewString,
		MaxInactiveInterval: DefaultMaxInactiveInterval,
	}
}

// IntPtr is a convenience for MaxActiveSessions.
func IntPtr(n int) *int {
	return &n
}

func (c Config) validate() error {
	switch c.Granularity {
	case Coarse, Fine:
	default:
		return fmt.Errorf("%w: granularity is required", sessionstore.ErrConfiguration)
	}
	if c.MarshallerFactory == nil {
		return fmt.Errorf("%w: marshaller factory is required", sessionstore.ErrConfiguration)
	}
	if c.MaxActiveSessions != nil && *c.MaxActiveSessions < 0 {
		return fmt.Errorf("%w: max active sessions must not be negative", sessionstore.ErrConfiguration)
	}
	if c.MaxInactiveInterval < 0 {
		return fmt.Errorf("%w: max inactive interval must not be negative", sessionstore.ErrConfiguration)
	}
	return nil
}
