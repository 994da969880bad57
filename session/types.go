package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creastat/sessionstore/events"
)

// Granularity selects how a session's attributes map onto cache entries.
// The zero value is invalid so that an unset granularity is caught at construction.
type Granularity int

const (
	// Coarse stores the whole attribute map in one entry per session.
	Coarse Granularity = iota + 1
	// Fine stores one entry per attribute plus a metadata entry listing the names.
	Fine
)

func (g Granularity) String() string {
	switch g {
	case Coarse:
		return "coarse"
	case Fine:
		return "fine"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// ParseGranularity accepts "coarse"/"session" and "fine"/"attribute", case-insensitively.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "coarse", "session":
		return Coarse, nil
	case "fine", "attribute":
		return Fine, nil
	default:
		return 0, fmt.Errorf("unknown granularity %q", s)
	}
}

// Metadata is the bookkeeping stored alongside every session.
type Metadata struct {
	CreationTime        time.Time
	LastAccessedTime    time.Time
	MaxInactiveInterval time.Duration
}

// IsExpired reports whether the session has been idle longer than its max inactive interval.
// A non-positive interval never expires.
func (m Metadata) IsExpired(now time.Time) bool {
	if m.MaxInactiveInterval <= 0 {
		return false
	}
	return now.Sub(m.LastAccessedTime) > m.MaxInactiveInterval
}

// Publisher receives lifecycle notifications carrying only the session id.
// Publish is called synchronously from repository operations and must not
// block. *events.Broker[string] implements it; delivery is best effort, and a
// subscriber that falls a full buffer behind misses events.
type Publisher interface {
	Publish(eventType events.EventType, id string)
}

// ErrSessionClosed is returned when a Session is used after it was saved.
var ErrSessionClosed = errors.New("session: handle already saved")

// AttributeError reports one attribute that could not be decoded. The rest of
// the session stays usable.
type AttributeError struct {
	Name string
	Err  error
}

func (e *AttributeError) Error() string {
	return fmt.Sprintf("attribute %q: %v", e.Name, e.Err)
}

func (e *AttributeError) Unwrap() error {
	return e.Err
}
