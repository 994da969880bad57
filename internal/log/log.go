// Package log provides category-scoped structured logging for the session store.
// Logging is off until Init or InitFile is called.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category groups related log messages.
type Category string

const (
	CatCache    Category = "cache"    // remote cache calls
	CatCodec    Category = "codec"    // marshalling and entry framing
	CatSession  Category = "session"  // repository lifecycle
	CatCapacity Category = "capacity" // max-active-sessions eviction
	CatConfig   Category = "config"   // configuration loading
	CatEvents   Category = "events"   // lifecycle event delivery
)

// Logger writes leveled records through a slog text handler.
type Logger struct {
	mu       sync.Mutex
	logger   *slog.Logger
	closer   io.Closer
	enabled  bool
	minLevel Level
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Init routes log records at or above minLevel to w.
func Init(w io.Writer, minLevel Level) {
	setDefault(newLogger(w, nil, minLevel))
}

// InitFile appends log records to path and returns a cleanup function closing it.
func InitFile(path string, minLevel Level) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: operator-supplied log path
	if err != nil {
		return nil, err
	}
	l := newLogger(f, f, minLevel)
	setDefault(l)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.enabled = false
		_ = l.closer.Close()
	}, nil
}

func newLogger(w io.Writer, closer io.Closer, minLevel Level) *Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{
		logger:   slog.New(handler),
		closer:   closer,
		enabled:  true,
		minLevel: minLevel,
	}
}

func setDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel {
		return
	}

	args := make([]any, 0, len(fields)+2)
	args = append(args, "category", string(cat))
	args = append(args, fields...)
	l.logger.Log(context.Background(), level.slog(), msg, args...)
}
