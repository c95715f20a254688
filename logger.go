package callapi

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger is the minimal structured logging interface the client emits
// through. Keys and values alternate, slog-style.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// slogLogger adapts a *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, keysAndValues ...any) { s.l.Debug(msg, keysAndValues...) }
func (s *slogLogger) Info(msg string, keysAndValues ...any)  { s.l.Info(msg, keysAndValues...) }
func (s *slogLogger) Warn(msg string, keysAndValues ...any)  { s.l.Warn(msg, keysAndValues...) }
func (s *slogLogger) Error(msg string, keysAndValues ...any) { s.l.Error(msg, keysAndValues...) }

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

// NewSimpleLogger returns a text logger on stderr at debug level, suitable
// for development use with WithDebug.
func NewSimpleLogger() Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &slogLogger{l: slog.New(handler)}
}

// DebugConfig controls which lifecycle areas emit debug logs.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogRetries   bool
	LogDedupe    bool
	LogHooks     bool
	LogCache     bool
	RequestIDGen func() string
}

// DefaultDebugConfig enables all areas with UUID request IDs.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogDedupe:    true,
		LogHooks:     true,
		LogCache:     true,
		RequestIDGen: DefaultRequestIDGenerator,
	}
}

// DefaultRequestIDGenerator returns a fresh UUID per logical call.
func DefaultRequestIDGenerator() string {
	return uuid.NewString()
}
