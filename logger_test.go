package callapi

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCaptureLogger() (*bytes.Buffer, Logger) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &buf, NewSlogLogger(slog.New(handler))
}

func TestSlogLoggerLevels(t *testing.T) {
	buf, logger := newCaptureLogger()

	logger.Debug("debug msg", "k", "v")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	out := buf.String()
	for _, want := range []string{"debug msg", "info msg", "warn msg", "error msg", "k=v"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDefaultDebugConfig(t *testing.T) {
	cfg := DefaultDebugConfig()
	if cfg.Enabled {
		t.Error("debug should default to disabled")
	}
	if !cfg.LogRequests || !cfg.LogRetries || !cfg.LogDedupe || !cfg.LogHooks || !cfg.LogCache {
		t.Error("all areas should default to enabled")
	}
	if cfg.RequestIDGen == nil {
		t.Fatal("request ID generator should be set")
	}
	if cfg.RequestIDGen() == cfg.RequestIDGen() {
		t.Error("generated request IDs should be unique")
	}
}

func TestDebugLogRespectsAreas(t *testing.T) {
	buf, logger := newCaptureLogger()

	c := New(
		WithDebugConfig(&DebugConfig{
			Enabled:      true,
			LogRequests:  true,
			LogRetries:   false,
			RequestIDGen: DefaultRequestIDGenerator,
		}),
		WithLogger(logger),
	)

	c.debugLog(c.debug.LogRequests, "request event")
	c.debugLog(c.debug.LogRetries, "retry event")

	out := buf.String()
	if !strings.Contains(out, "request event") {
		t.Error("enabled area should log")
	}
	if strings.Contains(out, "retry event") {
		t.Error("disabled area should not log")
	}
}

func TestDebugLogDisabledByDefault(t *testing.T) {
	buf, logger := newCaptureLogger()
	c := New(WithLogger(logger))

	c.debugLog(c.debug.LogRequests, "should not appear")
	if buf.Len() != 0 {
		t.Errorf("disabled debug should emit nothing, got %q", buf.String())
	}
}
