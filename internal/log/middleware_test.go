package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferedLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: component,
		Handler: slog.NewTextHandler(&buf, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}),
	})
	return logger, &buf
}

func TestContextRoundTrip(t *testing.T) {
	logger, _ := newBufferedLogger(ComponentHTTP)
	tagged := logger.With(FieldRequestID, "req_abc")

	ctx := NewContext(context.Background(), tagged)
	if got := FromContext(ctx); got != tagged {
		t.Error("FromContext returned a different logger than NewContext stored")
	}
}

func TestFromContextFallback(t *testing.T) {
	got := FromContext(context.Background())
	if got == nil || got.Logger == nil {
		t.Fatal("FromContext without a stored logger must fall back, not return nil")
	}
	if got.component != ComponentApp {
		t.Errorf("fallback component = %q, want %q", got.component, ComponentApp)
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	logger, buf := newBufferedLogger(ComponentBilling)
	logger.Info("Plan created", FieldPlanID, "abc")

	out := buf.String()
	if !strings.Contains(out, "component="+ComponentBilling) {
		t.Errorf("output missing component tag: %s", out)
	}
	if !strings.Contains(out, "plan_id=abc") {
		t.Errorf("output missing attribute: %s", out)
	}
}

func TestLogErrorFields(t *testing.T) {
	logger, buf := newBufferedLogger(ComponentHTTP)
	sl := NewStructuredLogger(logger)

	sl.LogError(context.Background(), "Request failed", errors.New("db down"),
		ComponentHTTP, "GET /cards/1/bills", NewFields())

	out := buf.String()
	for _, want := range []string{
		"level=ERROR",
		"Request failed",
		`error="db down"`,
		`operation="GET /cards/1/bills"`,
		"component=" + ComponentHTTP,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "level=INFO"},
		{404, "level=WARN"},
		{500, "level=ERROR"},
	}
	for _, tt := range tests {
		logger, buf := newBufferedLogger(ComponentHTTP)
		sl := NewStructuredLogger(logger)
		r := httptest.NewRequest("GET", "/healthz", nil)

		sl.LogHTTPEnd(context.Background(), r, tt.status, 3, "10.0.0.1")

		if out := buf.String(); !strings.Contains(out, tt.level) {
			t.Errorf("status %d logged without %s: %s", tt.status, tt.level, out)
		}
	}
}
