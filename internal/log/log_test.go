package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: slog.LevelDebug, Component: component, Output: &buf}), &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	l, buf := newBufferLogger(ComponentApp)
	l.WithComponent(ComponentAuth).Info("hello")

	out := buf.String()
	if strings.Count(out, "component=") != 1 || !strings.Contains(out, "component=auth") {
		t.Fatalf("expected a single auth component, got %q", out)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	base, buf := newBufferLogger(ComponentHTTP)
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-42" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			FromContext(r.Context()).InfoContext(r.Context(), "inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Fatalf("request id missing from %q", buf.String())
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected fallback logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	l, buf := newBufferLogger(ComponentHTTP)
	sl := NewStructuredLogger(l)
	r := httptest.NewRequest(http.MethodPost, "/expenses", nil)

	sl.LogHTTPEnd(context.Background(), r, 503, 12, "1.2.3.4")
	sl.LogError(context.Background(), "boom", errors.New("db down"), ComponentStorage, OpCreate, nil)
	sl.LogExpenseCreated(context.Background(), "u1", "e1", "Lunch", "250.5", "Food & Dining", "upi")

	out := buf.String()
	for _, want := range []string{"level=ERROR", "status_code=503", "error=\"db down\"", "user_id=u1", "amount=250.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}
