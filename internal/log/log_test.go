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

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{Level: slog.LevelDebug, Component: component, Output: buf})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, ComponentLedger)
	l.Info("hello")
	if !strings.Contains(buf.String(), "component=ledger") {
		t.Fatalf("missing component: %s", buf.String())
	}

	buf.Reset()
	l.WithComponent(ComponentHTTP).Info("again")
	if !strings.Contains(buf.String(), "component=http") {
		t.Fatalf("missing retagged component: %s", buf.String())
	}
}

func TestFieldsToSliceIsSorted(t *testing.T) {
	got := NewFields().WithUID("u").WithError(errors.New("boom")).WithOperation(OpDelete).ToSlice()
	want := []any{FieldError, "boom", FieldOperation, OpDelete, FieldUID, "u"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestComponentMiddleware(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf, ComponentApp)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).InfoContext(r.Context(), "inside")
	})
	chain := ComponentMiddleware(ComponentHTTP)(h)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(NewContext(r.Context(), base.With(FieldRequestID, "req-1")))
	chain.ServeHTTP(httptest.NewRecorder(), r)
	out := buf.String()
	for _, want := range []string{"request_id=req-1", "component=http", "msg=inside"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Fatalf("component = %s", l.Component())
	}
}

func TestLogHTTPEndLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))
	r := httptest.NewRequest(http.MethodGet, "/api/entries?kind=receipt", nil)

	sl.LogHTTPEnd(context.Background(), r, 503, 12, "10.0.0.1")
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "success=false") {
		t.Fatalf("unexpected log: %s", buf.String())
	}
	buf.Reset()
	sl.LogHTTPEnd(context.Background(), r, 404, 1, "10.0.0.1")
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Fatalf("unexpected log: %s", buf.String())
	}
}
