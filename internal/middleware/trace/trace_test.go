package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	applog "receipts/internal/log"
)

func TestMiddlewareAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Level: slog.LevelDebug, Component: applog.ComponentHTTP, Output: &buf})
	m := NewMiddleware(func(*http.Request) string { return "198.51.100.1" }, logger)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/projects", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a uuid", seen)
	}
	if rr.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("response header = %q, want %q", rr.Header().Get(HeaderRequestID), seen)
	}
	out := buf.String()
	for _, want := range []string{"status_code=201", "client_ip=198.51.100.1", "path=/api/projects"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
	if m.Metrics().TotalRequests != 1 {
		t.Errorf("TotalRequests = %d", m.Metrics().TotalRequests)
	}
}

func TestMiddlewareKeepsValidIncomingID(t *testing.T) {
	m := NewMiddleware(nil, applog.New(applog.Config{Output: &bytes.Buffer{}}))
	id := uuid.NewString()

	var seen string
	h := m.Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, id)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen != id {
		t.Fatalf("request id = %q, want %q", seen, id)
	}

	r = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set(HeaderRequestID, "not-a-uuid<script>")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if seen == "not-a-uuid<script>" {
		t.Fatal("untrusted request id reused")
	}
}
