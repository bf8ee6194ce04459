// Package trace tags each request with an id and logs its completion.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "receipts/internal/log"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// HeaderRequestID carries the request id in and out.
const HeaderRequestID = "X-Request-ID"

type Middleware struct {
	extractIP func(*http.Request) string
	logger    *applog.Logger

	total   int64
	lastDur int64 // microseconds
}

// Metrics are request counters since start.
type Metrics struct {
	TotalRequests    int64
	LastResponseTime time.Duration
}

func NewMiddleware(extractIP func(*http.Request) string, logger *applog.Logger) *Middleware {
	return &Middleware{
		extractIP: extractIP,
		logger:    logger,
	}
}

// Middleware reuses an incoming X-Request-ID or mints one, echoes it on the
// response and puts a logger carrying it in the request context.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		reqLogger := m.logger.With(applog.FieldRequestID, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		ctx = applog.NewContext(ctx, reqLogger)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		d := time.Since(start)
		atomic.AddInt64(&m.total, 1)
		atomic.StoreInt64(&m.lastDur, d.Microseconds())

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}
		applog.NewStructuredLogger(reqLogger).LogHTTPEnd(ctx, r, rw.statusCode, d.Milliseconds(), clientIP)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestID returns the id of the request ctx belongs to, "" outside one.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (m *Middleware) Metrics() Metrics {
	return Metrics{
		TotalRequests:    atomic.LoadInt64(&m.total),
		LastResponseTime: time.Duration(atomic.LoadInt64(&m.lastDur)) * time.Microsecond,
	}
}
