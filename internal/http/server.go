// Package http exposes the receipts ledger as a JSON API: sign-in, projects,
// entries, the calendar views, receipt PDFs and hosted images.
//
// The process serves one signed-in user at a time. Sign-up and sign-in hand
// the caller a session token, both in the response body and as an HttpOnly
// cookie; every other /api route requires the most recently issued token,
// sent as a Bearer header or the cookie. A new sign-in revokes the previous
// token.
package http

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"receipts/internal/core"
	"receipts/internal/identity"
	"receipts/internal/imagehost"
	"receipts/internal/ledger"
	applog "receipts/internal/log"
	"receipts/internal/middleware/ratelimit"
	"receipts/internal/middleware/security"
	"receipts/internal/middleware/trace"
	"receipts/internal/session"
)

const (
	// maxBodyBytes covers a project or entry with its base64 photos.
	maxBodyBytes = 25 << 20

	thumbWidth  = 400
	thumbHeight = 400
)

type (
	// Auth is the account side of the API.
	Auth interface {
		SignUp(ctx context.Context, email, password string) (identity.User, error)
		SignIn(ctx context.Context, email, password string) (identity.User, error)
		SignOut(ctx context.Context) error
		Current() (identity.User, bool)
	}

	// Ledger applies edits for the signed-in user.
	Ledger interface {
		SaveProject(ctx context.Context, d ledger.ProjectDraft) (string, error)
		DeleteProject(ctx context.Context, id string) error
		SaveEntry(ctx context.Context, d ledger.EntryDraft) (string, error)
		DeleteEntry(ctx context.Context, id string) error
	}

	// Exporter renders a project's receipts PDF.
	Exporter interface {
		ProjectReceipts(ctx context.Context, w io.Writer, p core.Project, entries []core.Entry) (int, error)
	}
)

// Deps are the collaborators the server routes to. Ready and Logger may be nil.
type Deps struct {
	Auth     Auth
	Session  *session.Manager
	Views    *session.Views
	Ledger   Ledger
	Images   imagehost.Host
	Exporter Exporter
	Tokens   *identity.Tokens
	Ready    func(context.Context) error
	Logger   *applog.Logger

	// AuthRequestsPerMinute bounds sign-up and sign-in attempts per client.
	AuthRequestsPerMinute int
}

type Server struct {
	http.Server

	auth     Auth
	session  *session.Manager
	views    *session.Views
	ledger   Ledger
	images   imagehost.Host
	exporter Exporter
	tokens   *identity.Tokens
	ready    func(context.Context) error

	// activeToken is the id of the only token currently accepted.
	tokenMu     sync.Mutex
	activeToken string

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware
	events   *applog.StructuredLogger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		auth:     deps.Auth,
		session:  deps.Session,
		views:    deps.Views,
		ledger:   deps.Ledger,
		images:   deps.Images,
		exporter: deps.Exporter,
		tokens:   deps.Tokens,
		ready:    deps.Ready,
		detector: security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.AuthRequestsPerMinute,
		}),
		events: applog.NewStructuredLogger(logger),
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	authLimit := s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many attempts, try again later"})
	})
	api := func(component string, h http.HandlerFunc) http.Handler {
		return applog.ComponentMiddleware(component)(security.NoStore(h))
	}
	authed := func(component string, h http.HandlerFunc) http.Handler {
		return api(component, s.requireSession(h))
	}

	mux.Handle("POST /api/auth/signup", authLimit(api(applog.ComponentAuth, s.handleSignUp)))
	mux.Handle("POST /api/auth/login", authLimit(api(applog.ComponentAuth, s.handleSignIn)))
	mux.Handle("POST /api/auth/logout", api(applog.ComponentAuth, s.handleSignOut))
	mux.Handle("GET /api/auth/me", api(applog.ComponentAuth, s.handleMe))

	mux.Handle("GET /api/projects", authed(applog.ComponentLedger, s.handleListProjects))
	mux.Handle("POST /api/projects", authed(applog.ComponentLedger, s.handleCreateProject))
	mux.Handle("GET /api/projects/{id}", authed(applog.ComponentLedger, s.handleGetProject))
	mux.Handle("PUT /api/projects/{id}", authed(applog.ComponentLedger, s.handleUpdateProject))
	mux.Handle("DELETE /api/projects/{id}", authed(applog.ComponentLedger, s.handleDeleteProject))
	mux.Handle("GET /api/projects/{id}/entries", authed(applog.ComponentLedger, s.handleProjectEntries))
	mux.Handle("GET /api/projects/{id}/receipts.pdf", authed(applog.ComponentExport, s.handleProjectReceipts))

	mux.Handle("GET /api/entries", authed(applog.ComponentLedger, s.handleListEntries))
	mux.Handle("POST /api/entries", authed(applog.ComponentLedger, s.handleCreateEntry))
	mux.Handle("PUT /api/entries/{id}", authed(applog.ComponentLedger, s.handleUpdateEntry))
	mux.Handle("DELETE /api/entries/{id}", authed(applog.ComponentLedger, s.handleDeleteEntry))
	mux.Handle("GET /api/months", authed(applog.ComponentLedger, s.handleMonths))

	mux.Handle("GET /api/calendar", authed(applog.ComponentLedger, s.handleCalendar))
	mux.Handle("GET /api/calendar/{date}", authed(applog.ComponentLedger, s.handleDay))

	mux.Handle("GET /images/{id...}", applog.ComponentMiddleware(applog.ComponentExport)(http.HandlerFunc(s.handleImage)))

	headers := security.NewHeadersMiddleware(security.APIHeadersConfig())
	s.Handler = s.tracer.Middleware(headers.Middleware(s.detector.Middleware(mux)))
	return s
}

// requireSession rejects callers without the current session token and makes
// sure the session is bound to the signed-in user before the handler reads
// the views.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.authenticate(r)
		if !ok {
			writeError(w, r, ledger.ErrNotAuthenticated)
			return
		}
		if state, uid := s.session.State(); state != session.Bound || uid != u.ID {
			// a failed subscribe leaves the session unbound; retry here
			if err := s.session.SetIdentity(r.Context(), u.ID); err != nil {
				writeError(w, r, err)
				return
			}
		}
		next(w, r)
	}
}

// Shutdown stops the limiter and gracefully shuts the server down.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Metrics reports request counters.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.Metrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
