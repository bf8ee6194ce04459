package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"receipts/internal/identity"
	"receipts/internal/ledger"
	applog "receipts/internal/log"
)

const sessionCookie = "receipts_session"

func (s *Server) userJSON(u identity.User, token string) userResponse {
	state, _ := s.session.State()
	return userResponse{ID: u.ID, Email: u.Email, Session: state.String(), Token: token}
}

// startSession issues a token for u, revoking any earlier one, and sets the
// session cookie.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u identity.User) (string, error) {
	token, claims, err := s.tokens.Issue(u)
	if err != nil {
		return "", err
	}
	s.tokenMu.Lock()
	s.activeToken = claims.ID
	s.tokenMu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  claims.ExpiresAt.Time,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return token, nil
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	s.tokenMu.Lock()
	s.activeToken = ""
	s.tokenMu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}

// requestToken reads a Bearer Authorization header, falling back to the
// session cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// authenticate resolves the caller to the signed-in user. The token must
// verify, be the one issued last, and name the current user.
func (s *Server) authenticate(r *http.Request) (identity.User, bool) {
	u, ok := s.auth.Current()
	if !ok {
		return identity.User{}, false
	}
	token := requestToken(r)
	if token == "" {
		return identity.User{}, false
	}
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return identity.User{}, false
	}
	s.tokenMu.Lock()
	active := s.activeToken
	s.tokenMu.Unlock()
	if active == "" || subtle.ConstantTimeCompare([]byte(claims.ID), []byte(active)) != 1 || claims.Subject != u.ID {
		return identity.User{}, false
	}
	return u, true
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.startSession(w, r, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Account created",
		applog.FieldUID, u.ID,
		applog.FieldOperation, applog.OpSignUp)
	writeJSON(w, http.StatusCreated, s.userJSON(u, token))
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.startSession(w, r, u)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Signed in",
		applog.FieldUID, u.ID,
		applog.FieldOperation, applog.OpSignIn)
	writeJSON(w, http.StatusOK, s.userJSON(u, token))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticate(r); !ok {
		writeError(w, r, ledger.ErrNotAuthenticated)
		return
	}
	if err := s.auth.SignOut(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.endSession(w, r)
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Signed out",
		applog.FieldOperation, applog.OpSignOut)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, ok := s.authenticate(r)
	if !ok {
		writeError(w, r, ledger.ErrNotAuthenticated)
		return
	}
	writeJSON(w, http.StatusOK, s.userJSON(u, ""))
}
