// Package devserver is a local backend implementing the session endpoints
// the client consumes. It exists for development and integration tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sahilvermadev/mapx/internal/log"
	"github.com/sahilvermadev/mapx/internal/token"
)

// Server holds the dev backend state.
type Server struct {
	issuer *Issuer
	users  *Directory
	logger *log.Logger
	clock  token.Clock

	mu      sync.Mutex
	refresh map[string]refreshRecord
}

type refreshRecord struct {
	userID  string
	revoked bool
}

type ctxKey struct{}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides the clock used for username timestamps.
func WithClock(c token.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// New creates a Server. issuer may be nil to use a fresh signing key.
func New(issuer *Issuer, users *Directory, opts ...Option) *Server {
	if issuer == nil {
		issuer = NewIssuer([]byte(uuid.NewString()), "mapx-dev", nil)
	}
	s := &Server{
		issuer:  issuer,
		users:   users,
		clock:   token.SystemClock{},
		refresh: make(map[string]refreshRecord),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).Named("devserver")
	return s
}

// Router returns a chi.Router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/dev/login", s.DevLogin)

	r.Post("/auth/refresh", s.Refresh)
	r.With(s.requireAccess).Post("/auth/logout", s.Logout)
	r.With(s.requireAccess).Post("/auth/logout-all", s.LogoutAll)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireAccess)
		r.Get("/me", s.Me)
		r.Get("/username/status", s.UsernameStatus)
		r.Put("/username", s.SetUsername)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// requireAccess rejects requests without a valid access token.
func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.issuer.Validate(bearer(r), typeAccess, false)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}

func claimsFrom(ctx context.Context) *sessionClaims {
	c, _ := ctx.Value(ctxKey{}).(*sessionClaims)
	return c
}

func (s *Server) issuePair(u User) (access, refresh string, err error) {
	access, err = s.issuer.IssueAccess(u)
	if err != nil {
		return "", "", err
	}
	refresh, jti, err := s.issuer.IssueRefresh(u)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	s.refresh[jti] = refreshRecord{userID: u.ID}
	s.mu.Unlock()
	return access, refresh, nil
}

// DevLogin signs a fixture user in without credentials and returns the
// pair plus the OAuth callback URL the client would be sent to.
func (s *Server) DevLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		CallbackURL string `json:"callbackUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, ok := s.users.ByEmail(req.Email)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}

	access, refresh, err := s.issuePair(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := map[string]any{"success": true, "accessToken": access, "refreshToken": refresh}
	if req.CallbackURL != "" {
		if cb, err := url.Parse(req.CallbackURL); err == nil {
			q := cb.Query()
			q.Set("token", access)
			q.Set("refreshToken", refresh)
			cb.RawQuery = q.Encode()
			resp["callbackUrl"] = cb.String()
		}
	}
	s.logger.Info("dev login", "user_id", u.ID)
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /auth/refresh.
func (s *Server) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	claims, err := s.issuer.Validate(req.RefreshToken, typeRefresh, false)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.mu.Lock()
	rec, ok := s.refresh[claims.ID]
	s.mu.Unlock()
	if !ok || rec.revoked {
		writeError(w, http.StatusUnauthorized, "refresh token revoked")
		return
	}

	u, ok := s.users.ByID(claims.Subject)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown user")
		return
	}
	access, err := s.issuer.IssueAccess(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"accessToken": access,
		"expiresIn":   int(s.issuer.AccessTTL().Seconds()),
	})
}

// Logout handles POST /auth/logout. The refresh token in the body is
// revoked; an expired token is still accepted so it can be retired. It
// must belong to the bearer.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	claims, err := s.issuer.Validate(req.RefreshToken, typeRefresh, true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid refresh token")
		return
	}
	if claims.Subject != claimsFrom(r.Context()).Subject {
		writeError(w, http.StatusForbidden, "refresh token belongs to another user")
		return
	}

	s.mu.Lock()
	if rec, ok := s.refresh[claims.ID]; ok {
		rec.revoked = true
		s.refresh[claims.ID] = rec
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out"})
}

// LogoutAll handles POST /auth/logout-all.
func (s *Server) LogoutAll(w http.ResponseWriter, r *http.Request) {
	userID := claimsFrom(r.Context()).Subject

	s.mu.Lock()
	revoked := 0
	for id, rec := range s.refresh {
		if rec.userID == userID && !rec.revoked {
			rec.revoked = true
			s.refresh[id] = rec
			revoked++
		}
	}
	s.mu.Unlock()

	s.logger.Info("revoked all sessions", "user_id", userID, "count", revoked)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "logged out of all devices"})
}

// Me handles GET /api/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := s.users.ByID(claimsFrom(r.Context()).Subject)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                u.ID,
		"email":             u.Email,
		"displayName":       u.DisplayName,
		"profilePictureUrl": u.ProfilePictureURL,
		"username":          u.Username,
	})
}

// UsernameStatus handles GET /api/username/status.
func (s *Server) UsernameStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := s.users.ByID(claimsFrom(r.Context()).Subject)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown user")
		return
	}
	resp := map[string]any{"hasUsername": u.Username != ""}
	if u.Username != "" {
		resp["username"] = u.Username
		resp["usernameSetAt"] = u.UsernameSetAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetUsername handles PUT /api/username.
func (s *Server) SetUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Username) == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	at := s.clock.Now().UTC().Format(time.RFC3339)
	u, err := s.users.SetUsername(claimsFrom(r.Context()).Subject, strings.TrimSpace(req.Username), at)
	switch {
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "username": u.Username, "usernameSetAt": u.UsernameSetAt})
}
