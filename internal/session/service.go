// Package session derives login state from the stored token pair and owns
// every write to the token store: refresh, establish and logout.
package session

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/sahilvermadev/mapx/internal/authapi"
	"github.com/sahilvermadev/mapx/internal/errors"
	"github.com/sahilvermadev/mapx/internal/log"
	"github.com/sahilvermadev/mapx/internal/metrics"
	"github.com/sahilvermadev/mapx/internal/telemetry"
	"github.com/sahilvermadev/mapx/internal/token"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
)

// DefaultLogoutTimeout bounds the best-effort remote logout call.
const DefaultLogoutTimeout = 5 * time.Second

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*authapi.RefreshResponse, error)
}

// Revoker invalidates refresh tokens server-side.
type Revoker interface {
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LogoutAll(ctx context.Context, accessToken string) error
}

// Scope selects which sessions a logout revokes.
type Scope string

const (
	ScopeDevice Scope = "device"
	ScopeAll    Scope = "all"
)

// Service is the single writer of the token store.
type Service struct {
	store         tokenstore.Store
	refresher     Refresher
	revoker       Revoker
	clock         token.Clock
	logger        *log.Logger
	metrics       *metrics.Metrics
	buffer        time.Duration
	logoutTimeout time.Duration

	// mu serializes every read-decide-write against the store.
	mu     sync.Mutex
	flight singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock.
func WithClock(c token.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics enables metrics recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithExpiryBuffer sets how early an access token is refreshed.
func WithExpiryBuffer(d time.Duration) Option {
	return func(s *Service) { s.buffer = d }
}

// WithLogoutTimeout bounds the remote logout call.
func WithLogoutTimeout(d time.Duration) Option {
	return func(s *Service) { s.logoutTimeout = d }
}

// New returns a Service over store. revoker may be nil, in which case
// logout is purely local.
func New(store tokenstore.Store, refresher Refresher, revoker Revoker, opts ...Option) *Service {
	s := &Service{
		store:         store,
		refresher:     refresher,
		revoker:       revoker,
		clock:         token.SystemClock{},
		buffer:        token.DefaultExpiryBuffer,
		logoutTimeout: DefaultLogoutTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.OrDefault(s.logger).Named("session")
	return s
}

// load reads the pair. A store that cannot be read counts as signed out.
func (s *Service) load(ctx context.Context) tokenstore.Pair {
	p, err := s.store.Load(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("token store read failed")
		s.metrics.RecordStoreError("load")
		return tokenstore.Pair{}
	}
	return p
}

func (s *Service) clearLocked(ctx context.Context, reason string) {
	if err := s.store.Clear(ctx); err != nil {
		s.logger.WithError(err).Error("token store clear failed", "reason", reason)
		s.metrics.RecordStoreError("clear")
		return
	}
	s.logger.Debug("session cleared", "reason", reason)
}

// Snapshot returns the stored pair without side effects.
func (s *Service) Snapshot(ctx context.Context) tokenstore.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// IsAuthenticated reports whether an access token is present and at least
// one of the two tokens is still valid. When both are expired the store is
// cleared.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.load(ctx)
	if p.Access == "" {
		return false
	}
	now := s.clock.Now()
	if token.IsExpired(p.Access, now) && token.IsExpired(p.Refresh, now) {
		s.clearLocked(ctx, "access and refresh tokens expired")
		return false
	}
	return true
}

// CurrentUser decodes the identity from the access token. An expired
// access token, or one naming no user, clears the store and yields nil.
func (s *Service) CurrentUser(ctx context.Context) *token.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.load(ctx)
	if p.Access == "" {
		return nil
	}
	if token.IsExpired(p.Access, s.clock.Now()) {
		s.clearLocked(ctx, "access token expired")
		return nil
	}
	user := token.IdentityOf(p.Access)
	if user == nil {
		s.clearLocked(ctx, "access token carries no user id")
	}
	return user
}

// Establish stores a freshly issued pair.
func (s *Service) Establish(ctx context.Context, access, refresh string) error {
	if access == "" {
		return errors.NewTokenDecodeError("access token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(ctx, tokenstore.Pair{Access: access, Refresh: refresh}); err != nil {
		s.metrics.RecordStoreError("save")
		return err
	}
	s.logger.Info("session established", "has_refresh_token", refresh != "")
	return nil
}

// RefreshAccessToken obtains a new access token with the stored refresh
// token. Concurrent callers share one round trip. Any failure clears the
// store unless the session was replaced while the call was in flight.
func (s *Service) RefreshAccessToken(ctx context.Context) (string, error) {
	v, err, shared := s.flight.Do("refresh", func() (any, error) {
		ctx, span := telemetry.StartSpan(context.WithoutCancel(ctx), "session", "refresh")
		defer span.End()

		access, err := s.refresh(ctx)
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		return access, err
	})
	if shared {
		s.metrics.RecordSharedRefresh()
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Service) refresh(ctx context.Context) (string, error) {
	s.mu.Lock()
	snap := s.load(ctx)
	if snap.Refresh == "" {
		s.clearLocked(ctx, "no refresh token")
		s.mu.Unlock()
		s.metrics.RecordRefresh(false, string(errors.ErrCodeNoRefreshToken), 0)
		return "", errors.NewNoRefreshTokenError()
	}
	s.mu.Unlock()

	start := time.Now()
	resp, err := s.refresher.Refresh(ctx, snap.Refresh)
	elapsed := time.Since(start).Seconds()

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.load(ctx)

	if err != nil {
		failure := classify(err)
		s.metrics.RecordRefresh(false, string(failure.Code), elapsed)
		if cur == snap {
			s.clearLocked(ctx, "refresh failed")
		} else {
			s.logger.Debug("session replaced during failed refresh; keeping it")
		}
		s.logger.WithError(failure).Warn("token refresh failed")
		return "", failure
	}

	if cur.Refresh != snap.Refresh {
		// Logged out or re-established while the call was in flight.
		s.metrics.RecordRefresh(true, "", elapsed)
		if cur.Access != "" {
			return cur.Access, nil
		}
		return "", errors.NewNoRefreshTokenError()
	}

	if err := s.store.Save(ctx, tokenstore.Pair{Access: resp.AccessToken, Refresh: snap.Refresh}); err != nil {
		s.metrics.RecordStoreError("save")
		s.metrics.RecordRefresh(false, string(errors.Code(err)), elapsed)
		return "", err
	}
	s.metrics.RecordRefresh(true, "", elapsed)
	s.logger.Debug("access token refreshed", "expires_in", resp.ExpiresIn)
	return resp.AccessToken, nil
}

func classify(err error) *errors.MapxError {
	if errors.HasCode(err, errors.ErrCodeAPITransport) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewNetworkFailureError(err)
	}
	return errors.NewServerRejectedError(err)
}

// IsRefreshFailure reports whether err is one of the refresh failure kinds.
func IsRefreshFailure(err error) bool {
	return stderrors.Is(err, errors.ErrNoRefreshToken) ||
		stderrors.Is(err, errors.ErrNetworkFailure) ||
		stderrors.Is(err, errors.ErrServerRejected)
}

// TokenForRequest returns an access token fit to send, refreshing it when
// it expires within the buffer. It returns "" when no token can be had.
func (s *Service) TokenForRequest(ctx context.Context) string {
	s.mu.Lock()
	p := s.load(ctx)
	s.mu.Unlock()

	if !token.IsExpiringSoon(p.Access, s.clock.Now(), s.buffer) {
		return p.Access
	}

	access, err := s.RefreshAccessToken(ctx)
	if err != nil {
		return ""
	}
	return access
}

// Logout clears the session and then revokes it remotely. It never fails.
func (s *Service) Logout(ctx context.Context) error {
	pair := s.BeginLogout(ctx)
	_ = s.RevokeRemote(ctx, pair, ScopeDevice)
	return nil
}

// LogoutAllDevices clears the session and revokes every session of the
// user. It never fails.
func (s *Service) LogoutAllDevices(ctx context.Context) error {
	pair := s.BeginLogout(ctx)
	_ = s.RevokeRemote(ctx, pair, ScopeAll)
	return nil
}

// BeginLogout clears the store and returns the pair that was in it.
func (s *Service) BeginLogout(ctx context.Context) tokenstore.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.load(ctx)
	s.clearLocked(ctx, "logout")
	return p
}

// RevokeRemote tells the backend to invalidate pair. Failures are logged
// and returned for information only; local state is already cleared.
func (s *Service) RevokeRemote(ctx context.Context, pair tokenstore.Pair, scope Scope) error {
	if s.revoker == nil || pair.Access == "" {
		s.metrics.RecordLogout(string(scope), true)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.logoutTimeout)
	defer cancel()
	ctx, span := telemetry.StartSpan(ctx, "session", "revoke", attribute.String("scope", string(scope)))
	defer span.End()

	var (
		err      error
		endpoint string
	)
	switch scope {
	case ScopeAll:
		endpoint = "/auth/logout-all"
		err = s.revoker.LogoutAll(ctx, pair.Access)
	default:
		endpoint = "/auth/logout"
		err = s.revoker.Logout(ctx, pair.Access, pair.Refresh)
	}

	s.metrics.RecordLogout(string(scope), err == nil)
	if err != nil {
		failure := errors.NewLogoutTransportError(endpoint, err)
		telemetry.RecordError(span, failure)
		s.logger.WithError(failure).Warn("remote logout failed; local session already cleared")
		return failure
	}
	telemetry.RecordSuccess(span)
	s.logger.Info("remote session revoked", "scope", string(scope))
	return nil
}
