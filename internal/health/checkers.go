package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sahilvermadev/mapx/internal/token"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
)

// StoreChecker verifies the token store can be read.
type StoreChecker struct {
	Store   tokenstore.Store
	Backend string
}

// Name implements Checker.
func (c *StoreChecker) Name() string { return "token-store" }

// Check implements Checker.
func (c *StoreChecker) Check(ctx context.Context) *Result {
	if _, err := c.Store.Load(ctx); err != nil {
		return Unhealthy("token store unreadable").
			WithDetail("backend", c.Backend).
			WithDetail("error", err.Error())
	}
	return Healthy("token store readable").WithDetail("backend", c.Backend)
}

// BackendChecker verifies the backend answers HTTP. Any response below
// 500 counts as reachable.
type BackendChecker struct {
	BaseURL string
	Client  *http.Client
}

// Name implements Checker.
func (c *BackendChecker) Name() string { return "backend" }

// Check implements Checker.
func (c *BackendChecker) Check(ctx context.Context) *Result {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.BaseURL, nil)
	if err != nil {
		return Unhealthy("invalid api.base_url").WithDetail("error", err.Error())
	}
	resp, err := client.Do(req)
	if err != nil {
		return Unhealthy("backend unreachable").
			WithDetail("url", c.BaseURL).
			WithDetail("error", err.Error())
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return Degraded(fmt.Sprintf("backend answered %d", resp.StatusCode)).WithDetail("url", c.BaseURL)
	}
	return Healthy("backend reachable").WithDetail("url", c.BaseURL)
}

// PairSource exposes the stored token pair without side effects.
type PairSource interface {
	Snapshot(ctx context.Context) tokenstore.Pair
}

// SessionChecker reports whether a usable session is stored. It never
// refreshes; a session that would need one is degraded.
type SessionChecker struct {
	Session PairSource
	Clock   token.Clock
	Buffer  time.Duration
}

// Name implements Checker.
func (c *SessionChecker) Name() string { return "session" }

// Check implements Checker.
func (c *SessionChecker) Check(ctx context.Context) *Result {
	clock := c.Clock
	if clock == nil {
		clock = token.SystemClock{}
	}
	now := clock.Now()
	p := c.Session.Snapshot(ctx)

	switch {
	case p.Access == "":
		return Degraded("not signed in")
	case token.IdentityOf(p.Access) == nil:
		return Unhealthy("stored access token is malformed")
	}

	r := Healthy("signed in")
	if exp, ok := token.ExpiresAt(p.Access); ok {
		r.WithDetail("access_expires", exp.UTC().Format(time.RFC3339))
	}
	r.WithDetail("has_refresh_token", p.Refresh != "")

	expired := token.IsExpired(p.Access, now)
	switch {
	case expired && p.Refresh == "":
		r.Status = StatusUnhealthy
		r.Message = "access token expired and no refresh token is stored"
	case expired:
		r.Status = StatusDegraded
		r.Message = "access token expired; it will be renewed on next use"
	case token.IsExpiringSoon(p.Access, now, c.Buffer) && p.Refresh == "":
		r.Status = StatusUnhealthy
		r.Message = "access token expiring soon and no refresh token is stored"
	case token.IsExpiringSoon(p.Access, now, c.Buffer):
		r.Status = StatusDegraded
		r.Message = "access token expiring; it will be renewed on next use"
	}
	return r
}
