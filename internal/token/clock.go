package token

import (
	"sync"
	"time"
)

// DefaultExpiryBuffer is how early a token counts as expiring.
const DefaultExpiryBuffer = 2 * time.Minute

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock is a settable Clock for tests and replay.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFixedClock returns a FixedClock stopped at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// ExpiresAt returns the exp claim of raw. ok is false when raw cannot be
// decoded; a zero time with ok true means the token carries no exp.
func ExpiresAt(raw string) (exp time.Time, ok bool) {
	c := Decode(raw)
	if c == nil {
		return time.Time{}, false
	}
	if c.ExpiresAt == nil {
		return time.Time{}, true
	}
	return c.ExpiresAt.Time, true
}

// IsExpired reports whether raw is absent, undecodable, or expired at now.
// A token without exp never expires.
func IsExpired(raw string, now time.Time) bool {
	return IsExpiringSoon(raw, now, 0)
}

// IsExpiringSoon reports whether raw is absent, undecodable, or expires
// within buffer of now.
func IsExpiringSoon(raw string, now time.Time, buffer time.Duration) bool {
	if raw == "" {
		return true
	}
	exp, ok := ExpiresAt(raw)
	if !ok {
		return true
	}
	if exp.IsZero() {
		return false
	}
	return !exp.After(now.Add(buffer))
}
