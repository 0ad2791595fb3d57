// Package tokenstore persists the access/refresh token pair.
package tokenstore

import (
	"context"
)

// Logical keys shared by every backend.
const (
	KeyAccess  = "accessToken"
	KeyRefresh = "refreshToken"
	// KeyLegacy held the single token of the old one-token scheme. It is
	// never written, only removed on Clear.
	KeyLegacy = "authToken"
)

// Pair is the persisted session. An empty string means the token is absent.
type Pair struct {
	Access  string `json:"accessToken,omitempty"`
	Refresh string `json:"refreshToken,omitempty"`
}

// Empty reports whether neither token is present.
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Store persists a Pair. Save writes both tokens in one step so no reader
// observes a mix of old and new values. Clear is idempotent and also
// removes KeyLegacy.
type Store interface {
	Save(ctx context.Context, p Pair) error
	Load(ctx context.Context) (Pair, error)
	Clear(ctx context.Context) error
	Close() error
}

func (p Pair) fields() map[string]string {
	return map[string]string{KeyAccess: p.Access, KeyRefresh: p.Refresh}
}
