package devserver

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sahilvermadev/mapx/internal/token"
)

// Token types carried in the token_type claim.
const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// sessionClaims is the payload of both token kinds. The embedded
// token.Claims is exactly what clients decode.
type sessionClaims struct {
	token.Claims
	TokenType string `json:"token_type"`
}

// Issuer mints and validates HS256 session tokens.
type Issuer struct {
	// signingKey is the secret key for signing JWTs
	signingKey []byte

	// issuer is the JWT issuer
	issuer string

	// accessTTL is how long access tokens are valid (default: 15 minutes)
	accessTTL time.Duration

	// refreshTTL is how long refresh tokens are valid (default: 7 days)
	refreshTTL time.Duration

	clock token.Clock
}

// NewIssuer creates an Issuer signing with signingKey.
func NewIssuer(signingKey []byte, issuer string, clock token.Clock) *Issuer {
	if clock == nil {
		clock = token.SystemClock{}
	}
	return &Issuer{
		signingKey: signingKey,
		issuer:     issuer,
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		clock:      clock,
	}
}

// WithTTL sets custom token lifetimes.
func (i *Issuer) WithTTL(access, refresh time.Duration) *Issuer {
	i.accessTTL = access
	i.refreshTTL = refresh
	return i
}

// AccessTTL returns the access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

func (i *Issuer) mint(u User, kind string, ttl time.Duration) (raw, jti string, err error) {
	now := i.clock.Now()
	jti = uuid.NewString()
	claims := sessionClaims{
		Claims: token.Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    i.issuer,
				Subject:   u.ID,
				ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
				IssuedAt:  jwt.NewNumericDate(now),
				ID:        jti,
			},
			UserID:            u.ID,
			Email:             u.Email,
			DisplayName:       u.DisplayName,
			ProfilePictureURL: u.ProfilePictureURL,
			Username:          u.Username,
		},
		TokenType: kind,
	}

	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return raw, jti, nil
}

// IssueAccess mints an access token for u.
func (i *Issuer) IssueAccess(u User) (string, error) {
	raw, _, err := i.mint(u, typeAccess, i.accessTTL)
	return raw, err
}

// IssueRefresh mints a refresh token for u and returns its id.
func (i *Issuer) IssueRefresh(u User) (raw, jti string, err error) {
	return i.mint(u, typeRefresh, i.refreshTTL)
}

// Validate parses raw, checks its signature, issuer, kind and, unless
// allowExpired is set, its expiry.
func (i *Issuer) Validate(raw, kind string, allowExpired bool) (*sessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if claims.Issuer != i.issuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.TokenType != kind {
		return nil, fmt.Errorf("expected %s token, got %q", kind, claims.TokenType)
	}
	return &claims, nil
}
