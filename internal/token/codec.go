// Package token decodes session token payloads and answers expiry questions
// about them. Signatures are never verified here; the backend owns that.
package token

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a session token as issued by the backend.
type Claims struct {
	jwt.RegisteredClaims

	UserID            string `json:"id,omitempty"`
	Email             string `json:"email,omitempty"`
	DisplayName       string `json:"displayName,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
	Username          string `json:"username,omitempty"`
}

// Identity is the user-facing view of a decoded token.
type Identity struct {
	ID                string `json:"id" yaml:"id"`
	Email             string `json:"email,omitempty" yaml:"email,omitempty"`
	DisplayName       string `json:"displayName,omitempty" yaml:"display_name,omitempty"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty" yaml:"profile_picture_url,omitempty"`
	Username          string `json:"username,omitempty" yaml:"username,omitempty"`
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Decode returns the claims carried by raw, or nil if raw is not a
// three-segment token with a JSON object payload.
func Decode(raw string) *Claims {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil
	}

	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil
	}

	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil
	}
	return &c
}

// Identity extracts the user identity. The id claim is preferred; sub is
// used when id is missing. Returns nil when neither is set.
func (c *Claims) Identity() *Identity {
	if c == nil {
		return nil
	}
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return nil
	}
	return &Identity{
		ID:                id,
		Email:             c.Email,
		DisplayName:       c.DisplayName,
		ProfilePictureURL: c.ProfilePictureURL,
		Username:          c.Username,
	}
}

// IdentityOf decodes raw and returns its identity, or nil.
func IdentityOf(raw string) *Identity {
	return Decode(raw).Identity()
}
