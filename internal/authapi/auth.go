package authapi

import (
	"context"
	"net/http"

	"github.com/sahilvermadev/mapx/internal/errors"
)

// RefreshRequest is the body of POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RefreshResponse is the reply to POST /auth/refresh
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"accessToken,omitempty"`
	ExpiresIn   int    `json:"expiresIn,omitempty"`
	Error       string `json:"error,omitempty"`
}

// LogoutRequest is the body of POST /auth/logout
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// LogoutResponse is the reply to both logout endpoints
type LogoutResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Refresh exchanges a refresh token for a new access token
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	resp, err := c.doRequest(ctx, "POST", "/auth/refresh", "", RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	var out RefreshResponse
	if err := parseResponse(resp, &out); err != nil {
		return nil, err
	}
	if !out.Success || out.AccessToken == "" {
		return nil, rejected("refresh", out.Error)
	}
	return &out, nil
}

// Logout revokes the given refresh token server-side
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	resp, err := c.doRequest(ctx, "POST", "/auth/logout", accessToken, LogoutRequest{RefreshToken: refreshToken})
	if err != nil {
		return err
	}
	return checkLogout(resp, "logout")
}

// LogoutAll revokes every refresh token of the current user
func (c *Client) LogoutAll(ctx context.Context, accessToken string) error {
	resp, err := c.doRequest(ctx, "POST", "/auth/logout-all", accessToken, nil)
	if err != nil {
		return err
	}
	return checkLogout(resp, "logout-all")
}

func checkLogout(resp *http.Response, op string) error {
	var out LogoutResponse
	if err := parseResponse(resp, &out); err != nil {
		return err
	}
	if !out.Success {
		return rejected(op, out.Error)
	}
	return nil
}

func rejected(op, reason string) error {
	if reason == "" {
		reason = "success=false"
	}
	return errors.New(errors.ErrCodeAPIRejected, op+" rejected: "+reason)
}
