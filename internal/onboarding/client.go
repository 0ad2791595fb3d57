// Package onboarding reads and completes the username onboarding of the
// signed-in user.
package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sahilvermadev/mapx/internal/errors"
)

// Status is the reply to GET /api/username/status.
type Status struct {
	HasUsername   bool   `json:"hasUsername" yaml:"has_username"`
	Username      string `json:"username,omitempty" yaml:"username,omitempty"`
	UsernameSetAt string `json:"usernameSetAt,omitempty" yaml:"username_set_at,omitempty"`
}

// Client fetches onboarding status. HTTPClient should carry the session
// transport so the bearer token is attached and refreshed.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTPClient: httpClient}
}

// UsernameStatus returns the current user's onboarding status.
func (c *Client) UsernameStatus(ctx context.Context) (*Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/username/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPITransport, "username status request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, errors.New(errors.ErrCodeAPIStatus, fmt.Sprintf("username status request failed with status %d", resp.StatusCode))
	}

	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIStatus, "failed to decode username status", err)
	}
	return &st, nil
}

// SetUsername claims name for the current user with PUT /api/username and
// returns the resulting status.
func (c *Client) SetUsername(ctx context.Context, name string) (*Status, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New(errors.ErrCodeAPIRejected, "username is required")
	}
	body, err := json.Marshal(map[string]string{"username": name})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/api/username", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPITransport, "username update request failed", err)
	}
	defer resp.Body.Close()

	var out struct {
		Success       *bool  `json:"success"`
		Error         string `json:"error"`
		Username      string `json:"username"`
		UsernameSetAt string `json:"usernameSetAt"`
	}
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("username update failed with status %d", resp.StatusCode)
		if decodeErr == nil && out.Error != "" {
			return nil, errors.Wrap(errors.ErrCodeAPIStatus, msg, fmt.Errorf("%s", out.Error))
		}
		return nil, errors.New(errors.ErrCodeAPIStatus, msg)
	}
	if decodeErr != nil {
		return nil, errors.Wrap(errors.ErrCodeAPIStatus, "failed to decode username update", decodeErr)
	}
	if out.Success != nil && !*out.Success {
		return nil, errors.New(errors.ErrCodeAPIRejected, "username rejected: "+out.Error)
	}

	username := out.Username
	if username == "" {
		username = name
	}
	return &Status{HasUsername: true, Username: username, UsernameSetAt: out.UsernameSetAt}, nil
}
