// Package authapi talks to the backend's session endpoints.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sahilvermadev/mapx/internal/errors"
	"github.com/sahilvermadev/mapx/internal/version"
)

// Client is the backend auth API client
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient creates a new auth API client
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		UserAgent: version.GetInfo().UserAgent(),
	}
}

// doRequest performs an HTTP request, optionally bearer-authenticated
func (c *Client) doRequest(ctx context.Context, method, path, bearer string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAPITransport, fmt.Sprintf("%s %s failed", method, path), err)
	}

	return resp, nil
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// parseResponse parses the response body into the target struct
func parseResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := fmt.Sprintf("request failed with status %d", resp.StatusCode)

		// Try to parse as JSON error response
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil {
			if errResp.Error != "" {
				return errors.Wrap(errors.ErrCodeAPIStatus, msg, fmt.Errorf("%s", errResp.Error))
			}
			if errResp.Message != "" {
				return errors.Wrap(errors.ErrCodeAPIStatus, msg, fmt.Errorf("%s", errResp.Message))
			}
		}

		// Fallback to raw body
		if len(body) > 0 {
			return errors.Wrap(errors.ErrCodeAPIStatus, msg, fmt.Errorf("%s", strings.TrimSpace(string(body))))
		}
		return errors.New(errors.ErrCodeAPIStatus, msg)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil && err != io.EOF {
			return errors.Wrap(errors.ErrCodeAPIStatus, "failed to decode response", err)
		}
	}

	return nil
}
