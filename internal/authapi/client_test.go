package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sahilvermadev/mapx/internal/errors"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", 5*time.Second)
}

func TestRefresh_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"))

		var body RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "r-1", body.RefreshToken)

		json.NewEncoder(w).Encode(RefreshResponse{Success: true, AccessToken: "a-2", ExpiresIn: 900})
	})

	out, err := c.Refresh(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, "a-2", out.AccessToken)
	assert.Equal(t, 900, out.ExpiresIn)
}

func TestRefresh_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    errors.ErrorCode
		message string
	}{
		{"success false", 200, `{"success":false,"error":"revoked"}`, errors.ErrCodeAPIRejected, "revoked"},
		{"missing token", 200, `{"success":true}`, errors.ErrCodeAPIRejected, "success=false"},
		{"401 json", 401, `{"success":false,"error":"invalid refresh token"}`, errors.ErrCodeAPIStatus, "invalid refresh token"},
		{"500 raw", 500, `upstream exploded`, errors.ErrCodeAPIStatus, "upstream exploded"},
		{"502 empty", 502, ``, errors.ErrCodeAPIStatus, "status 502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Refresh(context.Background(), "r")
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.Code(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestRefresh_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := NewClient(srv.URL, time.Second).Refresh(context.Background(), "r")
	assert.Equal(t, errors.ErrCodeAPITransport, errors.Code(err))
}

func TestLogout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer a-1", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/auth/logout":
			var body LogoutRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r-1", body.RefreshToken)
			json.NewEncoder(w).Encode(LogoutResponse{Success: true, Message: "bye"})
		case "/auth/logout-all":
			json.NewEncoder(w).Encode(LogoutResponse{Success: false, Error: "not today"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	require.NoError(t, c.Logout(context.Background(), "a-1", "r-1"))

	err := c.LogoutAll(context.Background(), "a-1")
	assert.Equal(t, errors.ErrCodeAPIRejected, errors.Code(err))
	assert.Contains(t, err.Error(), "not today")
}

func TestUserAgentHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "mapx/")
		json.NewEncoder(w).Encode(LogoutResponse{Success: true})
	})
	require.NoError(t, c.LogoutAll(context.Background(), "a"))
}
