package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNoRefreshToken, "test error message")

	if err.Code != ErrCodeNoRefreshToken {
		t.Errorf("expected code %s, got %s", ErrCodeNoRefreshToken, err.Code)
	}

	if err.Message != "test error message" {
		t.Errorf("expected message 'test error message', got '%s'", err.Message)
	}

	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeNetworkFailure, "refresh failed", cause)

	if err.Code != ErrCodeNetworkFailure {
		t.Errorf("expected code %s, got %s", ErrCodeNetworkFailure, err.Code)
	}

	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *MapxError
		wantCode string
		wantMsg  string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeServerRejected, "rejected"),
			wantCode: "SESSION-003",
			wantMsg:  "rejected",
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeStoreRead, "read failed", fmt.Errorf("permission denied")),
			wantCode: "STORE-001",
			wantMsg:  "permission denied",
		},
		{
			name:     "suggestions and docs",
			err:      NewNetworkFailureError(fmt.Errorf("dial tcp")),
			wantCode: "SESSION-002",
			wantMsg:  "Documentation:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errStr := tt.err.Error()

			if !strings.Contains(errStr, tt.wantCode) {
				t.Errorf("error string should contain code %s, got: %s", tt.wantCode, errStr)
			}
			if !strings.Contains(errStr, tt.wantMsg) {
				t.Errorf("error string should contain %q, got: %s", tt.wantMsg, errStr)
			}
		})
	}
}

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("refresh: %w", NewNoRefreshTokenError())

	if !errors.Is(wrapped, ErrNoRefreshToken) {
		t.Error("expected wrapped NoRefreshToken error to match sentinel")
	}
	if errors.Is(wrapped, ErrServerRejected) {
		t.Error("NoRefreshToken must not match ServerRejected sentinel")
	}
	if errors.Is(NewServerRejectedError(nil), ErrNetworkFailure) {
		t.Error("ServerRejected must not match NetworkFailure sentinel")
	}
}

func TestCodeAndHasCode(t *testing.T) {
	inner := NewStoreWriteError("bolt", fmt.Errorf("disk full"))
	outer := Wrap(ErrCodeServerRejected, "outer", inner)

	if got := Code(outer); got != ErrCodeServerRejected {
		t.Errorf("Code() = %s, want %s", got, ErrCodeServerRejected)
	}
	if !HasCode(outer, ErrCodeStoreWrite) {
		t.Error("HasCode should find nested STORE-002")
	}
	if HasCode(outer, ErrCodeConfigInvalid) {
		t.Error("HasCode should not find absent code")
	}
	if Code(fmt.Errorf("plain")) != "" {
		t.Error("Code of a plain error should be empty")
	}
}

func TestWithSuggestions(t *testing.T) {
	err := New(ErrCodeConfigInvalid, "bad").
		WithSuggestion("one").
		WithSuggestions("two", "three").
		WithDocs("https://example.com")

	if len(err.Suggestions) != 3 {
		t.Fatalf("expected 3 suggestions, got %d", len(err.Suggestions))
	}
	if err.DocsURL != "https://example.com" {
		t.Errorf("unexpected docs url %q", err.DocsURL)
	}
}

func TestErrorCodes(t *testing.T) {
	codes := []ErrorCode{
		ErrCodeTokenDecode,
		ErrCodeNoRefreshToken,
		ErrCodeNetworkFailure,
		ErrCodeServerRejected,
		ErrCodeLogoutTransport,
		ErrCodeAPITransport,
		ErrCodeAPIStatus,
		ErrCodeAPIRejected,
		ErrCodeStoreRead,
		ErrCodeStoreWrite,
		ErrCodeConfigInvalid,
	}

	seen := make(map[ErrorCode]bool)
	for _, code := range codes {
		if seen[code] {
			t.Errorf("duplicate error code %s", code)
		}
		seen[code] = true
		if !strings.Contains(string(code), "-") {
			t.Errorf("code %s should follow CATEGORY-NNN", code)
		}
	}
}
