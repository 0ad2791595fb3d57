package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Token errors (TOKEN-001 to TOKEN-099)
	ErrCodeTokenDecode ErrorCode = "TOKEN-001"

	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeNoRefreshToken  ErrorCode = "SESSION-001"
	ErrCodeNetworkFailure  ErrorCode = "SESSION-002"
	ErrCodeServerRejected  ErrorCode = "SESSION-003"
	ErrCodeLogoutTransport ErrorCode = "SESSION-004"

	// Backend API errors (API-001 to API-099)
	ErrCodeAPITransport ErrorCode = "API-001"
	ErrCodeAPIStatus    ErrorCode = "API-002"
	ErrCodeAPIRejected  ErrorCode = "API-003"

	// Token store errors (STORE-001 to STORE-099)
	ErrCodeStoreRead  ErrorCode = "STORE-001"
	ErrCodeStoreWrite ErrorCode = "STORE-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
)

const docsBase = "https://github.com/sahilvermadev/mapx#"

// MapxError represents an enhanced error with code, suggestions, and documentation
type MapxError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Cause       error
}

// Error implements the error interface
func (e *MapxError) Error() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  • %s", suggestion))
		}
	}

	if e.DocsURL != "" {
		b.WriteString(fmt.Sprintf("\n\nDocumentation: %s", e.DocsURL))
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *MapxError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a MapxError carrying the same code.
// This lets callers match on sentinel values such as ErrNoRefreshToken.
func (e *MapxError) Is(target error) bool {
	t, ok := target.(*MapxError)
	if !ok {
		return false
	}
	if t == e {
		return true
	}
	return t.Message == "" && t.Code == e.Code
}

// New creates a new MapxError
func New(code ErrorCode, message string) *MapxError {
	return &MapxError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new MapxError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *MapxError {
	return &MapxError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithSuggestion adds a suggestion to the error
func (e *MapxError) WithSuggestion(suggestion string) *MapxError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *MapxError) WithSuggestions(suggestions ...string) *MapxError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *MapxError) WithDocs(url string) *MapxError {
	e.DocsURL = url
	return e
}

// Code returns the code of the first MapxError in err's chain, or "".
func Code(err error) ErrorCode {
	var me *MapxError
	if stderrors.As(err, &me) {
		return me.Code
	}
	return ""
}

// HasCode reports whether any MapxError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if me, ok := err.(*MapxError); ok && me.Code == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// Sentinels for errors.Is matching. Only the code is compared.
var (
	ErrNoRefreshToken = &MapxError{Code: ErrCodeNoRefreshToken}
	ErrNetworkFailure = &MapxError{Code: ErrCodeNetworkFailure}
	ErrServerRejected = &MapxError{Code: ErrCodeServerRejected}
)

// Common error constructors for frequently used errors

// NewNoRefreshTokenError reports a refresh attempt without a stored refresh token
func NewNoRefreshTokenError() *MapxError {
	return New(ErrCodeNoRefreshToken, "no refresh token available").
		WithSuggestion("Run 'mapx auth login' or complete the sign-in flow again")
}

// NewNetworkFailureError reports a refresh that never reached the backend
func NewNetworkFailureError(cause error) *MapxError {
	return Wrap(ErrCodeNetworkFailure, "token refresh failed: backend unreachable", cause).
		WithSuggestion("Check your network connection and api.base_url").
		WithDocs(docsBase + "configuration")
}

// NewServerRejectedError reports a refresh the backend refused
func NewServerRejectedError(cause error) *MapxError {
	return Wrap(ErrCodeServerRejected, "token refresh rejected by backend", cause).
		WithSuggestion("Your session has ended; sign in again")
}

// NewLogoutTransportError reports a remote logout that could not be delivered
func NewLogoutTransportError(endpoint string, cause error) *MapxError {
	return Wrap(ErrCodeLogoutTransport, fmt.Sprintf("remote logout via %s failed", endpoint), cause)
}

// NewTokenDecodeError reports a token whose payload could not be decoded
func NewTokenDecodeError(reason string) *MapxError {
	return New(ErrCodeTokenDecode, fmt.Sprintf("malformed session token: %s", reason))
}

// NewStoreReadError reports a token store read failure
func NewStoreReadError(backend string, cause error) *MapxError {
	return Wrap(ErrCodeStoreRead, fmt.Sprintf("failed to read tokens from %s store", backend), cause).
		WithSuggestion("Check store.backend and store.path in your configuration")
}

// NewStoreWriteError reports a token store write failure
func NewStoreWriteError(backend string, cause error) *MapxError {
	return Wrap(ErrCodeStoreWrite, fmt.Sprintf("failed to write tokens to %s store", backend), cause).
		WithSuggestion("Verify the store location is writable").
		WithDocs(docsBase + "token-storage")
}

// NewConfigInvalidError reports an unusable configuration value
func NewConfigInvalidError(key, details string) *MapxError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration %s: %s", key, details)).
		WithSuggestion("Run 'mapx config view' to inspect the effective configuration").
		WithDocs(docsBase + "configuration")
}
