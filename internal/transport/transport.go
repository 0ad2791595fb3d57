// Package transport attaches session credentials to outgoing requests and
// recovers once from a rejected credential.
package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sahilvermadev/mapx/internal/log"
	"github.com/sahilvermadev/mapx/internal/metrics"
	"github.com/sahilvermadev/mapx/internal/signal"
	"github.com/sahilvermadev/mapx/internal/telemetry"
)

// TokenSource is the slice of the session service the transport needs.
type TokenSource interface {
	TokenForRequest(ctx context.Context) string
	RefreshAccessToken(ctx context.Context) (string, error)
}

type retryKey struct{}

// WithRetried marks ctx so the transport will not retry requests made with it.
func WithRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, true)
}

func retried(ctx context.Context) bool {
	v, _ := ctx.Value(retryKey{}).(bool)
	return v
}

// Transport is an http.RoundTripper that sends a bearer token, and on a
// 401 or 403 obtains a new token and replays the request once. When no
// token can be obtained it publishes signal.EventUnauthorized and returns
// the original response.
type Transport struct {
	Base    http.RoundTripper
	Tokens  TokenSource
	Bus     *signal.Bus
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

// NewClient returns an *http.Client using t.
func NewClient(t *Transport) *http.Client {
	return &http.Client{Transport: t}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) logger() *log.Logger {
	return log.OrDefault(t.Logger).Named("transport")
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	sent := t.Tokens.TokenForRequest(ctx)
	resp, err := t.base().RoundTrip(authorize(req, sent, body))
	if err != nil {
		return nil, err
	}

	if !rejected(resp.StatusCode) || retried(ctx) {
		return resp, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "transport", "recover", attribute.Int("http.status_code", resp.StatusCode))
	defer span.End()

	next := t.Tokens.TokenForRequest(ctx)
	if next == "" || next == sent {
		// The server refused a token we still consider fresh.
		next, err = t.Tokens.RefreshAccessToken(ctx)
		if err != nil {
			next = ""
		}
	}

	if next == "" {
		t.logger().Info("credentials rejected and refresh failed",
			"method", req.Method, "url", req.URL.Redacted(), "status", resp.StatusCode)
		t.Metrics.RecordUnauthorized()
		span.AddEvent(signal.EventUnauthorized)
		if t.Bus != nil {
			t.Bus.Publish(signal.EventUnauthorized)
		}
		return resp, nil
	}

	drain(resp)
	t.Metrics.RecordRetry(strconv.Itoa(resp.StatusCode))
	t.logger().Debug("retrying with refreshed token", "method", req.Method, "url", req.URL.Redacted())

	retry := authorize(req.WithContext(WithRetried(ctx)), next, body)
	resp, err = t.base().RoundTrip(retry)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.retry_status_code", resp.StatusCode))
	return resp, nil
}

func rejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// authorize clones req with a fresh body and the given bearer token.
func authorize(req *http.Request, bearer string, body func() (io.ReadCloser, error)) *http.Request {
	out := req.Clone(req.Context())
	if body != nil {
		if rc, err := body(); err == nil {
			out.Body = rc
		}
	}
	out.Header.Del("Authorization")
	if bearer != "" {
		out.Header.Set("Authorization", "Bearer "+bearer)
	}
	return out
}

// replayableBody returns a function yielding a fresh copy of the request
// body, buffering it if the request cannot rewind itself.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close()
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
