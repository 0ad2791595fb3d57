package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sahilvermadev/mapx/internal/authapi"
	"github.com/sahilvermadev/mapx/internal/errors"
	"github.com/sahilvermadev/mapx/internal/telemetry"
	"github.com/sahilvermadev/mapx/internal/tokenstore"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	telemetry.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { telemetry.SetTracerProvider(nil) })
	return rec
}

func TestRefreshAndRevokeAreTraced(t *testing.T) {
	rec := recordSpans(t)
	f := newFixture(t)
	f.ref.fn = func(n int32, _ string) (*authapi.RefreshResponse, error) {
		if n == 1 {
			return &authapi.RefreshResponse{Success: true, AccessToken: mint(t, "u", epoch.Add(time.Hour))}, nil
		}
		return nil, errors.New(errors.ErrCodeAPIStatus, "request failed with status 401")
	}
	f.seed(t, tokenstore.Pair{Access: "a", Refresh: "r"})

	_, err := f.svc.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	_, err = f.svc.RefreshAccessToken(context.Background())
	require.Error(t, err)

	f.seed(t, tokenstore.Pair{Access: "a", Refresh: "r"})
	require.NoError(t, f.svc.Logout(context.Background()))

	spans := rec.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "session.refresh", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "session.revoke", spans[2].Name())
}
