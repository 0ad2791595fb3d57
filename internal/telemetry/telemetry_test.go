package telemetry

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/sahilvermadev/mapx/internal/errors"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { SetTracerProvider(nil) })
	return rec
}

func attr(kvs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range kvs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestStartSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartSpan(context.Background(), "session", "refresh", attribute.String("scope", "device"))
	RecordSuccess(span, attribute.Int("attempt", 1))
	span.End()

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "session.refresh", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)

	v, ok := attr(spans[0].Attributes(), "component")
	require.True(t, ok)
	assert.Equal(t, "session", v.AsString())
	_, ok = attr(spans[0].Attributes(), "attempt")
	assert.True(t, ok)
}

func TestRecordError_AddsCode(t *testing.T) {
	rec := withRecorder(t)

	_, span := StartCommandSpan(context.Background(), "auth status")
	RecordError(span, nil)
	RecordError(span, fmt.Errorf("wrapped: %w", errors.NewNoRefreshTokenError()))
	span.End()

	s := rec.Ended()[0]
	assert.Equal(t, "cli.command", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	v, ok := attr(s.Attributes(), "error.code")
	require.True(t, ok)
	assert.Equal(t, "SESSION-001", v.AsString())
	require.Len(t, s.Events(), 1)
}

func TestInitProvider(t *testing.T) {
	t.Cleanup(func() { SetTracerProvider(nil) })

	shutdown, err := InitProvider(context.Background(), DefaultConfig())
	require.NoError(t, err)
	_, span := StartSpan(context.Background(), "x", "y")
	assert.False(t, span.SpanContext().IsValid(), "disabled tracing records nothing")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.SampleRate = 0.5
	shutdown, err = InitProvider(context.Background(), cfg)
	require.NoError(t, err)
	_, span = StartSpan(context.Background(), "x", "y")
	span.End()
	assert.NoError(t, shutdown(context.Background()))
}
