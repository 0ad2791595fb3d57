package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sahilvermadev/mapx/internal/errors"
)

const instrumentation = "github.com/sahilvermadev/mapx"

// StartSpan starts a span named component.operation.
//
//	ctx, span := telemetry.StartSpan(ctx, "session", "refresh")
//	defer span.End()
func StartSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer(instrumentation)
	ctx, span := tracer.Start(ctx, component+"."+operation)
	span.SetAttributes(attribute.String("component", component))
	span.SetAttributes(attrs...)
	return ctx, span
}

// StartCommandSpan starts the root span of a CLI command.
func StartCommandSpan(ctx context.Context, command string) (context.Context, trace.Span) {
	return StartSpan(ctx, "cli", "command", attribute.String("command", command))
}

// RecordSuccess marks a span as successful with optional result attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records err on span and sets error status. A coded error
// also contributes its code.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if code := errors.Code(err); code != "" {
		span.SetAttributes(attribute.String("error.code", string(code)))
	}
}
