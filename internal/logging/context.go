package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	requestCtxKey   struct{}
	signatureCtxKey struct{}
	kindCtxKey      struct{}
	planCtxKey      struct{}
	loggerCtxKey    struct{}
)

// ContextFields extracts correlation data from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := stringValue(ctx, requestCtxKey{}); v != "" {
		fields = append(fields, zap.String("request.id", v))
	}
	if v := stringValue(ctx, signatureCtxKey{}); v != "" {
		fields = append(fields, zap.String("error.signature", v))
	}
	if v := stringValue(ctx, kindCtxKey{}); v != "" {
		fields = append(fields, zap.String("error.kind", v))
	}
	if v := stringValue(ctx, planCtxKey{}); v != "" {
		fields = append(fields, zap.String("plan.id", v))
	}
	return fields
}

func stringValue(ctx context.Context, key any) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithRequestID adds the inbound request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestCtxKey{})
}

// WithSignature adds the error signature being processed to ctx.
func WithSignature(ctx context.Context, sig string) context.Context {
	return context.WithValue(ctx, signatureCtxKey{}, sig)
}

// WithErrorKind adds the classified error kind to ctx.
func WithErrorKind(ctx context.Context, kind string) context.Context {
	return context.WithValue(ctx, kindCtxKey{}, kind)
}

// WithPlanID adds the resolution plan id to ctx.
func WithPlanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, planCtxKey{}, id)
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
