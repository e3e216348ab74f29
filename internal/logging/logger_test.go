package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/resolvd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(NewDefaultConfig(), nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format must be")
}

func TestLogger_Levels(t *testing.T) {
	tl := NewTestLogger()
	ctx := context.Background()

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
	}{
		{"trace", func() { tl.Trace(ctx, "trace msg") }, TraceLevel},
		{"debug", func() { tl.Debug(ctx, "debug msg") }, zapcore.DebugLevel},
		{"info", func() { tl.Info(ctx, "info msg") }, zapcore.InfoLevel},
		{"warn", func() { tl.Warn(ctx, "warn msg") }, zapcore.WarnLevel},
		{"error", func() { tl.Error(ctx, "error msg") }, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl.Reset()
			tt.log()
			tl.AssertLogged(t, tt.level, tt.name+" msg")
		})
	}
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSignature(ctx, "3f1a9c0d22be")
	ctx = WithErrorKind(ctx, "DEADLOCK")
	ctx = WithPlanID(ctx, "plan-9")

	tl.Info(ctx, "plan generated", zap.String("strategy", "preventive"))

	tl.AssertField(t, "plan generated", "request.id", "req-1")
	tl.AssertField(t, "plan generated", "error.signature", "3f1a9c0d22be")
	tl.AssertField(t, "plan generated", "error.kind", "DEADLOCK")
	tl.AssertField(t, "plan generated", "plan.id", "plan-9")
	tl.AssertField(t, "plan generated", "strategy", "preventive")
}

func TestContextFields_Trace(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "trace_id", fields[0].Key)
	assert.Equal(t, traceID.String(), fields[0].String)
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
	assert.Equal(t, "", RequestIDFromContext(WithRequestID(context.Background(), "")))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	assert.Same(t, tl.Logger, FromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, lvl)

	lvl, err = ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFromAppConfig(t *testing.T) {
	cfg, err := FromAppConfig(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)

	_, err = FromAppConfig(config.LoggingConfig{Level: "chatty"})
	assert.Error(t, err)
}

func newBufferLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Sampling.Enabled = false
	cfg.Caller.Enabled = false
	var buf bytes.Buffer
	core, err := newCoreTo(cfg, nil, &buf)
	require.NoError(t, err)
	return &Logger{zap: zap.New(core), config: cfg}, &buf
}

func TestRedaction(t *testing.T) {
	logger, buf := newBufferLogger(t)
	ctx := context.Background()

	logger.Warn(ctx, "connect failed",
		zap.String("password", "hunter2"),
		zap.String("raw", "dial mysql://app:s3cret@db:3306/shop refused"),
		zap.Error(errors.New("GRANT ALL ON *.* TO 'app' IDENTIFIED BY 'pw123'")),
		Secret("api_key", config.Secret("sk-abcdef")),
	)

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "s3cret")
	assert.NotContains(t, out, "pw123")
	assert.NotContains(t, out, "sk-abcdef")
	assert.Contains(t, out, "[REDACTED]")
}

func TestRedaction_WithFields(t *testing.T) {
	logger, buf := newBufferLogger(t)
	logger.With(zap.String("token", "abc")).Info(context.Background(), "hello")
	assert.NotContains(t, buf.String(), `"abc"`)
}

func TestNewRedactingEncoder_BadPattern(t *testing.T) {
	_, err := NewRedactingEncoder(newEncoder("json"), RedactionConfig{Enabled: true, Patterns: []string{"("}})
	assert.Error(t, err)
}

func TestSampling_ErrorsNeverDropped(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Caller.Enabled = false
	cfg.Sampling.Initial = 1
	cfg.Sampling.Thereafter = 0
	var buf bytes.Buffer
	core, err := newCoreTo(cfg, nil, &buf)
	require.NoError(t, err)
	logger := &Logger{zap: zap.New(core), config: cfg}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		logger.Info(ctx, "repeated info")
		logger.Error(ctx, "repeated error")
	}

	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("repeated info")))
	assert.Equal(t, 5, bytes.Count(buf.Bytes(), []byte("repeated error")))
}
