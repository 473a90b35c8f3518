package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestCtxZapLogger_TraceIDFromContext(t *testing.T) {
	log, logs := NewTestLogger("limiter")

	ctx := WithTraceID(context.Background(), "trace-123")
	log.InfoCtx(ctx, "request admitted", zap.String("identity", "u1"))

	assert.True(t, logs.HasLog("info", "request admitted"))
	assert.True(t, logs.HasLogWithField("info", "request admitted", "trace_id", "trace-123"))
	assert.True(t, logs.HasLogWithField("info", "request admitted", "module", "limiter"))
}

func TestCtxZapLogger_TraceIDFromSpan(t *testing.T) {
	log, logs := NewTestLogger("redis")

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	log.WarnCtx(ctx, "adjustment skipped")
	assert.True(t, logs.HasLogWithField("warn", "adjustment skipped", "trace_id", traceID.String()))
}

func TestCtxZapLogger_Levels(t *testing.T) {
	log, logs := NewTestLogger("redis")
	ctx := context.Background()

	log.DebugCtx(ctx, "d")
	log.InfoCtx(ctx, "i")
	log.Info("i2")
	log.WarnCtx(ctx, "w")
	log.ErrorCtx(ctx, "e")
	log.Error("e2")

	assert.Equal(t, 1, logs.CountLogs("debug"))
	assert.Equal(t, 2, logs.CountLogs("info"))
	assert.Equal(t, 1, logs.CountLogs("warn"))
	assert.Equal(t, 2, logs.CountLogs("error"))
}

func TestCtxZapLogger_With(t *testing.T) {
	log, logs := NewTestLogger("redis")

	log.With(zap.Int64("generation", 3)).Info("handle created")
	assert.True(t, logs.HasLogWithField("info", "handle created", "generation", int64(3)))
	assert.Equal(t, []string{"handle created"}, logs.Messages())
}
