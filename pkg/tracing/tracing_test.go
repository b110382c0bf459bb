package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/tracing"
)

// TestMapPropagation 测试追踪上下文经 metadata 往返后保持同一 trace.
func TestMapPropagation(t *testing.T) {
	require.NoError(t, tracing.InitTracer(configs.TracingConfig{}))

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	meta := map[string]string{}
	tracing.InjectMap(ctx, meta)
	assert.NotEmpty(t, meta["traceparent"])

	got := trace.SpanContextFromContext(tracing.ExtractMap(context.Background(), meta))
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
	assert.True(t, got.IsRemote())
}

// TestInitTracerRejectsUnknownExporter 测试未知导出器类型报错.
func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	err := tracing.InitTracer(configs.TracingConfig{Enabled: true, ExporterType: "carrier-pigeon", SampleRate: 1})
	require.Error(t, err)
	require.NoError(t, tracing.ShutdownTracer(context.Background()))
}
