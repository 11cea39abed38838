package observability

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{
		ServiceName: "gateway-test",
		Enabled:     false,
	})
	require.NoError(t, err)
	assert.Nil(t, tracer.provider)
	assert.False(t, tracer.Enabled())

	_, span := tracer.StartSpan(context.Background(), "noop")
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(context.Background(), TracerConfig{
		ServiceName:    "gateway-test",
		ServiceVersion: "test",
		SamplingRate:   1.0,
		Enabled:        true,
	})
	require.NoError(t, err)
	require.NotNil(t, tracer.provider)
	assert.True(t, tracer.Enabled())

	ctx, span := tracer.StartSpan(context.Background(), "op",
		trace.WithSpanKind(trace.SpanKindInternal))
	assert.True(t, span.SpanContext().IsSampled())

	assert.Equal(t, span.SpanContext().TraceID().String(), TraceIDFromContext(ctx))
	assert.Equal(t, span.SpanContext().SpanID().String(), SpanIDFromContext(ctx))
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want string
	}{
		{name: "always", rate: 1.0, want: sdktrace.AlwaysSample().Description()},
		{name: "above one", rate: 2.0, want: sdktrace.AlwaysSample().Description()},
		{name: "never", rate: 0, want: sdktrace.NeverSample().Description()},
		{name: "negative", rate: -1, want: sdktrace.NeverSample().Description()},
		{name: "ratio", rate: 0.5, want: sdktrace.TraceIDRatioBased(0.5).Description()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, createSampler(tt.rate).Description())
		})
	}
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	t.Parallel()

	ctx := trace.ContextWithSpan(context.Background(), trace.SpanFromContext(context.Background()))

	assert.Empty(t, TraceIDFromContext(ctx))
	assert.Empty(t, SpanIDFromContext(ctx))
}

func TestInjectTraceContext_NoSpan(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://backend", nil)
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		InjectTraceContext(req.Context(), req)
	})
	assert.Empty(t, req.Header.Get("traceparent"))
}

func TestExtractTraceContext_NoHeaders(t *testing.T) {
	t.Parallel()

	ctx := ExtractTraceContext(context.Background(), http.Header{})
	assert.False(t, trace.SpanContextFromContext(ctx).IsValid())
}
