package tracing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitTraceProvider(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	t.Setenv("OTEL_GRPC_ENDPOINT", "")
	t.Setenv("OTEL_JAEGER_ENDPOINT", "")

	shutdown, err := InitTraceProvider("predictor-test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	defer shutdown()

	assert.Equal(t, "predictor-test", ServiceName)
	assert.NotNil(t, TracingProvider)

	ctx, span := NewSpan("test.span", context.Background())
	defer span.End()
	assert.True(t, span.SpanContext().IsValid())
	assert.NotNil(t, ctx)
}

func TestEnvironment(t *testing.T) {
	t.Setenv("OTEL_ENVIRONMENT", "")
	assert.Equal(t, "production", environment())

	t.Setenv("OTEL_ENVIRONMENT", "staging")
	assert.Equal(t, "staging", environment())
}
