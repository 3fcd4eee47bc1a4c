package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittocache/internal/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dittocache", cfg.ServiceName)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()

	shutdown, err := Init(ctx, DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
}

func TestSpansWithoutProvider(t *testing.T) {
	ctx := context.Background()

	ctx, span := StartRPCSpan(ctx, "QueueSource", 1, 99)
	require.NotNil(t, span)
	RecordError(ctx, errors.New("boom"))
	RecordError(ctx, nil)
	AddEvent(ctx, EventStreamable, Chunks(2))
	span.End()

	_, span = StartTransferSpan(context.Background(), "file$a", "file")
	span.End()

	_, span = StartCacheSpan(context.Background(), SpanCacheLocate, "", CacheHit(true))
	span.End()

	// No-op spans carry no ids.
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestNewSampler(t *testing.T) {
	assert.Contains(t, newSampler(1.5).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, newSampler(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, newSampler(0.25).Description(), "root:TraceIDRatioBased{0.25}")
	assert.True(t, strings.HasPrefix(newSampler(0.25).Description(), "ParentBased"))
}

func TestTracerBeforeInit(t *testing.T) {
	assert.NotNil(t, Tracer())
}

func TestLogContextWithoutTrace(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, LogContext(ctx))
	assert.Nil(t, logger.FromContext(LogContext(ctx)))
}

func TestProfiling(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown())
	assert.False(t, IsProfilingEnabled())

	_, err = InitProfiling(ProfilingConfig{Enabled: true, ProfileTypes: []string{"cpu", "sideways"}})
	assert.Error(t, err)

	pt, err := parseProfileType("inuse_space")
	require.NoError(t, err)
	assert.NotEmpty(t, pt)
}
