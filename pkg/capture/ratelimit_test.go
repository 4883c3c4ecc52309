package capture_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"v4l2jpeg/pkg/capture"
)

func TestRateLimiterInterval(t *testing.T) {
	assert.Equal(t, 40*time.Millisecond, capture.NewRateLimiter(25).Interval())
	assert.Zero(t, capture.NewRateLimiter(0).Interval())
	assert.Zero(t, capture.NewRateLimiter(-5).Interval())
}

func TestRateLimiterWait(t *testing.T) {
	r := capture.NewRateLimiter(50)
	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRateLimiterCancel(t *testing.T) {
	r := capture.NewRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, r.Wait(context.Background()))
}

func TestRateLimiterDisabled(t *testing.T) {
	r := capture.NewRateLimiter(0)
	require.NoError(t, r.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Wait(ctx), context.Canceled)
}
