package capture_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/capture/capturetest"
)

func TestBufferPoolMmap(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	pool, err := capture.NewBufferPool(dev, capture.IOMmap, 4, 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	require.Equal(t, 4, pool.Len())
	for i := 0; i < pool.Len(); i++ {
		b, err := pool.Buffer(uint32(i))
		require.NoError(t, err)
		assert.EqualValues(t, i, b.Index)
		assert.Len(t, b.Data, b.Length)
		assert.EqualValues(t, dev.BufferSize, b.Length)
		assert.Equal(t, capture.OwnerProcess, b.Owner())
	}

	_, err = pool.Buffer(4)
	assert.ErrorIs(t, err, capture.ErrInvalidBuffer)

	require.NoError(t, pool.Release())
	assert.Equal(t, 4, dev.Unmapped())
	assert.ErrorIs(t, pool.Release(), capture.ErrReleased)
	_, err = pool.Buffer(0)
	assert.ErrorIs(t, err, capture.ErrReleased)
}

func TestBufferPoolInsufficientBuffers(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	dev.Granted = 1
	_, err := capture.NewBufferPool(dev, capture.IOMmap, 4, 0, zaptest.NewLogger(t).Sugar())
	assert.ErrorIs(t, err, capture.ErrInsufficientBuffers)
	assert.Zero(t, dev.Mapped())
}

func TestBufferPoolMappingUnsupported(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	dev.NoMmap = true
	_, err := capture.NewBufferPool(dev, capture.IOMmap, 4, 0, zaptest.NewLogger(t).Sugar())
	assert.ErrorIs(t, err, capture.ErrMappingUnsupported)
}

func TestBufferPoolMapFailureUnmapsEarlierBuffers(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	dev.FailMapAt = 2
	_, err := capture.NewBufferPool(dev, capture.IOMmap, 4, 0, zaptest.NewLogger(t).Sugar())
	assert.ErrorIs(t, err, capture.ErrMapFailed)
	assert.Equal(t, 2, dev.Mapped())
	assert.Equal(t, 2, dev.Unmapped())
}

func TestBufferPoolShortMapping(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	dev.ShortMapAt = 1
	_, err := capture.NewBufferPool(dev, capture.IOMmap, 4, 0, zaptest.NewLogger(t).Sugar())
	assert.ErrorIs(t, err, capture.ErrMapFailed)
	assert.Equal(t, dev.Mapped(), dev.Unmapped())
}

func TestBufferPoolUnmapFailure(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	pool, err := capture.NewBufferPool(dev, capture.IOMmap, 2, 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	dev.FailUnmap = true
	assert.ErrorIs(t, pool.Release(), capture.ErrUnmapFailed)
}

func TestBufferPoolOwnership(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	pool, err := capture.NewBufferPool(dev, capture.IOMmap, 2, 0, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	_, err = pool.Acquire(0)
	assert.ErrorIs(t, err, capture.ErrInvalidBuffer, "buffer was never queued")

	require.NoError(t, pool.EnqueueAll())
	assert.ErrorIs(t, pool.Requeue(0), capture.ErrInvalidBuffer, "buffer is already queued")

	b, err := pool.Acquire(1)
	require.NoError(t, err)
	assert.Equal(t, capture.OwnerProcess, b.Owner())

	_, err = pool.Acquire(1)
	assert.ErrorIs(t, err, capture.ErrInvalidBuffer, "double dequeue")

	require.NoError(t, pool.Requeue(1))
	assert.Equal(t, capture.OwnerKernel, b.Owner())
	require.NoError(t, pool.Release())
}

func TestBufferPoolRead(t *testing.T) {
	dev := capturetest.NewDevice("/dev/video9")
	pool, err := capture.NewBufferPool(dev, capture.IORead, 4, 38400, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	require.Equal(t, 1, pool.Len())
	b, err := pool.Buffer(0)
	require.NoError(t, err)
	assert.Len(t, b.Data, 38400)
	assert.NotContains(t, dev.Calls(), "reqbufs")

	_, err = capture.NewBufferPool(dev, capture.IORead, 4, 0, zaptest.NewLogger(t).Sugar())
	assert.ErrorIs(t, err, capture.ErrMapFailed)
	require.NoError(t, pool.Release())
}
