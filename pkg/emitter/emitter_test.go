package emitter

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/capture/capturetest"
)

func TestEmitter(t *testing.T) {
	frame := make([]byte, 16*8*2)
	dev := capturetest.NewDevice("",
		capturetest.Frame(frame),
		capturetest.Frame(frame),
	)
	cfg := capture.DefaultConfig()
	cfg.Width, cfg.Height = 16, 8
	cfg.PixelFormat = capture.PixelFmtYUYV
	cfg.Count = 2
	cfg.FPS = 0

	e := New(cfg, dev.Opener(), zaptest.NewLogger(t).Sugar())
	var sizes []int
	e.On(func(data []byte, size int) {
		assert.Len(t, data, size)
		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
		sizes = append(sizes, size)
	})
	var calls int
	e.On(func([]byte, int) { calls++ })

	require.NoError(t, e.Connect(context.Background()))
	assert.Len(t, sizes, 2)
	assert.Equal(t, 2, calls)
	assert.Equal(t, capture.StateClosed, e.Session().State())
}

func TestEmitterWithoutHandlers(t *testing.T) {
	dev := capturetest.NewDevice("", capturetest.Frame(make([]byte, 16*8*2)))
	cfg := capture.DefaultConfig()
	cfg.Width, cfg.Height = 16, 8
	cfg.PixelFormat = capture.PixelFmtYUYV
	cfg.Count = 1

	e := New(cfg, dev.Opener(), nil)
	require.NoError(t, e.Connect(context.Background()))
	assert.EqualValues(t, 1, e.Session().Stats().Snapshot().Frames)
}
