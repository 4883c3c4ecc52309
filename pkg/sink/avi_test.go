package sink_test

import (
	"bytes"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"v4l2jpeg/pkg/sink"
)

func TestAVISink(t *testing.T) {
	var frame bytes.Buffer
	require.NoError(t, jpeg.Encode(&frame, image.NewGray(image.Rect(0, 0, 16, 16)), nil))

	path := filepath.Join(t.TempDir(), "videos", "capture.avi")
	a, err := sink.NewAVI(path, 16, 16, 10, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, a.WriteFrame(frame.Bytes()))
	}
	require.NoError(t, a.Close())
	assert.Equal(t, 3, a.Count())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(data), 12)
	assert.Equal(t, "RIFF", string(data[:4]))
	assert.Equal(t, "AVI ", string(data[8:12]))
}
