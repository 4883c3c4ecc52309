package sink_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/sink"
)

func TestValidatePattern(t *testing.T) {
	for _, p := range []string{"dump_%d.jpg", "out/frame-%05d.jpg", "100%%_%x.jpg"} {
		assert.NoError(t, sink.ValidatePattern(p), p)
	}
	for _, p := range []string{"dump.jpg", "dump_%d_%d.jpg", "dump_%s.jpg", "%v.jpg"} {
		assert.ErrorIs(t, sink.ValidatePattern(p), sink.ErrInvalidPattern, p)
	}
}

func TestFileSink(t *testing.T) {
	dir := t.TempDir()
	f, err := sink.NewFile(filepath.Join(dir, "dump_%d.jpg"), zaptest.NewLogger(t).Sugar(), sink.WithManifest("session-1"))
	require.NoError(t, err)

	for _, frame := range []string{"zero", "one", "two"} {
		require.NoError(t, f.WriteFrame([]byte(frame)))
	}
	require.NoError(t, f.Close())
	assert.Equal(t, 3, f.Seq())

	for i, want := range []string{"zero", "one", "two"} {
		data, err := os.ReadFile(filepath.Join(dir, "dump_"+string(rune('0'+i))+".jpg"))
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}

	info, err := sink.LoadInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, "session-1", info.SessionID)
	assert.Equal(t, 3, info.Frames)
	assert.Equal(t, "dump_2.jpg", info.LatestFile)
	assert.Equal(t, f.Info().UpdateAt.Unix(), info.UpdateAt.Unix())
}

func TestFileSinkCountsFailedWrites(t *testing.T) {
	dir := t.TempDir()
	f, err := sink.NewFile(filepath.Join(dir, "dump_%d.jpg"), nil)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "dump_1.jpg"), 0750))
	require.NoError(t, f.WriteFrame([]byte("a")))
	assert.Error(t, f.WriteFrame([]byte("b")))
	assert.Equal(t, 2, f.Seq())

	require.NoError(t, f.WriteFrame([]byte("c")))
	data, err := os.ReadFile(filepath.Join(dir, "dump_2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "c", string(data))
}

func TestFileSinkWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	f, err := sink.NewFile(filepath.Join(dir, "dump_%d.jpg"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NoError(t, f.WriteFrame([]byte("a")))
	require.NoError(t, f.Close())

	_, err = sink.LoadInfo(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestFileSinkManifestFailureKeepsFrames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, sink.DefaultInfoFile), 0750))
	f, err := sink.NewFile(filepath.Join(dir, "dump_%d.jpg"), zaptest.NewLogger(t).Sugar(), sink.WithManifest("session-1"))
	require.NoError(t, err)

	require.NoError(t, f.WriteFrame([]byte("a")))
	require.NoError(t, f.WriteFrame([]byte("b")))
	assert.Equal(t, 2, f.Info().Frames)
	data, err := os.ReadFile(filepath.Join(dir, "dump_1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}

func TestStreamSink(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewStream(&buf, false, "")
	require.NoError(t, s.WriteFrame([]byte("abc")))
	require.NoError(t, s.WriteFrame([]byte("de")))
	require.NoError(t, s.Close())
	assert.Equal(t, "abcde", buf.String())
}

func TestStreamSinkMultipart(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewStream(&buf, true, "frame")
	require.NoError(t, s.WriteFrame([]byte("abc")))
	assert.Equal(t, "Content-Type: image/jpeg\r\nContent-Length: 3\r\n\r\nabc\r\n--frame\r\n", buf.String(),
		"frames are flushed as soon as they are written")

	require.NoError(t, s.WriteFrame([]byte{}))
	require.NoError(t, s.Close())
	assert.Equal(t, "Content-Type: image/jpeg\r\nContent-Length: 3\r\n\r\nabc\r\n--frame\r\n"+
		"Content-Type: image/jpeg\r\nContent-Length: 0\r\n\r\n\r\n--frame\r\n", buf.String())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestStreamSinkWriteFailure(t *testing.T) {
	s := sink.NewStream(failingWriter{}, false, "")
	assert.Error(t, s.WriteFrame([]byte("abc")))
}

func TestCallbackSink(t *testing.T) {
	var got []int
	c := sink.NewCallback(func(data []byte, size int) {
		assert.Len(t, data, size)
		got = append(got, size)
	})
	require.NoError(t, c.WriteFrame([]byte("abc")))
	require.NoError(t, c.WriteFrame([]byte("a")))
	assert.Equal(t, []int{3, 1}, got)

	assert.NoError(t, sink.NewCallback(nil).WriteFrame([]byte("dropped")))
}

func TestNewSelectsVariant(t *testing.T) {
	dir := t.TempDir()
	f := capture.Format{Width: 160, Height: 120, PixelFormat: capture.PixelFmtMJPEG}
	logger := zaptest.NewLogger(t).Sugar()

	s, err := sink.New(sink.Options{Output: sink.StdoutTarget}, f, 25, logger)
	require.NoError(t, err)
	assert.IsType(t, &sink.Stream{}, s)

	s, err = sink.New(sink.Options{Output: filepath.Join(dir, "out.AVI")}, f, 25, logger)
	require.NoError(t, err)
	assert.IsType(t, &sink.AVI{}, s)
	require.NoError(t, s.Close())

	s, err = sink.New(sink.Options{Output: filepath.Join(dir, "f_%d.jpg"), Manifest: true, SessionID: "session-2"}, f, 25, logger)
	require.NoError(t, err)
	require.IsType(t, &sink.File{}, s)
	require.NoError(t, s.WriteFrame([]byte("x")))
	info, err := sink.LoadInfo(dir)
	require.NoError(t, err)
	assert.Equal(t, "session-2", info.SessionID)

	_, err = sink.New(sink.Options{Output: filepath.Join(dir, "no-verb.jpg")}, f, 25, logger)
	assert.ErrorIs(t, err, sink.ErrInvalidPattern)
}

type closeErrSink struct {
	sink.Callback
	err error
}

func (s *closeErrSink) Close() error {
	return s.err
}

func TestTee(t *testing.T) {
	var a, b []string
	s := sink.Tee(
		sink.NewCallback(func(data []byte, _ int) { a = append(a, string(data)) }),
		&closeErrSink{Callback: *sink.NewCallback(func(data []byte, _ int) { b = append(b, string(data)) }), err: errors.New("close")},
	)
	require.NoError(t, s.WriteFrame([]byte("x")))
	require.NoError(t, s.WriteFrame([]byte("y")))
	assert.Equal(t, []string{"x", "y"}, a)
	assert.Equal(t, []string{"x", "y"}, b)
	assert.EqualError(t, s.Close(), "close")

	single := sink.NewCallback(nil)
	assert.Same(t, single, sink.Tee(single))
}
