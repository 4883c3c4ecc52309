package utils

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

func TestNewLogger(t *testing.T) {
	l := NewLogger("debug")
	assert.True(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))

	l = NewLogger("warn")
	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))

	l = NewLogger("chatty")
	assert.True(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestSignalContext(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, stop := SignalContext(parent)
	defer stop()

	cancel()
	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestParseAddr(t *testing.T) {
	for in, want := range map[string]string{
		"9999":           ":9999",
		":9999":          ":9999",
		"127.0.0.1:8080": "127.0.0.1:8080",
	} {
		got, err := ParseAddr(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseAddr("")
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	addr, err := Serve(ctx, "test", "127.0.0.1:0", h, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))

	_, err = Serve(ctx, "test", addr.String(), h, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err, "address already in use")
}
