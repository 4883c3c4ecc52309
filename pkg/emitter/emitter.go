// Package emitter embeds a capture session in another program and hands
// every JPEG frame to registered handlers.
package emitter

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/sink"
	"v4l2jpeg/pkg/transcode"
)

var ErrConnected = errors.New("emitter is already connected")

type Emitter struct {
	cfg     capture.Config
	open    capture.Opener
	quality int
	logger  *zap.SugaredLogger

	mu        sync.RWMutex
	handlers  []sink.FrameHandler
	connected bool
	session   *capture.Session
}

func New(cfg capture.Config, open capture.Opener, logger *zap.SugaredLogger) *Emitter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Emitter{cfg: cfg, open: open, quality: transcode.DefaultQuality, logger: logger}
}

// SetQuality sets the JPEG quality used for raw pixel formats.
func (e *Emitter) SetQuality(q int) {
	e.quality = q
}

// On registers h for every frame. Handlers run on the capture goroutine and
// must not retain data after returning.
func (e *Emitter) On(h sink.FrameHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

func (e *Emitter) emit(data []byte, size int) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, h := range e.handlers {
		h(data, size)
	}
}

// Session returns the running session, nil before Connect.
func (e *Emitter) Session() *capture.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// Connect captures until the frame count is reached or ctx is done.
func (e *Emitter) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.connected {
		e.mu.Unlock()
		return ErrConnected
	}
	e.connected = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.connected = false
		e.mu.Unlock()
	}()

	session, err := capture.NewSession(capture.Options{
		Config: e.cfg,
		Open:   e.open,
		NewTranscoder: func(f capture.Format) (capture.Transcoder, error) {
			return transcode.New(f, e.quality)
		},
		NewSink: func(capture.Format) (capture.Sink, error) {
			return sink.NewCallback(e.emit), nil
		},
		Logger: e.logger,
	})
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	return session.Run(ctx)
}
