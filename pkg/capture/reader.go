package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Transcoder converts one captured frame into the output encoding. The
// returned slice must not alias frame.
type Transcoder func(frame []byte) ([]byte, error)

// Sink receives encoded frames in capture order.
type Sink interface {
	WriteFrame(frame []byte) error
	Close() error
}

// FrameReader extracts one frame per ReadFrame call.
type FrameReader struct {
	dev       Device
	pool      *BufferPool
	timeout   time.Duration
	transcode Transcoder
	sink      Sink
	stats     *Stats
	logger    *zap.SugaredLogger
}

func NewFrameReader(dev Device, pool *BufferPool, timeout time.Duration, transcode Transcoder, sink Sink, stats *Stats, logger *zap.SugaredLogger) *FrameReader {
	if stats == nil {
		stats = &Stats{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &FrameReader{
		dev:       dev,
		pool:      pool,
		timeout:   timeout,
		transcode: transcode,
		sink:      sink,
		stats:     stats,
		logger:    logger,
	}
}

// ReadFrame waits for the device, extracts exactly one frame and delivers
// it. Timeouts and would-block results are retried without counting as a
// frame. It returns ctx.Err() when ctx is done while waiting.
func (r *FrameReader) ReadFrame(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.dev.Wait(ctx, r.timeout)
		switch {
		case err == nil:
		case errors.Is(err, ErrWaitTimeout):
			r.stats.timeout()
			r.logger.Warn("select timeout")
			continue
		case errors.Is(err, ErrInterrupted):
			continue
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return fmt.Errorf("%w: %w", ErrWaitFailed, err)
		}

		ok, err := r.readOnce()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		r.stats.retry()
	}
}

// readOnce returns false when the device had nothing to hand out yet.
func (r *FrameReader) readOnce() (bool, error) {
	if r.pool.Method() == IORead {
		return r.read()
	}
	return r.dequeue()
}

func (r *FrameReader) read() (bool, error) {
	b, err := r.pool.Buffer(0)
	if err != nil {
		return false, err
	}
	n, err := r.dev.Read(b.Data)
	if err != nil {
		if errors.Is(err, ErrWouldBlock) || errors.Is(err, ErrInterrupted) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	return true, r.process(b.Data[:n])
}

func (r *FrameReader) dequeue() (bool, error) {
	index, used, err := r.dev.Dequeue()
	if err != nil {
		if errors.Is(err, ErrWouldBlock) || errors.Is(err, ErrInterrupted) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrDequeueFailed, err)
	}

	b, err := r.pool.Acquire(index)
	if err != nil {
		return false, err
	}
	if int(used) > b.Length {
		return false, fmt.Errorf("%w: buffer %d reports %d bytes used of %d", ErrInvalidBuffer, index, used, b.Length)
	}
	if err := r.process(b.Data[:used]); err != nil {
		return false, err
	}

	return true, r.pool.Requeue(index)
}

func (r *FrameReader) process(frame []byte) error {
	out, err := r.transcode(frame)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	r.logger.Debugf("process image: %d -> %d", len(frame), len(out))

	if err := r.sink.WriteFrame(out); err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailed, err)
	}
	r.stats.frame(len(frame), len(out), time.Now())

	return nil
}
