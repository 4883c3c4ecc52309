package capture

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Capabilities is the subset of the device capability report the engine needs.
type Capabilities struct {
	Driver  string
	Card    string
	BusInfo string

	VideoCapture bool
	ReadWrite    bool
	Streaming    bool
}

// BufferInfo is the driver's description of one streaming buffer.
type BufferInfo struct {
	Index  uint32
	Length uint32
	Offset uint32
}

// Device is the control protocol of a streaming capture device.
//
// Implementations report "nothing ready" conditions with ErrWouldBlock,
// ErrInterrupted and ErrWaitTimeout; any other error is fatal for the session.
type Device interface {
	Path() string
	Capabilities() (Capabilities, error)
	Format() (Format, error)
	// SetFormat requests f and returns the format the driver actually applied.
	SetFormat(f Format) (Format, error)
	SetControl(id uint32, value int32) error

	RequestBuffers(count uint32) (uint32, error)
	QueryBuffer(index uint32) (BufferInfo, error)
	MapBuffer(info BufferInfo) ([]byte, error)
	UnmapBuffer(data []byte) error
	Enqueue(index uint32) error
	// Dequeue returns the index of a filled buffer and its number of valid bytes.
	Dequeue() (index uint32, bytesUsed uint32, err error)
	StreamOn() error
	StreamOff() error
	Read(p []byte) (int, error)

	// Wait blocks until the device is readable, timeout elapses or ctx is done.
	Wait(ctx context.Context, timeout time.Duration) error
	Close() error
}

// Opener opens the device node at path. It must fail with ErrNotADevice when
// path is not a character device and ErrOpenFailed on any other open error.
type Opener func(path string) (Device, error)

// checkCapabilities validates that dev can capture video with the given I/O method.
func checkCapabilities(dev Device, method IOMethod) (Capabilities, error) {
	caps, err := dev.Capabilities()
	if err != nil {
		return caps, fmt.Errorf("%w: %s is no valid V4L2 device: %w", ErrUnsupportedDevice, dev.Path(), err)
	}
	if !caps.VideoCapture {
		return caps, fmt.Errorf("%w: %s is no video capture device", ErrUnsupportedDevice, dev.Path())
	}

	switch method {
	case IORead:
		if !caps.ReadWrite {
			return caps, fmt.Errorf("%w: %s does not support read i/o", ErrUnsupportedDevice, dev.Path())
		}
	default:
		if !caps.Streaming {
			return caps, fmt.Errorf("%w: %s does not support streaming i/o", ErrUnsupportedDevice, dev.Path())
		}
	}

	return caps, nil
}

// negotiateFormat asks the device for the requested size and encoding and
// returns what the device applied. Only a refused encoding is fatal.
func negotiateFormat(dev Device, cfg Config, logger *zap.SugaredLogger) (Format, error) {
	current, err := dev.Format()
	if err != nil {
		return Format{}, fmt.Errorf("%w: get format: %w", ErrFormatNegotiationFailed, err)
	}
	if current.PixelFormat != cfg.PixelFormat {
		logger.Infof("device is not using %s before negotiation (current %s)", cfg.PixelFormat, current.PixelFormat)
	}

	want := current
	want.Width = uint32(cfg.Width)
	want.Height = uint32(cfg.Height)
	want.PixelFormat = cfg.PixelFormat

	got, err := dev.SetFormat(want)
	if err != nil {
		return Format{}, fmt.Errorf("%w: set format %s: %w", ErrFormatNegotiationFailed, want, err)
	}
	if got.Width != want.Width {
		logger.Warnf("device reset width to %d", got.Width)
	}
	if got.Height != want.Height {
		logger.Warnf("device reset height to %d", got.Height)
	}
	if got.PixelFormat != cfg.PixelFormat {
		return got, fmt.Errorf("%w: device applied %s instead of %s", ErrFormatNegotiationFailed, got.PixelFormat, cfg.PixelFormat)
	}

	return got, nil
}
