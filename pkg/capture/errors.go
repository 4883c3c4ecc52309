package capture

import "errors"

// Fatal errors. Every one of them ends the capture session.
var (
	ErrNotADevice              = errors.New("not a device")
	ErrOpenFailed              = errors.New("cannot open device")
	ErrUnsupportedDevice       = errors.New("unsupported device")
	ErrFormatNegotiationFailed = errors.New("format negotiation failed")
	ErrCloseFailed             = errors.New("cannot close device")
	ErrMappingUnsupported      = errors.New("memory mapping not supported")
	ErrInsufficientBuffers     = errors.New("insufficient buffer memory")
	ErrMapFailed               = errors.New("buffer mapping failed")
	ErrUnmapFailed             = errors.New("buffer unmapping failed")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrStreamFailed            = errors.New("stream control failed")
	ErrEnqueueFailed           = errors.New("enqueue buffer failed")
	ErrDequeueFailed           = errors.New("dequeue buffer failed")
	ErrReadFailed              = errors.New("read frame failed")
	ErrWaitFailed              = errors.New("wait for frame failed")
	ErrInvalidBuffer           = errors.New("invalid buffer")
	ErrTranscodeFailed         = errors.New("transcode failed")
	ErrSinkFailed              = errors.New("output write failed")
	ErrReleased                = errors.New("buffer pool already released")
)

// Retry signals returned by a Device. They never end the session.
var (
	ErrWouldBlock  = errors.New("operation would block")
	ErrInterrupted = errors.New("interrupted")
	ErrWaitTimeout = errors.New("wait timeout")
)

// IsRetry reports whether err only means "nothing ready yet".
func IsRetry(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, ErrInterrupted) || errors.Is(err, ErrWaitTimeout)
}
