//go:build linux

// Package device drives V4L2 capture devices through ioctl, mmap and poll.
package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	"unsafe"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"v4l2jpeg/pkg/capture"
)

// Device is an open V4L2 device node. The node is opened non-blocking, so
// Dequeue and Read report capture.ErrWouldBlock instead of sleeping.
type Device struct {
	path   string
	fd     int
	wakeFd int
	closed bool
	logger *zap.SugaredLogger
}

var _ capture.Device = (*Device)(nil)

// Opener returns a capture.Opener for V4L2 device nodes.
func Opener(logger *zap.SugaredLogger) capture.Opener {
	return func(path string) (capture.Device, error) {
		return Open(path, logger)
	}
}

func Open(path string, logger *zap.SugaredLogger) (*Device, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", capture.ErrNotADevice, path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot identify %s: %w", capture.ErrOpenFailed, path, err)
	}
	if st.Mode()&os.ModeCharDevice == 0 {
		return nil, fmt.Errorf("%w: %s", capture.ErrNotADevice, path)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %w", capture.ErrOpenFailed, path, err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: eventfd: %w", capture.ErrOpenFailed, err)
	}

	return &Device{path: path, fd: fd, wakeFd: wakeFd, logger: logger}, nil
}

func (d *Device) Path() string {
	return d.path
}

// Fd returns the device file descriptor for direct go4vl calls.
func (d *Device) Fd() uintptr {
	return uintptr(d.fd)
}

func (d *Device) Capabilities() (capture.Capabilities, error) {
	c, err := v4l2.GetCapability(d.Fd())
	if err != nil {
		return capture.Capabilities{}, err
	}
	return capture.Capabilities{
		Driver:       c.Driver,
		Card:         c.Card,
		BusInfo:      c.BusInfo,
		VideoCapture: c.IsVideoCaptureSupported(),
		ReadWrite:    c.IsReadWriteSupported(),
		Streaming:    c.IsStreamingSupported(),
	}, nil
}

func fromPixFormat(f v4l2.PixFormat) capture.Format {
	return capture.Format{
		Width:        f.Width,
		Height:       f.Height,
		PixelFormat:  capture.PixelFormat(f.PixelFormat),
		BytesPerLine: f.BytesPerLine,
		SizeImage:    f.SizeImage,
	}
}

func (d *Device) Format() (capture.Format, error) {
	f, err := v4l2.GetPixFormat(d.Fd())
	if err != nil {
		return capture.Format{}, err
	}
	return fromPixFormat(f), nil
}

// SetFormat applies f on top of the current format and reads back what the
// driver chose.
func (d *Device) SetFormat(f capture.Format) (capture.Format, error) {
	pix, err := v4l2.GetPixFormat(d.Fd())
	if err != nil {
		return capture.Format{}, err
	}
	pix.Width = f.Width
	pix.Height = f.Height
	pix.PixelFormat = v4l2.FourCCType(f.PixelFormat)
	pix.Field = v4l2.FieldNone
	if err := v4l2.SetPixFormat(d.Fd(), pix); err != nil {
		return capture.Format{}, err
	}

	return d.Format()
}

func (d *Device) SetControl(id uint32, value int32) error {
	return v4l2.SetControlValue(d.Fd(), v4l2.CtrlID(id), v4l2.CtrlValue(value))
}

func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	req := requestBuffers{Count: count, Type: bufTypeVideoCapture, Memory: memoryMmap}
	if err := xioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		if errors.Is(err, unix.EINVAL) {
			return 0, fmt.Errorf("%w: %w", capture.ErrMappingUnsupported, err)
		}
		return 0, err
	}
	return req.Count, nil
}

func (d *Device) QueryBuffer(index uint32) (capture.BufferInfo, error) {
	buf := v4l2Buffer{Index: index, Type: bufTypeVideoCapture, Memory: memoryMmap}
	if err := xioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf)); err != nil {
		return capture.BufferInfo{}, err
	}
	return capture.BufferInfo{Index: buf.Index, Length: buf.Length, Offset: buf.Offset}, nil
}

func (d *Device) MapBuffer(info capture.BufferInfo) ([]byte, error) {
	return unix.Mmap(d.fd, int64(info.Offset), int(info.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *Device) UnmapBuffer(data []byte) error {
	return unix.Munmap(data)
}

func (d *Device) Enqueue(index uint32) error {
	buf := v4l2Buffer{Index: index, Type: bufTypeVideoCapture, Memory: memoryMmap}
	return xioctl(d.fd, vidiocQBuf, unsafe.Pointer(&buf))
}

func (d *Device) Dequeue() (uint32, uint32, error) {
	buf := v4l2Buffer{Type: bufTypeVideoCapture, Memory: memoryMmap}
	if err := xioctl(d.fd, vidiocDQBuf, unsafe.Pointer(&buf)); err != nil {
		if errors.Is(err, unix.EAGAIN) {
			return 0, 0, capture.ErrWouldBlock
		}
		return 0, 0, err
	}
	return buf.Index, buf.BytesUsed, nil
}

func (d *Device) StreamOn() error {
	typ := uint32(bufTypeVideoCapture)
	return xioctl(d.fd, vidiocStreamOn, unsafe.Pointer(&typ))
}

func (d *Device) StreamOff() error {
	typ := uint32(bufTypeVideoCapture)
	return xioctl(d.fd, vidiocStreamOff, unsafe.Pointer(&typ))
}

func (d *Device) Read(p []byte) (int, error) {
	n, err := unix.Read(d.fd, p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, unix.EAGAIN):
		return 0, capture.ErrWouldBlock
	case errors.Is(err, unix.EINTR):
		return 0, capture.ErrInterrupted
	}
	return 0, err
}

// Wait polls the device for a filled buffer. Cancelling ctx writes to the
// wake eventfd, which ends the poll early.
func (d *Device) Wait(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, d.wake)
	defer stop()

	fds := []unix.PollFd{
		{Fd: int32(d.fd), Events: unix.POLLIN},
		{Fd: int32(d.wakeFd), Events: unix.POLLIN},
	}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	switch {
	case errors.Is(err, unix.EINTR):
		return capture.ErrInterrupted
	case err != nil:
		return err
	case n == 0:
		return capture.ErrWaitTimeout
	}

	if fds[1].Revents&unix.POLLIN != 0 {
		d.drainWake()
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return fmt.Errorf("poll %s: revents 0x%x", d.path, fds[0].Revents)
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		return capture.ErrInterrupted
	}

	return nil
}

func (d *Device) wake() {
	var one [8]byte
	one[0] = 1
	if _, err := unix.Write(d.wakeFd, one[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		d.logger.Warnf("wake %s: %s", d.path, err)
	}
}

func (d *Device) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(d.wakeFd, buf[:])
}

// Close releases the device node. Closing a closed Device is a no-op.
func (d *Device) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if err := unix.Close(d.wakeFd); err != nil {
		errs = append(errs, err)
	}
	if err := unix.Close(d.fd); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %s: %w", capture.ErrCloseFailed, d.path, err)
	}
	return nil
}
