package capture

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultDevice      = "/dev/video0"
	DefaultWidth       = 160
	DefaultHeight      = 120
	DefaultFPS         = 25
	DefaultBufferCount = 4
	DefaultWaitTimeout = time.Second

	// Unbounded capture count.
	Unbounded = -1

	minMappedBuffers = 2
)

// PixelFormat is a V4L2 FourCC code.
type PixelFormat uint32

var (
	PixelFmtMJPEG = FourCC("MJPG")
	PixelFmtJPEG  = FourCC("JPEG")
	PixelFmtYUYV  = FourCC("YUYV")
	PixelFmtRGB24 = FourCC("RGB3")
)

var pixelFormatNames = map[string]PixelFormat{
	"mjpeg": PixelFmtMJPEG,
	"jpeg":  PixelFmtJPEG,
	"yuyv":  PixelFmtYUYV,
	"rgb24": PixelFmtRGB24,
}

func FourCC(s string) PixelFormat {
	var b [4]byte
	copy(b[:], s)
	return PixelFormat(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
}

func (p PixelFormat) String() string {
	b := []byte{byte(p), byte(p >> 8), byte(p >> 16), byte(p >> 24)}
	return strings.TrimRight(string(b), "\x00 ")
}

// ParsePixelFormat accepts a short name (mjpeg, jpeg, yuyv, rgb24) or a raw FourCC.
func ParsePixelFormat(s string) (PixelFormat, error) {
	if p, ok := pixelFormatNames[strings.ToLower(s)]; ok {
		return p, nil
	}
	if len(s) == 4 {
		return FourCC(s), nil
	}
	return 0, fmt.Errorf("unknown pixel format %q", s)
}

// IOMethod selects how frame buffers are exchanged with the driver.
type IOMethod int

const (
	IOMmap IOMethod = iota
	IORead
	IOUserPtr
)

func (m IOMethod) String() string {
	switch m {
	case IOMmap:
		return "mmap"
	case IORead:
		return "read"
	case IOUserPtr:
		return "userptr"
	}
	return fmt.Sprintf("IOMethod(%d)", int(m))
}

func ParseIOMethod(s string) (IOMethod, error) {
	switch strings.ToLower(s) {
	case "", "mmap":
		return IOMmap, nil
	case "read":
		return IORead, nil
	case "userptr":
		return IOUserPtr, nil
	}
	return 0, fmt.Errorf("unknown io method %q", s)
}

// Format is the negotiated image format of a device.
type Format struct {
	Width        uint32
	Height       uint32
	PixelFormat  PixelFormat
	BytesPerLine uint32
	SizeImage    uint32
}

func (f Format) String() string {
	return fmt.Sprintf("%dx%d %s", f.Width, f.Height, f.PixelFormat)
}

// Config is the requested capture configuration. It is only read before
// streaming starts; the negotiated Format supersedes Width, Height and
// PixelFormat for the rest of the session. Count is the number of frames to
// capture, Unbounded (<0) captures until stopped.
type Config struct {
	Device      string
	Width       int
	Height      int
	PixelFormat PixelFormat
	FPS         int
	Count       int
	IO          IOMethod
	Buffers     uint32
	WaitTimeout time.Duration
	Controls    map[uint32]int32
}

func DefaultConfig() Config {
	return Config{
		Device:      DefaultDevice,
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		PixelFormat: PixelFmtMJPEG,
		FPS:         DefaultFPS,
		Count:       Unbounded,
		IO:          IOMmap,
		Buffers:     DefaultBufferCount,
		WaitTimeout: DefaultWaitTimeout,
	}
}

func (c *Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("device path can not be empty")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	}
	if c.PixelFormat == 0 {
		return fmt.Errorf("pixel format is required")
	}
	if c.Buffers == 0 {
		c.Buffers = DefaultBufferCount
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}

	return nil
}
