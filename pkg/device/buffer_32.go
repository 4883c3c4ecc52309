//go:build linux && (386 || arm || mipsle)

package device

import "golang.org/x/sys/unix"

// v4l2Buffer mirrors struct v4l2_buffer on 32-bit targets, size 68.
type v4l2Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp unix.Timeval
	Timecode  timecode
	Sequence  uint32
	Memory    uint32
	Offset    uint32
	Length    uint32
	Reserved2 uint32
	RequestFD int32
}
