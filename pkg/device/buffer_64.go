//go:build linux && (amd64 || arm64 || riscv64 || ppc64le || loong64 || mips64le || s390x)

package device

import "golang.org/x/sys/unix"

// v4l2Buffer mirrors struct v4l2_buffer on 64-bit targets, size 88.
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
	_         uint32
	Length    uint32
	Reserved2 uint32
	RequestFD int32
}
