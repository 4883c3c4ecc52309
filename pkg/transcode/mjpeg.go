package transcode

import (
	"bytes"
	"errors"
	"fmt"
)

const (
	markerSOI = 0xd8
	markerEOI = 0xd9
	markerSOS = 0xda
	markerDHT = 0xc4
)

var (
	ErrNotJPEG   = errors.New("frame does not start with SOI")
	ErrTruncated = errors.New("frame ends inside a marker segment")
	ErrNoScan    = errors.New("frame has no start of scan")
)

type huffmanTable struct {
	class byte
	bits  [16]byte
	vals  []byte
}

// Typical tables from ITU T.81 Annex K.3. Most UVC cameras omit them from
// MJPEG frames and expect the decoder to assume these.
var defaultTables = []huffmanTable{
	{
		class: 0x00,
		bits:  [16]byte{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		vals:  []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	{
		class: 0x10,
		bits:  [16]byte{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 0x7d},
		vals: []byte{
			0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12, 0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
			0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08, 0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
			0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
			0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
			0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
			0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
			0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
			0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
			0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
			0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	},
	{
		class: 0x01,
		bits:  [16]byte{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		vals:  []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	{
		class: 0x11,
		bits:  [16]byte{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 0x77},
		vals: []byte{
			0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21, 0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
			0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91, 0xa1, 0xb1, 0xc1, 0x09, 0x23, 0x33, 0x52, 0xf0,
			0x15, 0x62, 0x72, 0xd1, 0x0a, 0x16, 0x24, 0x34, 0xe1, 0x25, 0xf1, 0x17, 0x18, 0x19, 0x1a, 0x26,
			0x27, 0x28, 0x29, 0x2a, 0x35, 0x36, 0x37, 0x38, 0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
			0x49, 0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
			0x69, 0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
			0x88, 0x89, 0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5,
			0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3,
			0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda,
			0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	},
}

// dhtSegment is the complete DHT marker segment holding defaultTables.
var dhtSegment = buildDHT(defaultTables)

func buildDHT(tables []huffmanTable) []byte {
	length := 2
	for _, t := range tables {
		length += 1 + len(t.bits) + len(t.vals)
	}

	seg := make([]byte, 0, 2+length)
	seg = append(seg, 0xff, markerDHT, byte(length>>8), byte(length))
	for _, t := range tables {
		seg = append(seg, t.class)
		seg = append(seg, t.bits[:]...)
		seg = append(seg, t.vals...)
	}
	return seg
}

// MJPEGToJPEG turns a motion JPEG frame into a standalone JPEG file by
// inserting the default Huffman tables in front of the first scan when the
// frame defines none. Frames that already carry a DHT are copied unchanged.
func MJPEGToJPEG(frame []byte) ([]byte, error) {
	sos, hasDHT, err := scanMarkers(frame)
	if err != nil {
		return nil, err
	}
	if hasDHT {
		return bytes.Clone(frame), nil
	}

	out := make([]byte, 0, len(frame)+len(dhtSegment))
	out = append(out, frame[:sos]...)
	out = append(out, dhtSegment...)
	out = append(out, frame[sos:]...)
	return out, nil
}

// scanMarkers walks the marker segments up to the first SOS and returns its
// offset and whether a DHT segment precedes it.
func scanMarkers(frame []byte) (int, bool, error) {
	if len(frame) < 4 || frame[0] != 0xff || frame[1] != markerSOI {
		return 0, false, ErrNotJPEG
	}

	hasDHT := false
	i := 2
	for {
		// fill bytes may precede a marker
		for i < len(frame) && frame[i] == 0xff && i+1 < len(frame) && frame[i+1] == 0xff {
			i++
		}
		if i+1 >= len(frame) {
			return 0, false, ErrNoScan
		}
		if frame[i] != 0xff {
			return 0, false, fmt.Errorf("%w: expected marker at offset %d, got 0x%02x", ErrNotJPEG, i, frame[i])
		}

		marker := frame[i+1]
		switch {
		case marker == markerSOS:
			return i, hasDHT, nil
		case marker == markerEOI:
			return 0, false, ErrNoScan
		case marker == markerDHT:
			hasDHT = true
		case marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			// standalone markers carry no length
			i += 2
			continue
		}

		if i+3 >= len(frame) {
			return 0, false, ErrTruncated
		}
		length := int(frame[i+2])<<8 | int(frame[i+3])
		if length < 2 || i+2+length > len(frame) {
			return 0, false, ErrTruncated
		}
		i += 2 + length
	}
}
