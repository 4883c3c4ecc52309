package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// Stream writes frames to a continuous byte stream, optionally wrapping each
// one in a multipart header block and a trailing boundary.
type Stream struct {
	w         *bufio.Writer
	closer    io.Closer
	multipart bool
	boundary  string
}

func NewStream(w io.Writer, multipart bool, boundary string) *Stream {
	if boundary == "" {
		boundary = DefaultBoundary
	}
	s := &Stream{
		w:         bufio.NewWriterSize(w, 64*1024),
		multipart: multipart,
		boundary:  boundary,
	}
	if c, ok := w.(io.Closer); ok && w != os.Stdout {
		s.closer = c
	}
	return s
}

func NewStdout(multipart bool, boundary string) *Stream {
	return NewStream(os.Stdout, multipart, boundary)
}

func (s *Stream) WriteFrame(frame []byte) error {
	if s.multipart {
		if _, err := fmt.Fprintf(s.w, "Content-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
			return err
		}
	}
	if _, err := s.w.Write(frame); err != nil {
		return err
	}
	if s.multipart {
		if _, err := fmt.Fprintf(s.w, "\r\n--%s\r\n", s.boundary); err != nil {
			return err
		}
	}

	return s.w.Flush()
}

func (s *Stream) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
