// Package sink delivers encoded frames to files, streams and callbacks.
package sink

import (
	"errors"
	"strings"

	"go.uber.org/zap"

	"v4l2jpeg/pkg/capture"
)

const (
	DefaultPattern  = "dump_%d.jpg"
	DefaultBoundary = "v4l2jpegboundary"
	DefaultInfoFile = "info.json"

	DefaultFilePerm = 0660
	DefaultDirPerm  = 0750

	StdoutTarget = "-"
)

// Options selects and parameterizes a sink.
type Options struct {
	// Output is a file pattern, StdoutTarget or a path ending in .avi.
	Output    string
	Multipart bool
	Boundary  string

	// Manifest makes the file sink keep an info.json for SessionID.
	Manifest  bool
	SessionID string
}

// New opens the sink named by opts.Output for frames of format f.
func New(opts Options, f capture.Format, fps int, logger *zap.SugaredLogger) (capture.Sink, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	switch {
	case opts.Output == StdoutTarget:
		return NewStdout(opts.Multipart, opts.Boundary), nil
	case strings.HasSuffix(strings.ToLower(opts.Output), ".avi"):
		return NewAVI(opts.Output, int(f.Width), int(f.Height), fps, logger)
	}

	pattern := opts.Output
	if pattern == "" {
		pattern = DefaultPattern
	}
	var fileOpts []FileOption
	if opts.Manifest {
		fileOpts = append(fileOpts, WithManifest(opts.SessionID))
	}
	return NewFile(pattern, logger, fileOpts...)
}

type tee struct {
	sinks []capture.Sink
}

// Tee delivers every frame to each sink in order and stops at the first
// failure.
func Tee(sinks ...capture.Sink) capture.Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &tee{sinks: sinks}
}

func (t *tee) WriteFrame(frame []byte) error {
	for _, s := range t.sinks {
		if err := s.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

func (t *tee) Close() error {
	var errs []error
	for _, s := range t.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
