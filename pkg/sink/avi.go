package sink

import (
	"os"
	"path/filepath"

	"github.com/icza/mjpeg"
	"go.uber.org/zap"
)

// AVI muxes JPEG frames into an MJPEG AVI file.
type AVI struct {
	path   string
	cnt    int
	aw     mjpeg.AviWriter
	logger *zap.SugaredLogger
}

func NewAVI(path string, width, height, fps int, logger *zap.SugaredLogger) (*AVI, error) {
	if fps <= 0 {
		fps = 25
	}
	if err := os.MkdirAll(filepath.Dir(path), DefaultDirPerm); err != nil {
		return nil, err
	}
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &AVI{path: path, aw: aw, logger: logger}, nil
}

func (a *AVI) WriteFrame(frame []byte) error {
	if err := a.aw.AddFrame(frame); err != nil {
		return err
	}
	a.cnt++

	return nil
}

func (a *AVI) Close() error {
	if err := a.aw.Close(); err != nil {
		return err
	}
	a.logger.Infof("wrote %d frames to %s", a.cnt, a.path)
	return nil
}

func (a *AVI) Count() int {
	return a.cnt
}
