package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"v4l2jpeg/pkg/utils/ps"
)

// minFreeBytes is the free space below which the file sink warns at start.
const minFreeBytes = 64 << 20

var (
	ErrInvalidPattern = errors.New("file pattern must contain exactly one integer verb")

	verbRe    = regexp.MustCompile(`%(%|[-+# 0]*[0-9]*(\.[0-9]+)?[a-zA-Z])`)
	intVerbRe = regexp.MustCompile(`^%[-+# 0]*[0-9]*[dxXob]$`)
)

// FilesInfo is the manifest kept next to the frame files.
type FilesInfo struct {
	SessionID  string    `json:"sessionId"`
	Pattern    string    `json:"pattern"`
	Frames     int       `json:"frames"`
	LatestFile string    `json:"latestFile"`
	UpdateAt   time.Time `json:"updateAt"`
}

// File writes every frame to its own file named by a pattern and a
// zero-based sequence number.
type File struct {
	pattern  string
	infoPath string
	seq      int
	info     FilesInfo
	logger   *zap.SugaredLogger
}

type FileOption func(*File)

// WithManifest keeps an info.json manifest for the session next to the
// frame files.
func WithManifest(sessionID string) FileOption {
	return func(f *File) {
		f.infoPath = filepath.Join(filepath.Dir(f.pattern), DefaultInfoFile)
		f.info.SessionID = sessionID
	}
}

func ValidatePattern(pattern string) error {
	verbs := 0
	for _, v := range verbRe.FindAllString(pattern, -1) {
		if v == "%%" {
			continue
		}
		if !intVerbRe.MatchString(v) {
			return fmt.Errorf("%w: %q uses %s", ErrInvalidPattern, pattern, v)
		}
		verbs++
	}
	if verbs != 1 {
		return fmt.Errorf("%w: %q has %d", ErrInvalidPattern, pattern, verbs)
	}
	return nil
}

func NewFile(pattern string, logger *zap.SugaredLogger, opts ...FileOption) (*File, error) {
	if err := ValidatePattern(pattern); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	dir := filepath.Dir(pattern)
	if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
		return nil, err
	}
	preflight(dir, logger)

	f := &File{
		pattern: pattern,
		info:    FilesInfo{Pattern: filepath.Base(pattern)},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func preflight(dir string, logger *zap.SugaredLogger) {
	used, total, usedPercent, err := ps.DiskUsage(dir)
	if err != nil {
		logger.Warnf("can not check free space of %s: %s", dir, err)
		return
	}
	if free := total - used; free < minFreeBytes {
		logger.Warnf("only %s free on %s (%.1f%% used)", humanize.Bytes(free), dir, usedPercent)
	}
}

// Seq returns the sequence number the next frame will be written with.
func (f *File) Seq() int {
	return f.seq
}

func (f *File) WriteFrame(frame []byte) error {
	name := fmt.Sprintf(f.pattern, f.seq)
	f.seq++
	if err := os.WriteFile(name, frame, DefaultFilePerm); err != nil {
		return err
	}
	f.logger.Debugf("wrote %s (%s)", name, humanize.Bytes(uint64(len(frame))))

	f.info.Frames++
	f.info.LatestFile = filepath.Base(name)
	f.info.UpdateAt = time.Now()
	f.dumpInfo()

	return nil
}

// dumpInfo rewrites the manifest. The frame is already on disk, so a
// failure only costs the manifest and is logged.
func (f *File) dumpInfo() {
	if f.infoPath == "" {
		return
	}
	data, err := json.Marshal(&f.info)
	if err == nil {
		err = os.WriteFile(f.infoPath, data, DefaultFilePerm)
	}
	if err != nil {
		f.logger.Warnf("failed to write %s: %s", f.infoPath, err)
	}
}

// Info returns the manifest state after the last frame.
func (f *File) Info() FilesInfo {
	return f.info
}

func LoadInfo(dir string) (FilesInfo, error) {
	var info FilesInfo
	data, err := os.ReadFile(filepath.Join(dir, DefaultInfoFile))
	if err != nil {
		return info, err
	}
	err = json.Unmarshal(data, &info)
	return info, err
}

func (f *File) Close() error {
	f.logger.Infof("wrote %d files matching %s", f.info.Frames, f.pattern)
	return nil
}
