// Package config loads the capture settings from flags, environment and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/sink"
	"v4l2jpeg/pkg/transcode"
)

const (
	EnvPrefix = "V4L2JPEG"
	FileName  = "v4l2jpeg"
)

type Config struct {
	Device      string        `mapstructure:"device" yaml:"device"`
	Width       int           `mapstructure:"width" yaml:"width"`
	Height      int           `mapstructure:"height" yaml:"height"`
	Count       int           `mapstructure:"count" yaml:"count"`
	FPS         int           `mapstructure:"fps" yaml:"fps"`
	Format      string        `mapstructure:"format" yaml:"format"`
	Quality     int           `mapstructure:"quality" yaml:"quality"`
	IO          string        `mapstructure:"io" yaml:"io"`
	Buffers     int           `mapstructure:"buffers" yaml:"buffers"`
	WaitTimeout time.Duration `mapstructure:"wait-timeout" yaml:"wait-timeout"`

	Output    string `mapstructure:"output" yaml:"output"`
	Multipart bool   `mapstructure:"multipart" yaml:"multipart"`
	Boundary  string `mapstructure:"boundary" yaml:"boundary"`
	Manifest  bool   `mapstructure:"manifest" yaml:"manifest"`

	StatusAddr string `mapstructure:"status-addr" yaml:"status-addr,omitempty"`
	WebdavAddr string `mapstructure:"webdav-addr" yaml:"webdav-addr,omitempty"`
	LogLevel   string `mapstructure:"log-level" yaml:"log-level"`

	// Controls maps V4L2 control ids, decimal or 0x hex, to values.
	Controls map[string]int32 `mapstructure:"controls" yaml:"controls,omitempty"`
}

// New returns a viper instance holding the defaults and reading
// V4L2JPEG_* environment variables.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("device", capture.DefaultDevice)
	v.SetDefault("width", capture.DefaultWidth)
	v.SetDefault("height", capture.DefaultHeight)
	v.SetDefault("count", capture.Unbounded)
	v.SetDefault("fps", capture.DefaultFPS)
	v.SetDefault("format", "mjpeg")
	v.SetDefault("quality", transcode.DefaultQuality)
	v.SetDefault("io", capture.IOMmap.String())
	v.SetDefault("buffers", capture.DefaultBufferCount)
	v.SetDefault("wait-timeout", capture.DefaultWaitTimeout)
	v.SetDefault("output", sink.DefaultPattern)
	v.SetDefault("multipart", false)
	v.SetDefault("boundary", sink.DefaultBoundary)
	v.SetDefault("manifest", false)
	v.SetDefault("status-addr", "")
	v.SetDefault("webdav-addr", "")
	v.SetDefault("log-level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// AddFlags registers the capture flags on cmd and binds them to v.
func AddFlags(cmd *cobra.Command, v *viper.Viper) error {
	f := cmd.Flags()
	f.StringP("device", "d", capture.DefaultDevice, "video device name")
	f.IntP("width", "W", capture.DefaultWidth, "image width")
	f.IntP("height", "H", capture.DefaultHeight, "image height")
	f.IntP("count", "c", capture.Unbounded, "number of frames to capture, negative for unbounded")
	f.IntP("fps", "f", capture.DefaultFPS, "frames per second, 0 disables pacing")
	f.StringP("output", "o", sink.DefaultPattern, "file pattern with one integer verb, '-' for stdout or a .avi file")
	f.BoolP("multipart", "m", false, "wrap each frame on stdout in a multipart header")
	f.String("boundary", sink.DefaultBoundary, "multipart boundary")
	f.Bool("manifest", false, "keep an info.json manifest next to the frame files")
	f.String("format", "mjpeg", "pixel format: mjpeg, jpeg, yuyv, rgb24 or a FourCC")
	f.IntP("quality", "q", transcode.DefaultQuality, "JPEG quality for yuyv and rgb24")
	f.String("io", capture.IOMmap.String(), "i/o method: mmap, read or userptr")
	f.Int("buffers", capture.DefaultBufferCount, "number of mmap buffers to request")
	f.Duration("wait-timeout", capture.DefaultWaitTimeout, "readiness wait timeout")
	f.String("status-addr", "", "serve session status on this address")
	f.String("webdav-addr", "", "share the output directory over WebDAV on this address")
	f.String("log-level", "info", "log level: debug, info, warn or error")

	return v.BindPFlags(f)
}

// Load reads file, or the first v4l2jpeg.yaml found in the search path when
// file is empty, and decodes the merged settings.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, path := range []string{".", "$HOME/.v4l2jpeg", "/etc/v4l2jpeg"} {
			v.AddConfigPath(os.ExpandEnv(path))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, nil
}

// Capture converts c into the engine configuration.
func (c Config) Capture() (capture.Config, error) {
	pf, err := capture.ParsePixelFormat(c.Format)
	if err != nil {
		return capture.Config{}, err
	}
	io, err := capture.ParseIOMethod(c.IO)
	if err != nil {
		return capture.Config{}, err
	}
	if c.Buffers < 0 {
		return capture.Config{}, fmt.Errorf("invalid buffer count %d", c.Buffers)
	}
	controls := make(map[uint32]int32, len(c.Controls))
	for k, val := range c.Controls {
		id, err := strconv.ParseUint(k, 0, 32)
		if err != nil {
			return capture.Config{}, fmt.Errorf("invalid control id %q: %w", k, err)
		}
		controls[uint32(id)] = val
	}

	cfg := capture.Config{
		Device:      c.Device,
		Width:       c.Width,
		Height:      c.Height,
		PixelFormat: pf,
		FPS:         c.FPS,
		Count:       c.Count,
		IO:          io,
		Buffers:     uint32(c.Buffers),
		WaitTimeout: c.WaitTimeout,
		Controls:    controls,
	}
	return cfg, cfg.Validate()
}

func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
