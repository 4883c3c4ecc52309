package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"v4l2jpeg/pkg/capture"
)

func TestDefaults(t *testing.T) {
	c, err := Load(New(), "")
	require.NoError(t, err)

	cfg, err := c.Capture()
	require.NoError(t, err)
	assert.Equal(t, capture.DefaultDevice, cfg.Device)
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 120, cfg.Height)
	assert.Equal(t, capture.Unbounded, cfg.Count)
	assert.Equal(t, 25, cfg.FPS)
	assert.Equal(t, capture.PixelFmtMJPEG, cfg.PixelFormat)
	assert.Equal(t, capture.IOMmap, cfg.IO)
	assert.Equal(t, time.Second, cfg.WaitTimeout)
	assert.Equal(t, "dump_%d.jpg", c.Output)
	assert.False(t, c.Multipart)
	assert.False(t, c.Manifest)
}

func TestFlagsOverrideFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "capture.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
device: /dev/video2
width: 640
height: 480
format: yuyv
controls:
  "0x00980900": 64
  "9963777": -2
`), 0660))

	v := New()
	cmd := &cobra.Command{Use: "test"}
	require.NoError(t, AddFlags(cmd, v))
	require.NoError(t, cmd.Flags().Parse([]string{"-W", "320", "-c", "3", "-o", "-", "-m", "--manifest"}))

	c, err := Load(v, file)
	require.NoError(t, err)
	cfg, err := c.Capture()
	require.NoError(t, err)

	assert.Equal(t, "/dev/video2", cfg.Device)
	assert.Equal(t, 320, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
	assert.Equal(t, 3, cfg.Count)
	assert.Equal(t, capture.PixelFmtYUYV, cfg.PixelFormat)
	assert.Equal(t, map[uint32]int32{0x00980900: 64, 9963777: -2}, cfg.Controls)
	assert.Equal(t, "-", c.Output)
	assert.True(t, c.Multipart)
	assert.True(t, c.Manifest)
}

func TestEnv(t *testing.T) {
	t.Setenv("V4L2JPEG_FPS", "5")
	t.Setenv("V4L2JPEG_WAIT_TIMEOUT", "250ms")

	c, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 5, c.FPS)
	assert.Equal(t, 250*time.Millisecond, c.WaitTimeout)
}

func TestMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestInvalid(t *testing.T) {
	for name, mutate := range map[string]func(*Config){
		"format":  func(c *Config) { c.Format = "h264x" },
		"io":      func(c *Config) { c.IO = "dma" },
		"control": func(c *Config) { c.Controls = map[string]int32{"brightness": 1} },
		"size":    func(c *Config) { c.Width = 0 },
	} {
		c, err := Load(New(), "")
		require.NoError(t, err)
		mutate(&c)
		_, err = c.Capture()
		assert.Error(t, err, name)
	}
}

func TestYAML(t *testing.T) {
	c, err := Load(New(), "")
	require.NoError(t, err)

	data, err := c.YAML()
	require.NoError(t, err)
	var back Config
	require.NoError(t, yaml.Unmarshal(data, &back))
	assert.Equal(t, c.Device, back.Device)
	assert.Equal(t, c.WaitTimeout, back.WaitTimeout)
	assert.Contains(t, string(data), "wait-timeout: 1s")
}
