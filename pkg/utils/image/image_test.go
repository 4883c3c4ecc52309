package image

import (
	"bytes"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRGB(t *testing.T) {
	data := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 10, 20, 30,
	}
	img, err := DecodeRGB(data, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, color.RGBA{R: 255, A: 255}, img.At(0, 0))
	assert.Equal(t, color.RGBA{G: 255, A: 255}, img.At(1, 0))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, img.At(0, 1))
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, img.At(1, 1))

	_, err = DecodeRGB(data[:10], 2, 2)
	assert.Error(t, err)
}

func TestDecodeYUYV(t *testing.T) {
	data := []byte{
		16, 128, 235, 128, 81, 90, 145, 240,
		41, 240, 41, 110, 0, 0, 0, 0,
	}
	img, err := DecodeYUYV(data, 4, 2)
	require.NoError(t, err)

	assert.Equal(t, color.YCbCr{Y: 16, Cb: 128, Cr: 128}, img.At(0, 0))
	assert.Equal(t, color.YCbCr{Y: 235, Cb: 128, Cr: 128}, img.At(1, 0))
	assert.Equal(t, color.YCbCr{Y: 81, Cb: 90, Cr: 240}, img.At(2, 0))
	assert.Equal(t, color.YCbCr{Y: 145, Cb: 90, Cr: 240}, img.At(3, 0))
	assert.Equal(t, color.YCbCr{Y: 41, Cb: 240, Cr: 110}, img.At(1, 1))

	_, err = DecodeYUYV(data, 3, 2)
	assert.Error(t, err)
	_, err = DecodeYUYV(data[:8], 4, 2)
	assert.Error(t, err)
}

func TestEncodeJPEG(t *testing.T) {
	data := make([]byte, 16*8*2)
	for i := range data {
		data[i] = byte(i)
	}
	img, err := DecodeYUYV(data, 16, 8)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, EncodeJPEG(img, &buf, 90))
	cfg, err := jpeg.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}
