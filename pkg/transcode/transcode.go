// Package transcode turns captured frames into JPEG images.
package transcode

import (
	"bytes"
	"fmt"
	"image"

	"v4l2jpeg/pkg/capture"
	imageutil "v4l2jpeg/pkg/utils/image"
)

const DefaultQuality = 90

// New returns the transcoder for frames of the negotiated format f.
func New(f capture.Format, quality int) (capture.Transcoder, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	width, height := int(f.Width), int(f.Height)

	switch f.PixelFormat {
	case capture.PixelFmtMJPEG:
		return MJPEGToJPEG, nil
	case capture.PixelFmtJPEG:
		return Passthrough, nil
	case capture.PixelFmtYUYV:
		return encoder(imageutil.DecodeYUYV, width, height, quality), nil
	case capture.PixelFmtRGB24:
		return encoder(imageutil.DecodeRGB, width, height, quality), nil
	}

	return nil, fmt.Errorf("no transcoder for pixel format %s", f.PixelFormat)
}

// Passthrough copies frames that are already JPEG files.
func Passthrough(frame []byte) ([]byte, error) {
	return bytes.Clone(frame), nil
}

type decoder func(data []byte, width, height int) (image.Image, error)

func encoder(decode decoder, width, height, quality int) capture.Transcoder {
	return func(frame []byte) ([]byte, error) {
		img, err := decode(frame, width, height)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Grow(len(frame) / 4)
		if err := imageutil.EncodeJPEG(img, &buf, quality); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
}
