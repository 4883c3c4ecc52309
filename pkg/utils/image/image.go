package image

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

// RGBToRGBA expands packed RGB24 rows into RGBA pixels. The input stride is
// derived from len(in), so padded rows are handled.
func RGBToRGBA(in, out []byte, width, height int) {
	outStride := width * 4
	inStride := len(in) / height

	for i := 0; i < height; i++ {
		oIndex := i * outStride
		iIndex := i * inStride
		for j := 0; j < width; j++ {
			out[oIndex] = in[iIndex]
			out[oIndex+1] = in[iIndex+1]
			out[oIndex+2] = in[iIndex+2]
			out[oIndex+3] = 0xff

			oIndex += 4
			iIndex += 3
		}
	}
}

func DecodeRGB(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || len(data) < width*height*3 {
		return nil, fmt.Errorf("rgb24 frame of %d bytes is too short for %dx%d", len(data), width, height)
	}
	i := image.NewRGBA(image.Rect(0, 0, width, height))
	RGBToRGBA(data, i.Pix, width, height)

	return i, nil
}

// DecodeYUYV wraps packed YUYV 4:2:2 into a planar YCbCr image. Width must
// be even.
func DecodeYUYV(data []byte, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 || width%2 != 0 || len(data) < width*height*2 {
		return nil, fmt.Errorf("yuyv frame of %d bytes is too short for %dx%d", len(data), width, height)
	}
	i := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	inStride := len(data) / height

	for y := 0; y < height; y++ {
		row := data[y*inStride:]
		yIndex := y * i.YStride
		cIndex := y * i.CStride
		for x := 0; x < width; x += 2 {
			p := row[x*2 : x*2+4 : x*2+4]
			i.Y[yIndex+x] = p[0]
			i.Cb[cIndex+x/2] = p[1]
			i.Y[yIndex+x+1] = p[2]
			i.Cr[cIndex+x/2] = p[3]
		}
	}

	return i, nil
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}
