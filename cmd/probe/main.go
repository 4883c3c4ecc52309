package main

import (
	"flag"
	"log"
	"os"

	"github.com/goccy/go-json"
	"github.com/vladimirvivien/go4vl/v4l2"

	"v4l2jpeg/pkg/capture"
	"v4l2jpeg/pkg/device"
	"v4l2jpeg/pkg/utils"
)

type Report struct {
	Device       string               `json:"device"`
	Capabilities capture.Capabilities `json:"capabilities"`
	Format       Format               `json:"format"`
	FrameSizes   []FrameSize          `json:"frameSizes,omitempty"`
	Controls     []Control            `json:"controls,omitempty"`
}

type Format struct {
	Width        uint32 `json:"width"`
	Height       uint32 `json:"height"`
	PixelFormat  string `json:"pixelFormat"`
	BytesPerLine uint32 `json:"bytesPerLine"`
	SizeImage    uint32 `json:"sizeImage"`
}

type FrameSize struct {
	PixelFormat string `json:"pixelFormat"`
	MaxWidth    uint32 `json:"maxWidth"`
	MaxHeight   uint32 `json:"maxHeight"`
}

type Control struct {
	ID      uint32     `json:"id"`
	Name    string     `json:"name"`
	Min     int32      `json:"min"`
	Max     int32      `json:"max"`
	Step    int32      `json:"step"`
	Default int32      `json:"default"`
	Value   int32      `json:"value"`
	Menu    []MenuItem `json:"menu,omitempty"`
}

type MenuItem struct {
	Index uint32 `json:"index"`
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

func main() {
	devName := capture.DefaultDevice
	flag.StringVar(&devName, "d", devName, "device name (path)")
	flag.Parse()

	logger := utils.GetLogger()
	dev, err := device.Open(devName, logger)
	if err != nil {
		log.Fatalf("failed to open device: %s", err)
	}
	defer dev.Close()

	report := Report{Device: devName}
	if report.Capabilities, err = dev.Capabilities(); err != nil {
		log.Fatal(err)
	}
	f, err := dev.Format()
	if err != nil {
		log.Fatal(err)
	}
	report.Format = Format{
		Width:        f.Width,
		Height:       f.Height,
		PixelFormat:  f.PixelFormat.String(),
		BytesPerLine: f.BytesPerLine,
		SizeImage:    f.SizeImage,
	}

	sizes, err := v4l2.GetAllFormatFrameSizes(dev.Fd())
	if err != nil {
		logger.Warnf("frame sizes: %s", err)
	}
	for _, size := range sizes {
		report.FrameSizes = append(report.FrameSizes, FrameSize{
			PixelFormat: capture.PixelFormat(size.PixelFormat).String(),
			MaxWidth:    size.Size.MaxWidth,
			MaxHeight:   size.Size.MaxHeight,
		})
	}

	ctrls, err := v4l2.QueryAllExtControls(dev.Fd())
	if err != nil {
		logger.Warnf("controls: %s", err)
	}
	for _, ctrl := range ctrls {
		report.Controls = append(report.Controls, toControl(ctrl))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(report); err != nil {
		log.Fatal(err)
	}
}

func toControl(ctrl v4l2.Control) Control {
	c := Control{
		ID:      uint32(ctrl.ID),
		Name:    ctrl.Name,
		Min:     int32(ctrl.Minimum),
		Max:     int32(ctrl.Maximum),
		Step:    int32(ctrl.Step),
		Default: int32(ctrl.Default),
		Value:   int32(ctrl.Value),
	}
	if !ctrl.IsMenu() {
		return c
	}
	menus, err := ctrl.GetMenuItems()
	if err != nil {
		return c
	}
	for _, m := range menus {
		c.Menu = append(c.Menu, MenuItem{Index: uint32(m.Index), Name: m.Name, Value: int64(m.Value)})
	}
	return c
}
