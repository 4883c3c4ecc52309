// Package capturetest provides a scripted in-memory capture device.
package capturetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"v4l2jpeg/pkg/capture"
)

// StepKind is what the device does on one readiness cycle.
type StepKind int

const (
	// StepFrame makes the device readable with a filled buffer.
	StepFrame StepKind = iota
	// StepWouldBlock makes the device readable but the dequeue or read finds nothing.
	StepWouldBlock
	// StepTimeout makes Wait time out.
	StepTimeout
	// StepInterrupted makes Wait report a signal interruption.
	StepInterrupted
	// StepFail makes the dequeue or read fail with Err.
	StepFail
	// StepBadIndex makes the dequeue return Index, which the pool never mapped.
	StepBadIndex
	// StepOversized makes the dequeue report more bytes used than the buffer holds.
	StepOversized
)

type Step struct {
	Kind  StepKind
	Data  []byte
	Err   error
	Index uint32
}

func Frame(data []byte) Step { return Step{Kind: StepFrame, Data: data} }
func WouldBlock() Step       { return Step{Kind: StepWouldBlock} }
func Timeout() Step          { return Step{Kind: StepTimeout} }
func Interrupted() Step      { return Step{Kind: StepInterrupted} }
func Fail(err error) Step    { return Step{Kind: StepFail, Err: err} }
func BadIndex(i uint32) Step { return Step{Kind: StepBadIndex, Index: i} }
func Oversized() Step        { return Step{Kind: StepOversized} }

// Device is a fake capture device driven by a script of steps. Once the
// script is exhausted Wait blocks until its timeout or ctx is done.
type Device struct {
	mu sync.Mutex

	path   string
	caps   capture.Capabilities
	format capture.Format

	// Applied overrides what SetFormat applies, when set.
	Applied *capture.Format

	// Granted overrides the number of buffers RequestBuffers grants, when non-zero.
	Granted uint32

	// NoMmap makes RequestBuffers report that mapping is unsupported.
	NoMmap bool

	// FailMapAt makes MapBuffer fail for that index, when >= 0.
	FailMapAt int

	// ShortMapAt makes MapBuffer return a short mapping for that index, when >= 0.
	ShortMapAt int

	// FailEnqueueAfter makes Enqueue fail once that many enqueues
	// succeeded, when >= 0.
	FailEnqueueAfter int

	FailUnmap    bool
	FailStreamOn bool
	BufferSize   uint32

	script []Step
	ready  *Step

	buffers   [][]byte
	queued    []uint32
	streaming bool
	closed    bool

	mapped   int
	unmapped int
	enqueued int
	calls    []string
	controls map[uint32]int32
}

func NewDevice(path string, steps ...Step) *Device {
	return &Device{
		path: path,
		caps: capture.Capabilities{
			Driver:       "capturetest",
			Card:         "scripted camera",
			BusInfo:      "virtual:0",
			VideoCapture: true,
			ReadWrite:    true,
			Streaming:    true,
		},
		format: capture.Format{
			Width:       640,
			Height:      480,
			PixelFormat: capture.PixelFmtYUYV,
		},
		FailMapAt:        -1,
		ShortMapAt:       -1,
		FailEnqueueAfter: -1,
		BufferSize:       64 * 1024,
		script:           steps,
		controls:         map[uint32]int32{},
	}
}

// Opener returns an opener that hands out d for any path.
func (d *Device) Opener() capture.Opener {
	return func(path string) (capture.Device, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.path = path
		d.record("open")
		return d, nil
	}
}

func (d *Device) SetCapabilities(caps capture.Capabilities) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.caps = caps
}

func (d *Device) record(call string) {
	d.calls = append(d.calls, call)
}

// Calls returns the protocol calls in order.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Device) Mapped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mapped
}

func (d *Device) Unmapped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unmapped
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Device) Streaming() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

func (d *Device) Controls() map[uint32]int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[uint32]int32, len(d.controls))
	for k, v := range d.controls {
		out[k] = v
	}
	return out
}

func (d *Device) Path() string {
	return d.path
}

func (d *Device) Capabilities() (capture.Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("querycap")
	return d.caps, nil
}

func (d *Device) Format() (capture.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("g_fmt")
	return d.format, nil
}

func (d *Device) SetFormat(f capture.Format) (capture.Format, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("s_fmt")
	if d.Applied != nil {
		f = *d.Applied
	}
	if f.SizeImage == 0 {
		f.SizeImage = f.Width * f.Height * 2
	}
	d.format = f
	return f, nil
}

func (d *Device) SetControl(id uint32, value int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("s_ctrl")
	d.controls[id] = value
	return nil
}

func (d *Device) RequestBuffers(count uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("reqbufs")
	if d.NoMmap {
		return 0, capture.ErrMappingUnsupported
	}
	if d.Granted != 0 {
		count = d.Granted
	}
	d.buffers = make([][]byte, count)
	return count, nil
}

func (d *Device) QueryBuffer(index uint32) (capture.BufferInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(index) >= len(d.buffers) {
		return capture.BufferInfo{}, fmt.Errorf("no buffer %d", index)
	}
	return capture.BufferInfo{Index: index, Length: d.BufferSize, Offset: index * d.BufferSize}, nil
}

func (d *Device) MapBuffer(info capture.BufferInfo) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(info.Index) == d.FailMapAt {
		return nil, errors.New("mmap: cannot allocate memory")
	}
	size := info.Length
	if int(info.Index) == d.ShortMapAt {
		size /= 2
	}
	data := make([]byte, size)
	d.buffers[info.Index] = data
	d.mapped++
	return data, nil
}

func (d *Device) UnmapBuffer(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailUnmap {
		return errors.New("munmap: invalid argument")
	}
	d.unmapped++
	return nil
}

func (d *Device) Enqueue(index uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(index) >= len(d.buffers) {
		return fmt.Errorf("no buffer %d", index)
	}
	if d.FailEnqueueAfter >= 0 && d.enqueued >= d.FailEnqueueAfter {
		return errors.New("qbuf: invalid argument")
	}
	d.enqueued++
	d.queued = append(d.queued, index)
	return nil
}

func (d *Device) Dequeue() (uint32, uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	step, err := d.take()
	if err != nil {
		return 0, 0, err
	}
	if step.Kind == StepBadIndex {
		d.record("dqbuf")
		return step.Index, 0, nil
	}
	if len(d.queued) == 0 {
		return 0, 0, capture.ErrWouldBlock
	}
	index := d.queued[0]
	d.queued = d.queued[1:]
	n := copy(d.buffers[index], step.Data)
	if step.Kind == StepOversized {
		n = len(d.buffers[index]) + 1
	}
	d.record("dqbuf")
	return index, uint32(n), nil
}

func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	step, err := d.take()
	if err != nil {
		return 0, err
	}
	d.record("read")
	return copy(p, step.Data), nil
}

// take consumes the step made ready by the last Wait.
func (d *Device) take() (*Step, error) {
	step := d.ready
	d.ready = nil
	if step == nil {
		return nil, capture.ErrWouldBlock
	}
	switch step.Kind {
	case StepWouldBlock:
		return nil, capture.ErrWouldBlock
	case StepFail:
		return nil, step.Err
	}
	return step, nil
}

func (d *Device) StreamOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("streamon")
	if d.FailStreamOn {
		return errors.New("streamon: no space left on device")
	}
	d.streaming = true
	return nil
}

func (d *Device) StreamOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("streamoff")
	d.streaming = false
	d.queued = nil
	return nil
}

func (d *Device) Wait(ctx context.Context, timeout time.Duration) error {
	d.mu.Lock()
	if len(d.script) == 0 {
		d.mu.Unlock()
		t := time.NewTimer(timeout)
		defer t.Stop()
		select {
		case <-t.C:
			return capture.ErrWaitTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer d.mu.Unlock()

	step := d.script[0]
	d.script = d.script[1:]
	switch step.Kind {
	case StepTimeout:
		return capture.ErrWaitTimeout
	case StepInterrupted:
		return capture.ErrInterrupted
	}
	d.ready = &step
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("close")
	d.closed = true
	return nil
}
