package capture

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Owner tells who may touch a buffer's memory.
type Owner int

const (
	OwnerProcess Owner = iota
	OwnerKernel
)

func (o Owner) String() string {
	if o == OwnerKernel {
		return "kernel"
	}
	return "process"
}

// Buffer is one frame buffer of the pool.
type Buffer struct {
	Index  uint32
	Length int
	Offset uint32
	Data   []byte

	owner Owner
}

func (b *Buffer) Owner() Owner {
	return b.owner
}

// BufferPool owns the frame memory of a session for one I/O method.
type BufferPool struct {
	dev      Device
	method   IOMethod
	buffers  []*Buffer
	released bool
	logger   *zap.SugaredLogger
}

// NewBufferPool allocates buffers for method. For IORead a single heap
// buffer of imageSize bytes is used; for IOMmap count buffers are requested
// from the device and mapped.
func NewBufferPool(dev Device, method IOMethod, count uint32, imageSize uint32, logger *zap.SugaredLogger) (*BufferPool, error) {
	p := &BufferPool{dev: dev, method: method, logger: logger}

	switch method {
	case IORead:
		if imageSize == 0 {
			return nil, fmt.Errorf("%w: device reported an empty image size", ErrMapFailed)
		}
		p.buffers = []*Buffer{{Length: int(imageSize), Data: make([]byte, imageSize)}}
	case IOMmap:
		if err := p.mapBuffers(count); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: io method %s has no buffer pool", ErrMapFailed, method)
	}

	return p, nil
}

func (p *BufferPool) mapBuffers(count uint32) error {
	granted, err := p.dev.RequestBuffers(count)
	if err != nil {
		if errors.Is(err, ErrMappingUnsupported) {
			return fmt.Errorf("%s does not support memory mapping: %w", p.dev.Path(), err)
		}
		return fmt.Errorf("%w: request %d buffers: %w", ErrMapFailed, count, err)
	}
	if granted < minMappedBuffers {
		return fmt.Errorf("%w on %s: got %d buffers", ErrInsufficientBuffers, p.dev.Path(), granted)
	}

	p.buffers = make([]*Buffer, 0, granted)
	for i := uint32(0); i < granted; i++ {
		info, err := p.dev.QueryBuffer(i)
		if err != nil {
			p.unmapAll()
			return fmt.Errorf("%w: query buffer %d: %w", ErrMapFailed, i, err)
		}
		data, err := p.dev.MapBuffer(info)
		if err != nil {
			p.unmapAll()
			return fmt.Errorf("%w: map buffer %d: %w", ErrMapFailed, i, err)
		}
		if len(data) != int(info.Length) {
			_ = p.dev.UnmapBuffer(data)
			p.unmapAll()
			return fmt.Errorf("%w: buffer %d mapped %d bytes, device reported %d", ErrMapFailed, i, len(data), info.Length)
		}
		p.buffers = append(p.buffers, &Buffer{
			Index:  i,
			Length: int(info.Length),
			Offset: info.Offset,
			Data:   data,
		})
	}
	p.logger.Infof("mapped %d buffers", len(p.buffers))

	return nil
}

// unmapAll is the cleanup path of a failed construction.
func (p *BufferPool) unmapAll() {
	for _, b := range p.buffers {
		if err := p.dev.UnmapBuffer(b.Data); err != nil {
			p.logger.Warnf("unmap buffer %d: %s", b.Index, err)
		}
	}
	p.buffers = nil
}

func (p *BufferPool) Method() IOMethod {
	return p.method
}

func (p *BufferPool) Len() int {
	return len(p.buffers)
}

func (p *BufferPool) Buffer(index uint32) (*Buffer, error) {
	if p.released {
		return nil, ErrReleased
	}
	if int(index) >= len(p.buffers) {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrInvalidBuffer, index, len(p.buffers))
	}
	return p.buffers[index], nil
}

// EnqueueAll hands every buffer to the kernel.
func (p *BufferPool) EnqueueAll() error {
	for _, b := range p.buffers {
		if err := p.Requeue(b.Index); err != nil {
			return err
		}
	}
	return nil
}

// Acquire records that the device returned buffer index to the process.
func (p *BufferPool) Acquire(index uint32) (*Buffer, error) {
	b, err := p.Buffer(index)
	if err != nil {
		return nil, err
	}
	if b.owner != OwnerKernel {
		return nil, fmt.Errorf("%w: buffer %d dequeued twice without requeue", ErrInvalidBuffer, index)
	}
	b.owner = OwnerProcess

	return b, nil
}

// Requeue returns buffer index to the kernel.
func (p *BufferPool) Requeue(index uint32) error {
	b, err := p.Buffer(index)
	if err != nil {
		return err
	}
	if b.owner != OwnerProcess {
		return fmt.Errorf("%w: buffer %d is already queued", ErrInvalidBuffer, index)
	}
	if err := p.dev.Enqueue(index); err != nil {
		return fmt.Errorf("%w: buffer %d: %w", ErrEnqueueFailed, index, err)
	}
	b.owner = OwnerKernel

	return nil
}

// reclaim marks every buffer process owned; the driver drops its queue on stream off.
func (p *BufferPool) reclaim() {
	for _, b := range p.buffers {
		b.owner = OwnerProcess
	}
}

// Release unmaps or frees the buffers. It may only be called once, after
// streaming has stopped.
func (p *BufferPool) Release() error {
	if p.released {
		return ErrReleased
	}
	p.released = true

	if p.method != IOMmap {
		p.buffers = nil
		return nil
	}

	var errs []error
	for _, b := range p.buffers {
		if err := p.dev.UnmapBuffer(b.Data); err != nil {
			errs = append(errs, fmt.Errorf("%w: buffer %d: %w", ErrUnmapFailed, b.Index, err))
		}
		b.Data = nil
	}
	p.buffers = nil

	return errors.Join(errs...)
}
