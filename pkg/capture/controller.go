package capture

import (
	"errors"
	"fmt"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

const (
	StateClosed     = "closed"
	StateOpened     = "opened"
	StateConfigured = "configured"
	StateStreaming  = "streaming"
	StateStopped    = "stopped"

	eventOpen      = "open"
	eventConfigure = "configure"
	eventStart     = "start"
	eventStop      = "stop"
	eventClose     = "close"
	eventAbort     = "abort"
)

// Controller drives the device and its buffer pool through
// closed -> opened -> configured -> streaming -> stopped -> closed.
type Controller struct {
	cfg    Config
	open   Opener
	logger *zap.SugaredLogger

	fsm    *fsm.FSM
	dev    Device
	caps   Capabilities
	format Format
	pool   *BufferPool
}

func NewController(open Opener, cfg Config, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Controller{cfg: cfg, open: open, logger: logger}

	c.fsm = fsm.NewFSM(
		StateClosed,
		fsm.Events{
			{Name: eventOpen, Src: []string{StateClosed}, Dst: StateOpened},
			{Name: eventConfigure, Src: []string{StateOpened}, Dst: StateConfigured},
			{Name: eventStart, Src: []string{StateConfigured}, Dst: StateStreaming},
			{Name: eventStop, Src: []string{StateStreaming}, Dst: StateStopped},
			{Name: eventClose, Src: []string{StateStopped}, Dst: StateClosed},
			{Name: eventAbort, Src: []string{StateOpened, StateConfigured, StateStreaming, StateStopped}, Dst: StateClosed},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				c.logger.Debugf("capture: %s -> %s", e.Src, e.Dst)
			},
		},
	)

	return c
}

func (c *Controller) State() string {
	return c.fsm.Current()
}

func (c *Controller) Device() Device {
	return c.dev
}

func (c *Controller) Capabilities() Capabilities {
	return c.caps
}

// Format returns the negotiated format, valid from the configured state on.
func (c *Controller) Format() Format {
	return c.format
}

func (c *Controller) Pool() *BufferPool {
	return c.pool
}

func (c *Controller) can(event string) error {
	if !c.fsm.Can(event) {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidStateTransition, event, c.fsm.Current())
	}
	return nil
}

func (c *Controller) transit(event string) error {
	err := c.fsm.Event(event)
	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("%w: %w", ErrInvalidStateTransition, err)
	}
	return nil
}

// Open opens the device and checks it can capture with the configured I/O method.
func (c *Controller) Open() error {
	if err := c.can(eventOpen); err != nil {
		return err
	}
	if c.cfg.IO == IOUserPtr {
		c.logger.Warn("userptr i/o is not supported, using mmap instead")
		c.cfg.IO = IOMmap
	}

	c.logger.Infof("try to open device %s", c.cfg.Device)
	dev, err := c.open(c.cfg.Device)
	if err != nil {
		return err
	}
	caps, err := checkCapabilities(dev, c.cfg.IO)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			c.logger.Warnf("close %s: %s", c.cfg.Device, cerr)
		}
		return err
	}
	c.dev, c.caps = dev, caps
	c.logger.Infof("device open: %s (%s) on %s", caps.Card, caps.Driver, caps.BusInfo)

	for id, value := range c.cfg.Controls {
		if err := dev.SetControl(id, value); err != nil {
			c.logger.Warnf("set ctrl(%d) to %d, err: %s", id, value, err)
		}
	}

	return c.transit(eventOpen)
}

// Configure negotiates the capture format and allocates the buffer pool.
func (c *Controller) Configure() (Format, error) {
	if err := c.can(eventConfigure); err != nil {
		return Format{}, err
	}
	format, err := negotiateFormat(c.dev, c.cfg, c.logger)
	if err != nil {
		return Format{}, err
	}
	c.format = format
	c.logger.Infof("negotiated format %s, %d bytes per image", format, format.SizeImage)

	pool, err := NewBufferPool(c.dev, c.cfg.IO, c.cfg.Buffers, format.SizeImage, c.logger)
	if err != nil {
		return format, err
	}
	c.pool = pool

	return format, c.transit(eventConfigure)
}

// Start queues every streaming buffer and turns the stream on.
func (c *Controller) Start() error {
	if err := c.can(eventStart); err != nil {
		return err
	}
	if c.pool.Method() == IOMmap {
		if err := c.pool.EnqueueAll(); err != nil {
			return err
		}
		if err := c.dev.StreamOn(); err != nil {
			return fmt.Errorf("%w: stream on: %w", ErrStreamFailed, err)
		}
	}

	return c.transit(eventStart)
}

// Stop turns the stream off.
func (c *Controller) Stop() error {
	if err := c.can(eventStop); err != nil {
		return err
	}
	if c.pool.Method() == IOMmap {
		if err := c.dev.StreamOff(); err != nil {
			return fmt.Errorf("%w: stream off: %w", ErrStreamFailed, err)
		}
		c.pool.reclaim()
	}

	return c.transit(eventStop)
}

// Close releases the buffer pool and closes the device.
func (c *Controller) Close() error {
	if err := c.can(eventClose); err != nil {
		return err
	}
	if err := c.pool.Release(); err != nil {
		return err
	}
	c.pool = nil
	dev := c.dev
	c.dev = nil
	if err := dev.Close(); err != nil {
		return err
	}
	c.logger.Info("device closed")

	return c.transit(eventClose)
}

// Shutdown releases whatever the session still holds, from any state. It is
// the cleanup path for error exits and a no-op once the controller is closed.
func (c *Controller) Shutdown() error {
	if c.fsm.Is(StateClosed) {
		return nil
	}

	var errs []error
	if c.fsm.Is(StateStreaming) && c.pool != nil && c.pool.Method() == IOMmap {
		if err := c.dev.StreamOff(); err != nil {
			errs = append(errs, fmt.Errorf("%w: stream off: %w", ErrStreamFailed, err))
		}
		c.pool.reclaim()
	}
	if c.pool != nil {
		if err := c.pool.Release(); err != nil && !errors.Is(err, ErrReleased) {
			errs = append(errs, err)
		}
		c.pool = nil
	}
	if c.dev != nil {
		if err := c.dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.transit(eventAbort); err != nil {
		errs = append(errs, err)
	}
	c.logger.Info("capture shut down")

	return errors.Join(errs...)
}
