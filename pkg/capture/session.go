package capture

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TranscoderFactory builds the transcoder for the negotiated format.
type TranscoderFactory func(Format) (Transcoder, error)

// SinkFactory opens the output sink once the negotiated format is known.
type SinkFactory func(Format) (Sink, error)

type Options struct {
	Config        Config
	Open          Opener
	NewTranscoder TranscoderFactory
	NewSink       SinkFactory
	Logger        *zap.SugaredLogger
}

// Session is the context of one capture run: it owns the controller, the
// statistics and the pacing of the loop. Nothing in the engine keeps state
// outside of it.
type Session struct {
	id      string
	cfg     Config
	opts    Options
	ctrl    *Controller
	limiter *RateLimiter
	stats   *Stats
	format  atomic.Pointer[Format]
	logger  *zap.SugaredLogger
}

func NewSession(opts Options) (*Session, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Open == nil || opts.NewTranscoder == nil || opts.NewSink == nil {
		return nil, fmt.Errorf("session needs a device opener, a transcoder and a sink")
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	logger = logger.With("session", id)

	return &Session{
		id:      id,
		cfg:     cfg,
		opts:    opts,
		ctrl:    NewController(opts.Open, cfg, logger),
		limiter: NewRateLimiter(cfg.FPS),
		stats:   &Stats{},
		logger:  logger,
	}, nil
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Stats() *Stats {
	return s.stats
}

func (s *Session) State() string {
	return s.ctrl.State()
}

// Format returns the negotiated format, the zero Format before negotiation.
func (s *Session) Format() Format {
	if f := s.format.Load(); f != nil {
		return *f
	}
	return Format{}
}

// Run captures until the configured count is reached or ctx is done. A
// cancelled ctx is a clean stop and returns nil; every other failure is
// fatal and returned after the device resources have been released.
func (s *Session) Run(ctx context.Context) (err error) {
	defer func() {
		if serr := s.ctrl.Shutdown(); serr != nil {
			err = errors.Join(err, serr)
		}
	}()

	if err = s.ctrl.Open(); err != nil {
		return err
	}
	format, err := s.ctrl.Configure()
	if err != nil {
		return err
	}
	s.format.Store(&format)

	transcode, err := s.opts.NewTranscoder(format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	sink, err := s.opts.NewSink(format)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSinkFailed, err)
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: close: %w", ErrSinkFailed, cerr))
		}
	}()

	reader := NewFrameReader(s.ctrl.Device(), s.ctrl.Pool(), s.cfg.WaitTimeout, transcode, sink, s.stats, s.logger)

	if err = s.ctrl.Start(); err != nil {
		return err
	}
	s.stats.start(time.Now())

	if err = s.loop(ctx, reader); err != nil {
		return err
	}

	if err = s.ctrl.Stop(); err != nil {
		return err
	}
	if err = s.ctrl.Close(); err != nil {
		return err
	}

	snap := s.stats.Snapshot()
	s.logger.Infof("captured %d frames (%s -> %s), %.2f fps, %d timeouts",
		snap.Frames, humanize.Bytes(snap.BytesIn), humanize.Bytes(snap.BytesOut), snap.FPS, snap.Timeouts)

	return nil
}

func (s *Session) loop(ctx context.Context, reader *FrameReader) error {
	for n := 0; s.cfg.Count < 0 || n < s.cfg.Count; n++ {
		if n > 0 {
			if err := s.limiter.Wait(ctx); err != nil {
				s.logger.Infof("capture stopped after %d frames", n)
				return nil
			}
		}
		if err := reader.ReadFrame(ctx); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				s.logger.Infof("capture stopped after %d frames", n)
				return nil
			}
			return err
		}
	}

	return nil
}
