package capture

import (
	"sync/atomic"
	"time"
)

// Stats counts what happened in a session. Counters are atomic so that a
// status reader may sample them while the capture loop runs.
type Stats struct {
	frames    atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
	timeouts  atomic.Uint64
	retries   atomic.Uint64
	started   atomic.Int64
	lastFrame atomic.Int64
}

type StatsSnapshot struct {
	Frames      uint64    `json:"frames"`
	BytesIn     uint64    `json:"bytesIn"`
	BytesOut    uint64    `json:"bytesOut"`
	Timeouts    uint64    `json:"timeouts"`
	Retries     uint64    `json:"retries"`
	Started     time.Time `json:"started"`
	LastFrameAt time.Time `json:"lastFrameAt"`
	FPS         float64   `json:"fps"`
}

func (s *Stats) start(now time.Time) {
	s.started.Store(now.UnixNano())
}

func (s *Stats) frame(in, out int, now time.Time) {
	s.frames.Add(1)
	s.bytesIn.Add(uint64(in))
	s.bytesOut.Add(uint64(out))
	s.lastFrame.Store(now.UnixNano())
}

func (s *Stats) timeout() {
	s.timeouts.Add(1)
}

func (s *Stats) retry() {
	s.retries.Add(1)
}

func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Frames:   s.frames.Load(),
		BytesIn:  s.bytesIn.Load(),
		BytesOut: s.bytesOut.Load(),
		Timeouts: s.timeouts.Load(),
		Retries:  s.retries.Load(),
	}
	if ns := s.started.Load(); ns != 0 {
		snap.Started = time.Unix(0, ns)
	}
	if ns := s.lastFrame.Load(); ns != 0 {
		snap.LastFrameAt = time.Unix(0, ns)
	}
	if elapsed := snap.LastFrameAt.Sub(snap.Started).Seconds(); snap.Frames > 1 && elapsed > 0 {
		snap.FPS = float64(snap.Frames) / elapsed
	}

	return snap
}
