package status

import (
	"sync"
)

// Hub keeps the latest frame and fans frames out to live viewers. It is a
// capture sink: slow viewers miss frames instead of stalling capture.
type Hub struct {
	mu     sync.RWMutex
	latest []byte
	subs   map[chan []byte]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

func (h *Hub) WriteFrame(frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = frame
	for ch := range h.subs {
		select {
		case ch <- frame:
		default:
		}
	}
	return nil
}

// Latest returns the last frame written, nil before the first one.
func (h *Hub) Latest() []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Subscribe returns a channel of frames and a function that ends the
// subscription. The channel is closed when the hub closes.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan []byte, 1)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
	return nil
}
