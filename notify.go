package unii

import (
	"sync"
	"time"
)

// OverflowPolicy decides what happens when a subscriber's queue is full.
// The panel pushes events with no backpressure, so a slow consumer must
// never stall frame processing.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued event to make room.
	DropOldest OverflowPolicy = iota
	// BlockWithTimeout waits for the consumer up to the configured
	// timeout, then drops the new event.
	BlockWithTimeout
)

const (
	defaultQueueSize    = 32
	defaultBlockTimeout = time.Second
)

// SubscribeOption configures one subscription.
type SubscribeOption func(*subscription)

// WithQueueSize sets the subscriber's queue capacity.
func WithQueueSize(n int) SubscribeOption {
	return func(s *subscription) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithOverflowPolicy selects the behavior on a full queue.
func WithOverflowPolicy(p OverflowPolicy) SubscribeOption {
	return func(s *subscription) { s.policy = p }
}

// WithBlockTimeout bounds the wait of BlockWithTimeout.
func WithBlockTimeout(d time.Duration) SubscribeOption {
	return func(s *subscription) {
		if d > 0 {
			s.timeout = d
		}
	}
}

type subscription struct {
	ch      chan Event
	size    int
	policy  OverflowPolicy
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// hub fans events out to subscribers over bounded queues, in publish
// order per subscriber.
type hub struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*subscription]struct{})}
}

func (h *hub) subscribe(opts ...SubscribeOption) (<-chan Event, func()) {
	s := &subscription{
		size:    defaultQueueSize,
		policy:  DropOldest,
		timeout: defaultBlockTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ch = make(chan Event, s.size)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	h.subs[s] = struct{}{}
	return s.ch, func() { h.unsubscribe(s) }
}

func (h *hub) unsubscribe(s *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		s.close()
	}
}

func (h *hub) publish(ev Event) {
	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.deliver(ev)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.subs {
		s.close()
		delete(h.subs, s)
	}
}

func (s *subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *subscription) deliver(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	switch s.policy {
	case BlockWithTimeout:
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()
		select {
		case s.ch <- ev:
		case <-timer.C:
			log.Warn("subscriber too slow, dropping event", "timeout", s.timeout)
		}
	default:
		for {
			select {
			case s.ch <- ev:
				return
			default:
			}
			select {
			case <-s.ch:
			default:
			}
		}
	}
}
