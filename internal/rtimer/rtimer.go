// Package rtimer binds internal/messenger.Timer to time.AfterFunc,
// delivering fired callbacks onto a single channel rather than invoking
// them on Go's own per-timer goroutine, so that the caller can pump them
// through the messenger's single logical thread alongside transport
// reads (spec.md §5: "implementations MUST NOT mutate peer state from
// multiple threads concurrently").
package rtimer

import (
	"sync"
	"time"

	"github.com/iqdecay/chat-while-watching/internal/peer"
)

// Handle identifies a scheduled callback for cancellation.
type Handle uint64

// Service is a Timer implementation whose fired callbacks are delivered
// through Fired rather than run directly on time.AfterFunc's goroutine.
type Service struct {
	mu      sync.Mutex
	nextID  Handle
	pending map[Handle]*time.Timer

	// Fired receives the callback for every timer that completes without
	// having been canceled first. The owning loop is expected to drain
	// this channel and invoke each function itself.
	Fired chan func()
}

// New builds a Service. bufferSize sizes the Fired channel; it should be
// comfortably larger than the expected number of concurrently-armed
// peers so a slow consumer doesn't stall time.AfterFunc's runtime
// goroutines.
func New(bufferSize int) *Service {
	return &Service{
		pending: make(map[Handle]*time.Timer),
		Fired:   make(chan func(), bufferSize),
	}
}

// Schedule arms a one-shot timer that, after d, enqueues fn onto Fired —
// unless it has been canceled in the meantime.
func (s *Service) Schedule(d time.Duration, fn func()) peer.TimerHandle {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		s.Fired <- fn
	})

	s.mu.Lock()
	s.pending[id] = timer
	s.mu.Unlock()
	return id
}

// Cancel stops the timer identified by h. It is idempotent: canceling an
// already-fired or already-canceled handle is a no-op. A timer that fires
// concurrently with its own cancellation may still enqueue onto Fired;
// per spec.md §5 that race is resolved by the consumer (internal/
// messenger looks the peer up again before acting on a fired timer).
func (s *Service) Cancel(h peer.TimerHandle) {
	id, ok := h.(Handle)
	if !ok {
		return
	}
	s.mu.Lock()
	timer, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	s.mu.Unlock()
	if ok {
		timer.Stop()
	}
}

// Run drains Fired until ctx-like stop channel closes, invoking each
// callback on the calling goroutine. Callers that want full control over
// their own event loop should instead range over Fired directly.
func (s *Service) Run(stop <-chan struct{}) {
	for {
		select {
		case fn := <-s.Fired:
			fn()
		case <-stop:
			return
		}
	}
}
