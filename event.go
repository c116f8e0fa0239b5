package wireproto

import "sync"

// event.go: repeatable broadcast conditions used by the Client and Server
// for write_event/writer_event (spec.md §4.4, §4.5) — unlike Parker, which
// delivers a value exactly once over its whole lifetime, an event may be
// waited on and signalled arbitrarily many times, closer to a condition
// variable. Grounded on the same closed-channel-and-replace idiom already
// used for RPCTable.spaceAvail and WaitGroup.zero.

// event is a payload-free, repeatable broadcast: Wait blocks until the next
// Signal call (or ctx cancellation).
type event struct {
	mu sync.Mutex
	ch chan struct{}
}

func newEvent() *event {
	return &event{ch: make(chan struct{})}
}

// Wait suspends until the next Signal or ctx cancellation.
func (e *event) Wait(ctx *Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}

// Signal wakes every current waiter and arms a fresh generation for future
// waiters.
func (e *event) Signal() {
	e.mu.Lock()
	close(e.ch)
	e.ch = make(chan struct{})
	e.mu.Unlock()
}

// connectSignal is the client pool's connect_event: a repeatable broadcast
// that additionally carries the outcome of the broadcasting attempt (nil on
// success, a non-nil error — typically ErrCircuitBreakerTripped — on
// failure), per spec.md §4.4.2.
type connectSignal struct {
	mu  sync.Mutex
	ch  chan struct{}
	err error
}

func newConnectSignal() *connectSignal {
	return &connectSignal{ch: make(chan struct{})}
}

// Wait suspends until the next Broadcast, returning its error (nil for
// success), or fails with ErrCancelled if ctx cancels first.
func (s *connectSignal) Wait(ctx *Context) error {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	select {
	case <-ch:
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		return err
	case <-ctx.Done():
		return ErrCancelled
	}
}

// Broadcast wakes every current waiter with err and arms a fresh generation.
func (s *connectSignal) Broadcast(err error) {
	s.mu.Lock()
	s.err = err
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}
