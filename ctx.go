package wireproto

// ctx.go: the cancellation/suspension primitives of spec.md §4.6, grounded
// on the teacher's use of github.com/glycerine/idem.Halter for cancel/done
// signaling (see cli.go's Client.halt, ckt.go's ckt.Halt) and
// github.com/glycerine/loquet.Chan for single-notification futures (see
// hdr.go's Message.DoneCh). idem.Halter gives a cancel flag plus a
// broadcastable "stop requested" channel but no ordered cleanup-hook
// registry, so Context layers a LIFO callback stack on top of it — the
// "scoped cancellation callback" pattern from spec.md §9 is implemented as
// a guard object (CancelFunc) rather than a continuation stored on the
// awaiter itself.

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/glycerine/idem"
	"github.com/glycerine/loquet"
)

// Context is a cancellable, LIFO-callback-bearing scope, the contract
// described in spec.md §4.6.
type Context struct {
	halt *idem.Halter
	id   string

	mu        sync.Mutex
	callbacks *list.List // of func(); invoked LIFO, exactly once
}

// NewContext returns a fresh, live Context.
func NewContext(name string) *Context {
	return &Context{
		halt:      idem.NewHalterNamed(name),
		id:        newCallID(),
		callbacks: list.New(),
	}
}

// ID returns a short, stable identifier for c, for correlating log lines
// across a connection's lifetime.
func (c *Context) ID() string { return c.id }

// WithContext returns a child Context that is also cancelled whenever
// parent is cancelled.
func WithContext(parent *Context, name string) *Context {
	child := NewContext(name)
	dereg := parent.Register(func() { child.Cancel() })
	child.Register(func() { dereg() })
	return child
}

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool {
	return c.halt.ReqStop.IsClosed()
}

// Done returns a channel closed once Cancel has run every callback.
func (c *Context) Done() <-chan struct{} {
	return c.halt.ReqStop.Chan
}

// Cancel runs every registered callback exactly once, in LIFO order, then
// sets the cancelled flag and closes Done() (both are the same halter
// signal, so Cancelled reports false while callbacks run). Idempotent: a second
// call is a no-op. Safe to call from the goroutine that triggers shutdown;
// callbacks must themselves be non-blocking and idempotent, per spec.md §5.
func (c *Context) Cancel() {
	c.mu.Lock()
	if c.halt.ReqStop.IsClosed() {
		c.mu.Unlock()
		return
	}
	// snapshot and clear before running: a callback that calls Deregister
	// on itself (harmless) or registers a new one (ignored — we're past
	// the point where new hooks would ever fire) must not corrupt the list
	// we are iterating.
	cbs := c.callbacks
	c.callbacks = list.New()
	c.mu.Unlock()

	for e := cbs.Back(); e != nil; e = e.Prev() {
		if fn, ok := e.Value.(func()); ok {
			fn()
		}
	}
	c.halt.ReqStop.Close()
}

// stdContext adapts Context to the standard library's context.Context, for
// interop with APIs — net.Dialer.DialContext chief among them — that
// require one. Only Done and Err carry real meaning here; there is no
// deadline or value propagation to model.
type stdContext struct{ c *Context }

func (s stdContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (s stdContext) Done() <-chan struct{}       { return s.c.Done() }
func (s stdContext) Err() error {
	if s.c.Cancelled() {
		return ErrCancelled
	}
	return nil
}
func (s stdContext) Value(key any) any { return nil }

// Std returns a standard-library context.Context view of c.
func (c *Context) Std() context.Context { return stdContext{c} }

// CancelFunc removes a previously registered callback; calling it more
// than once is a no-op.
type CancelFunc func()

// Register installs fn to run on Cancel, in LIFO order relative to other
// registrations, and returns a guard to deregister it early on any other
// exit path. If the Context is already cancelled, fn runs immediately and
// the returned guard is a no-op.
func (c *Context) Register(fn func()) CancelFunc {
	c.mu.Lock()
	if c.halt.ReqStop.IsClosed() {
		c.mu.Unlock()
		fn()
		return func() {}
	}
	elem := c.callbacks.PushBack(fn)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			c.callbacks.Remove(elem)
			c.mu.Unlock()
		})
	}
}

// Parker is a single-value rendezvous: park suspends until either a value
// is delivered or the Context cancels. Built on loquet.Chan, which already
// gives "holds at most one pending value, wakes all current and future
// waiters once delivered" semantics — exactly a broadcastable future.
// WhenClosed is a method, not a channel field (see ckt.go's
// `<-msg.DoneCh.WhenClosed()` and streaming_test.go's
// `uploadDone.WhenClosed()`).
type Parker[T any] struct {
	ch *loquet.Chan[T]
}

// NewParker returns a Parker with no value yet delivered.
func NewParker[T any]() *Parker[T] {
	return &Parker[T]{ch: loquet.NewChan[T](nil)}
}

// Park suspends the calling goroutine until Notify/Broadcast delivers a
// value or ctx cancels first.
func (p *Parker[T]) Park(ctx *Context) (T, error) {
	select {
	case <-p.ch.WhenClosed():
		v, _ := p.ch.Read()
		return *v, nil
	case <-ctx.Done():
		var zero T
		return zero, ErrCancelled
	}
}

// Notify delivers v to the waiter (or to the next Park call, if none is
// waiting yet). It does not limit delivery to one waiter: like Broadcast,
// it wakes every current and future Park call. Safe to call at most once
// per Parker.
func (p *Parker[T]) Notify(v T) {
	p.ch.CloseWith(&v)
}

// Broadcast wakes every current and future waiter with v. For a
// loquet.Chan-backed Parker this is identical to Notify: closing delivers
// the value to every receiver, current or future.
func (p *Parker[T]) Broadcast(v T) {
	p.ch.CloseWith(&v)
}

// Mutex is a cancellable mutual-exclusion lock: Acquire can be interrupted
// by Context cancellation instead of blocking forever.
type Mutex struct {
	ch chan struct{}
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	m := &Mutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// Acquire blocks until the lock is available or ctx cancels.
func (m *Mutex) Acquire(ctx *Context) error {
	select {
	case <-m.ch:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}

// Release returns the lock. Must only be called by the holder.
func (m *Mutex) Release() {
	select {
	case m.ch <- struct{}{}:
	default:
		panic("wireproto: Mutex.Release called without a matching Acquire")
	}
}

// WaitGroup counts outstanding tasks; Wait returns when the count reaches
// zero or ctx cancels, whichever comes first — unlike sync.WaitGroup, whose
// Wait cannot be interrupted.
type WaitGroup struct {
	mu    sync.Mutex
	count int
	zero  chan struct{} // closed and replaced each time count returns to 0
}

// NewWaitGroup returns a WaitGroup at zero.
func NewWaitGroup() *WaitGroup {
	wg := &WaitGroup{zero: make(chan struct{})}
	close(wg.zero) // already at zero
	return wg
}

// Add adjusts the counter by delta, which may be negative.
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.count == 0 && delta > 0 {
		wg.zero = make(chan struct{})
	}
	wg.count += delta
	if wg.count < 0 {
		panic("wireproto: WaitGroup counter went negative")
	}
	if wg.count == 0 {
		close(wg.zero)
	}
}

// Len reports the current count. The Client's pool-shedding check counts
// connection tasks with its own poolSize field and does not call Len.
func (wg *WaitGroup) Len() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.count
}

// Wait blocks until the counter reaches zero or ctx cancels.
func (wg *WaitGroup) Wait(ctx *Context) error {
	wg.mu.Lock()
	ch := wg.zero
	wg.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ErrCancelled
	}
}
