package wireproto

// breaker.go implements the CircuitBreaker of spec.md §3, §4.2. Grounded on
// the teacher's `attempt_connection`-style retry loops (cli.go's
// RunClientMain reconnect handling) generalized into a standalone,
// pure-function-of-state breaker rather than the ad hoc retry counters
// scattered through the teacher's connection code.

import "time"

// BreakerState is the outcome of evaluating a CircuitBreaker at a point in
// time; it is a pure function of the breaker's fields, never stored.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerHalfOpen:
		return "half_open"
	case BreakerOpen:
		return "open"
	default:
		return "unknown"
	}
}

const maxBackoff = 3000 * time.Millisecond

// CircuitBreaker tracks failure count and last-failure time and derives its
// state from the two given a max fail threshold and reset window.
type CircuitBreaker struct {
	fails        uint64
	lastFailedMs int64

	maxFails uint64
	resetMs  int64
}

// NewCircuitBreaker constructs a closed breaker with the given thresholds.
func NewCircuitBreaker(maxFails uint64, resetWindow time.Duration) *CircuitBreaker {
	if maxFails == 0 {
		maxFails = 1
	}
	if resetWindow <= 0 {
		resetWindow = time.Second
	}
	return &CircuitBreaker{
		maxFails: maxFails,
		resetMs:  resetWindow.Milliseconds(),
	}
}

// ReportSuccess zeros both counters.
func (b *CircuitBreaker) ReportSuccess() {
	b.fails = 0
	b.lastFailedMs = 0
}

// ReportFailure saturates-adds to fails and records the failure time.
func (b *CircuitBreaker) ReportFailure(t time.Time) {
	if b.fails != ^uint64(0) {
		b.fails++
	}
	b.lastFailedMs = t.UnixMilli()
}

// State evaluates the breaker's condition at time t, per spec.md §3:
//
//	fails <= maxFails                   -> closed
//	t - lastFailed > resetMs            -> half_open
//	otherwise                           -> open
func (b *CircuitBreaker) State(t time.Time) BreakerState {
	if b.fails <= b.maxFails {
		return BreakerClosed
	}
	if t.UnixMilli()-b.lastFailedMs > b.resetMs {
		return BreakerHalfOpen
	}
	return BreakerOpen
}

// HasFailures reports whether the breaker has ever recorded a failure that
// hasn't since been cleared by ReportSuccess.
func (b *CircuitBreaker) HasFailures() bool {
	return b.fails > 0 && b.lastFailedMs > 0
}

// Fails returns the current failure count, for logging/metrics.
func (b *CircuitBreaker) Fails() uint64 { return b.fails }

// Backoff computes the pre-connect delay to insert given the current
// failure count, per spec.md §4.2: min(3000ms, 10ms * 2^(fails-1)).
func Backoff(fails uint64) time.Duration {
	if fails == 0 {
		return 0
	}
	// cap the shift to avoid overflow for pathologically large fail counts;
	// 2^28 * 10ms already exceeds maxBackoff by many orders of magnitude.
	shift := fails - 1
	if shift > 28 {
		shift = 28
	}
	d := 10 * time.Millisecond << shift
	if d > maxBackoff || d < 0 {
		return maxBackoff
	}
	return d
}

// InitOpen configures the breaker as already tripped: fails = max uint64,
// last failure at the maximum representable time, per spec.md §3.
func (b *CircuitBreaker) InitOpen() {
	b.fails = ^uint64(0)
	b.lastFailedMs = int64(^uint64(0) >> 1)
}

// InitHalfOpen configures the breaker as already past its cooldown, fails
// saturated but last-failure at the epoch, per spec.md §3.
func (b *CircuitBreaker) InitHalfOpen() {
	b.fails = ^uint64(0)
	b.lastFailedMs = 0
}
