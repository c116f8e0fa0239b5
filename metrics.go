package wireproto

// metrics.go: pool observability via streaming quantile digests. The
// teacher repo carries github.com/caio/go-tdigest as a considered
// dependency (streaming_test.go imports it, commented out, for exactly this
// kind of latency histogram) but never wires it up; PoolStats is that idea
// completed and put to work on the two durations attempt_connection
// naturally produces.

import (
	"sync"
	"time"

	"github.com/caio/go-tdigest"
)

// PoolStats accumulates connect-latency and backoff-delay samples from a
// Client pool's attempt_connection loop.
type PoolStats struct {
	mu      sync.Mutex
	connect *tdigest.TDigest
	backoff *tdigest.TDigest
}

// NewPoolStats returns an empty PoolStats.
func NewPoolStats() *PoolStats {
	connect, _ := tdigest.New()
	backoff, _ := tdigest.New()
	return &PoolStats{connect: connect, backoff: backoff}
}

// ObserveConnect records the wall-clock duration of a successful dial, in
// milliseconds.
func (p *PoolStats) ObserveConnect(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.connect.Add(float64(d.Microseconds()) / 1000)
}

// ObserveBackoff records a backoff delay actually slept before a connect
// attempt, in milliseconds. A sleep cut short by cancellation is not
// recorded.
func (p *PoolStats) ObserveBackoff(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.backoff.Add(float64(d.Microseconds()) / 1000)
}

// Quantile returns the q-th quantile (0..1) of observed connect latencies
// and backoff delays, in milliseconds. Returns 0 for either digest that has
// no samples yet.
func (p *PoolStats) Quantile(q float64) (connectMs, backoffMs float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connect.Count() > 0 {
		connectMs = p.connect.Quantile(q)
	}
	if p.backoff.Count() > 0 {
		backoffMs = p.backoff.Quantile(q)
	}
	return connectMs, backoffMs
}
