package wireproto

// client.go implements the resilient outbound connection pool of spec.md
// §4.4, grounded on the teacher's cli.go (Client struct, RunSendLoop /
// RunReadLoop pairing, reconnect-on-error loop) generalized from a single
// persistent connection to a demand-grown pool gated by a circuit breaker.

import (
	"errors"
	"net"
	"sync"
	"time"
)

// OutboundSoftCap is the soft backpressure threshold on the pool's shared
// outbound buffer, per spec.md §5.
const OutboundSoftCap = 64 * 1024

// Client is bound to one remote address and maintains up to
// Config.TargetCapacity live connections to it, per spec.md §3.
type Client struct {
	addr Address
	cfg  *Config
	ctx  *Context

	rpc *RPCTable
	wg  *WaitGroup

	connectMu *Mutex
	writeEv   *event
	writerEv  *event

	breakerMu sync.Mutex
	breaker   *CircuitBreaker

	connectSig *connectSignal

	mu         sync.Mutex
	outbound   []byte
	aliveCount int
	poolSize   int

	stats *PoolStats
}

// NewClient constructs a Client for addr. It performs no I/O; connections
// are grown lazily by the first AcquireWriter call.
func NewClient(addr Address, cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.apply()
	return &Client{
		addr:       addr,
		cfg:        cfg,
		ctx:        NewContext("client:" + addr.String()),
		rpc:        NewRPCTable(),
		wg:         NewWaitGroup(),
		connectMu:  NewMutex(),
		writeEv:    newEvent(),
		writerEv:   newEvent(),
		breaker:    NewCircuitBreaker(cfg.MaxFails, cfg.ResetTimeout),
		connectSig: newConnectSignal(),
		stats:      NewPoolStats(),
	}
}

// Shutdown cancels the client's context, awaits (up to 30s) every
// connection task to exit, then returns. Per spec.md §3's Client lifecycle.
func (c *Client) Shutdown() {
	c.ctx.Cancel()
	// Waiting on c.ctx would return at once, since it is already
	// cancelled; instead wait on a separate context that is cancelled
	// after 30s, so Shutdown returns when the group empties or at that
	// deadline, whichever comes first.
	deadline := NewContext("client-shutdown")
	go func() {
		time.Sleep(30 * time.Second)
		deadline.Cancel()
	}()
	_ = c.wg.Wait(deadline)
}

// Writer appends bytes to the client's shared outbound buffer, taken via
// AcquireWriter.
type Writer struct {
	c *Client
}

// Write appends p to the outbound buffer. Always succeeds; backpressure is
// applied before the Writer is handed out, not while appending, matching
// spec.md §4.4.1's "soft cap, not a hard cap" contract.
func (w *Writer) Write(p []byte) (int, error) {
	w.c.mu.Lock()
	w.c.outbound = append(w.c.outbound, p...)
	w.c.mu.Unlock()
	return len(p), nil
}

// Release notifies the write loop that new bytes are pending.
func (w *Writer) Release() {
	w.c.writerEv.Signal()
}

// AcquireWriter implements spec.md §4.4.1.
func (c *Client) AcquireWriter(ctx *Context) (*Writer, error) {
	if ctx.Cancelled() || c.ctx.Cancelled() {
		return nil, ErrClosed
	}
	if err := c.ensureConnectionAvailable(ctx); err != nil {
		return nil, err
	}
	for {
		c.mu.Lock()
		full := len(c.outbound) > OutboundSoftCap
		c.mu.Unlock()
		if !full {
			return &Writer{c: c}, nil
		}
		if err := c.writeEv.Wait(ctx); err != nil {
			return nil, ErrClosed
		}
		if ctx.Cancelled() || c.ctx.Cancelled() {
			return nil, ErrClosed
		}
	}
}

// PoolSize reports the number of connection tasks currently running (live
// or still attempting to connect), for status reporting and tests.
func (c *Client) PoolSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poolSize
}

// AliveCount reports the number of currently established connections.
func (c *Client) AliveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aliveCount
}

// BreakerState reports the circuit breaker's state as of t, per spec.md §3.
func (c *Client) BreakerState(t time.Time) BreakerState {
	c.breakerMu.Lock()
	defer c.breakerMu.Unlock()
	return c.breaker.State(t)
}

// SendRequest is a convenience wrapper: it registers an RPC entry, writes a
// request frame, and parks for the matching response.
func (c *Client) SendRequest(ctx *Context, tag Tag, body []byte) ([]byte, error) {
	entry := &RPCEntry{Response: NewParker[[]byte]()}
	nonce, dereg, err := c.rpc.Register(ctx, entry)
	if err != nil {
		return nil, err
	}
	defer dereg()

	w, err := c.AcquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	framed := make([]byte, HeaderSize+len(body))
	Encode(PacketHeader{Len: uint32(len(body)), Nonce: nonce, Op: OpRequest, Tag: tag}, framed[:HeaderSize])
	copy(framed[HeaderSize:], body)
	if _, err := w.Write(framed); err != nil {
		return nil, err
	}
	w.Release()

	return entry.Response.Park(ctx)
}

// ensureConnectionAvailable implements spec.md §4.4.2.
func (c *Client) ensureConnectionAvailable(ctx *Context) error {
	c.mu.Lock()
	needSpawn := c.poolSize == 0
	if !needSpawn {
		c.breakerMu.Lock()
		noFailures := !c.breaker.HasFailures()
		c.breakerMu.Unlock()
		pending := len(c.outbound) > 0
		if pending && noFailures && c.poolSize < c.cfg.TargetCapacity {
			needSpawn = true
		}
	}
	alive := c.aliveCount
	if needSpawn {
		c.poolSize++
	}
	c.mu.Unlock()

	if needSpawn {
		c.wg.Add(1)
		connCtx := WithContext(c.ctx, "conn")
		go c.serveConnection(connCtx)
	}

	if alive == 0 {
		return c.connectSig.Wait(ctx)
	}
	return nil
}

// serveConnection implements spec.md §4.4.3.
func (c *Client) serveConnection(ctx *Context) {
	defer func() {
		c.mu.Lock()
		c.poolSize--
		c.mu.Unlock()
		c.wg.Add(-1)
	}()

	for {
		conn, err := c.attemptConnection(ctx)
		if err != nil {
			if errors.Is(err, ErrCircuitBreakerTripped) {
				c.connectSig.Broadcast(err)
				return
			}
			if ctx.Cancelled() {
				return
			}
			continue
		}

		dereg := ctx.Register(func() {
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.CloseRead()
			}
		})

		c.mu.Lock()
		c.aliveCount++
		c.mu.Unlock()
		c.connectSig.Broadcast(nil)

		connCtx := WithContext(ctx, "conn-io")
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			c.writeLoop(connCtx, conn)
		}()

		readErr := c.readLoop(connCtx, conn)
		if readErr != nil {
			logf("wireproto: [%s] connection %v closed: %v", ctx.ID(), conn.RemoteAddr(), readErr)
		}
		connCtx.Cancel()
		<-writeDone

		conn.Close()
		dereg()

		c.mu.Lock()
		c.aliveCount--
		poolSize := c.poolSize
		c.mu.Unlock()

		if ctx.Cancelled() {
			return
		}
		if poolSize > c.cfg.TargetCapacity {
			return
		}
	}
}

// attemptConnection implements spec.md §4.4.3 step 2a-2c.
func (c *Client) attemptConnection(ctx *Context) (net.Conn, error) {
	if err := c.connectMu.Acquire(ctx); err != nil {
		return nil, ErrCancelled
	}
	defer c.connectMu.Release()

	now := time.Now()
	c.breakerMu.Lock()
	state := c.breaker.State(now)
	fails := c.breaker.Fails()
	c.breakerMu.Unlock()

	if state == BreakerOpen {
		return nil, ErrCircuitBreakerTripped
	}

	if fails > 0 {
		d := Backoff(fails)
		select {
		case <-time.After(d):
			c.stats.ObserveBackoff(d)
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}

	start := time.Now()
	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx.Std(), "tcp", c.addr.String())
	if err != nil {
		c.breakerMu.Lock()
		c.breaker.ReportFailure(time.Now())
		c.breakerMu.Unlock()
		logf("wireproto: [%s] dial %s failed: %v", ctx.ID(), c.addr, err)
		return nil, err
	}
	setSocketOptions(conn)

	c.breakerMu.Lock()
	c.breaker.ReportSuccess()
	c.breakerMu.Unlock()
	c.stats.ObserveConnect(time.Since(start))
	return conn, nil
}

// readLoop implements spec.md §4.4.4.
func (c *Client) readLoop(ctx *Context, conn net.Conn) error {
	for {
		hdr, body, err := readFrame(conn)
		if err != nil {
			return err
		}
		if hdr.Op != OpResponse {
			continue
		}
		if !c.rpc.Push(RPCResponse{Nonce: hdr.Nonce, Body: body}) {
			return ErrUnexpectedResponse
		}
	}
}

// writeLoop implements spec.md §4.4.5.
func (c *Client) writeLoop(ctx *Context, conn net.Conn) {
	for {
		c.mu.Lock()
		empty := len(c.outbound) == 0
		c.mu.Unlock()
		if empty {
			if err := c.writerEv.Wait(ctx); err != nil {
				return
			}
			if ctx.Cancelled() {
				return
			}
			continue
		}

		c.mu.Lock()
		buf := c.outbound
		c.outbound = nil
		c.mu.Unlock()

		if err := writeAll(conn, buf); err != nil {
			return
		}
		c.writeEv.Signal()
	}
}
