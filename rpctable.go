package wireproto

// rpctable.go implements the nonce-indexed RPC table of spec.md §3, §4.3.
// The teacher repo tracks in-flight round trips with a bare
// `map[uint64]chan *Message` (cli.go's Client.notifyOnce) with no capacity
// bound; that is exactly the "source pattern requiring re-architecture"
// flagged in spec.md §9 ("intrusive ring buffer of optional awaiter
// pointers"). Here that idea is replaced with a fixed power-of-two array of
// explicit nullable slots, giving a hard memory bound and backpressure
// instead of an unbounded map.

import "sync"

// RPCTableCapacity is the fixed ring buffer capacity, per spec.md §5.
const RPCTableCapacity = 1 << 16 // 65536, a power of two

const rpcTableMask = RPCTableCapacity - 1

// RPCEntry is what a caller registers while awaiting a response. Response
// is notified exactly once, by Push or by the registering Context's
// cancellation.
type RPCEntry struct {
	Response *Parker[[]byte]
}

// RPCResponse is what a completed read loop hands to Push.
type RPCResponse struct {
	Nonce uint32
	Body  []byte
}

// RPCTable allocates nonces, parks registrants when full, and routes
// responses back to the awaiter with the matching nonce. All exported
// methods are safe for concurrent use; register() may suspend the caller.
type RPCTable struct {
	mu   sync.Mutex
	slot [RPCTableCapacity]*RPCEntry

	head uint32 // next nonce to allocate
	tail uint32 // oldest outstanding nonce

	spaceAvail chan struct{} // closed and replaced whenever a slot frees
}

// NewRPCTable returns an empty table with head = tail = 0.
func NewRPCTable() *RPCTable {
	return &RPCTable{spaceAvail: make(chan struct{})}
}

func (t *RPCTable) full() bool {
	return t.head-t.tail >= RPCTableCapacity
}

// Register blocks while the table is full, then atomically reserves the
// slot at head, stores entry, and returns head as the assigned nonce before
// advancing head by one (wrapping mod 2^32). It installs a deregistration
// hook on ctx so that cancellation (or any other exit path the caller
// drives through the returned CancelFunc) frees the slot exactly once.
func (t *RPCTable) Register(ctx *Context, entry *RPCEntry) (nonce uint32, dereg CancelFunc, err error) {
	for {
		t.mu.Lock()
		if !t.full() {
			nonce = t.head
			t.head++
			t.slot[nonce&rpcTableMask] = entry
			t.mu.Unlock()

			hook := ctx.Register(func() { t.deregister(nonce) })
			dereg = func() {
				hook()
				t.deregister(nonce)
			}
			return nonce, dereg, nil
		}
		wait := t.spaceAvail
		t.mu.Unlock()

		select {
		case <-wait:
			// re-check: capacity may have been claimed by another
			// waiter already; loop back and test again.
		case <-ctx.Done():
			return 0, nil, ErrCancelled
		}
	}
}

// deregister clears the slot for nonce if still occupied and advances tail
// over the resulting run of null slots, then signals any waiting
// registrants. It is safe to call more than once (e.g. from both the
// cancellation hook and the CancelFunc returned by Register) and after Push
// has already cleared the slot; those later calls are no-ops.
func (t *RPCTable) deregister(nonce uint32) {
	t.mu.Lock()
	idx := nonce & rpcTableMask
	if t.slot[idx] == nil {
		t.mu.Unlock()
		return
	}
	t.slot[idx] = nil
	t.advanceTailLocked()
	t.signalSpaceLocked()
	t.mu.Unlock()
}

func (t *RPCTable) advanceTailLocked() {
	for t.tail != t.head && t.slot[t.tail&rpcTableMask] == nil {
		t.tail++
	}
}

func (t *RPCTable) signalSpaceLocked() {
	close(t.spaceAvail)
	t.spaceAvail = make(chan struct{})
}

// Push routes a response to its awaiter, per spec.md §4.3. It rejects
// (returns false, no state change) stale or forged nonces — those at or
// beyond tail+capacity, or whose slot is already null (already delivered,
// or the registrant cancelled first). Rejection is UnexpectedResponse on
// the caller's read loop, fatal for that connection.
func (t *RPCTable) Push(resp RPCResponse) bool {
	t.mu.Lock()
	distance := resp.Nonce - t.tail // unsigned wrap
	if distance >= RPCTableCapacity {
		t.mu.Unlock()
		return false
	}
	idx := resp.Nonce & rpcTableMask
	entry := t.slot[idx]
	if entry == nil {
		t.mu.Unlock()
		return false
	}
	t.slot[idx] = nil
	t.advanceTailLocked()
	t.signalSpaceLocked()
	t.mu.Unlock()

	entry.Response.Notify(resp.Body)
	return true
}

// Outstanding reports head - tail, the span of nonces from the oldest
// outstanding one up to the next to allocate, for tests and metrics. Slots
// inside that span already cleared out of order are still counted.
func (t *RPCTable) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.head - t.tail)
}

// Head and Tail expose the ring cursors for tests of the contiguity
// invariant (spec.md §8 invariant 3).
func (t *RPCTable) Head() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.head
}

func (t *RPCTable) Tail() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tail
}
