package wireproto

// server.go implements the inbound connection dispatcher of spec.md §4.5,
// grounded on the teacher's srv.go accept loop (RunServerMain's
// Accept/spawn-goroutine/close pattern), generalized with the error
// classification and node-callback handoff the spec calls for.

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"time"
)

// Server accepts inbound connections on a net.Listener and dispatches
// framed packets to a Node.
type Server struct {
	ctx  *Context
	node Node

	wg *WaitGroup
}

// NewServer constructs a Server that will hand every inbound packet to node.
func NewServer(node Node) *Server {
	return &Server{
		ctx:  NewContext("server"),
		node: node,
		wg:   NewWaitGroup(),
	}
}

// Context returns the server's root cancellation context.
func (s *Server) Context() *Context { return s.ctx }

// Shutdown cancels the server and waits (up to 30s) for every connection
// task to exit.
func (s *Server) Shutdown() {
	s.ctx.Cancel()
	deadline := NewContext("server-shutdown")
	go func() {
		time.Sleep(30 * time.Second)
		deadline.Cancel()
	}()
	_ = s.wg.Wait(deadline)
}

// Serve implements spec.md §4.5's serve(ctx, listener): it registers a
// cancellation hook that shuts the listener down, then loops on Accept,
// classifying errors per the spec's taxonomy.
func (s *Server) Serve(listener net.Listener) error {
	dereg := s.ctx.Register(func() { listener.Close() })
	defer dereg()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Cancelled() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				logf("wireproto: accept temporary error: %v", err)
				continue
			}
			return err
		}

		setSocketOptions(conn)
		s.wg.Add(1)
		connCtx := WithContext(s.ctx, "server-conn")
		go s.serveConnection(connCtx, conn)
	}
}

// ServerConn is the per-connection state a Node sees, per spec.md §3.
type ServerConn struct {
	conn net.Conn

	mu       sync.Mutex
	outbound []byte

	writeEv  *event
	writerEv *event
}

// Writer returns a handle a Node uses to append to this connection's
// outbound buffer.
func (sc *ServerConn) Writer() *ServerWriter { return &ServerWriter{sc: sc} }

// RemoteAddr exposes the underlying socket's peer address.
func (sc *ServerConn) RemoteAddr() net.Addr { return sc.conn.RemoteAddr() }

// ServerWriter is the Node-facing counterpart of Client's Writer.
type ServerWriter struct{ sc *ServerConn }

// Write appends p to the connection's outbound buffer.
func (w *ServerWriter) Write(p []byte) (int, error) {
	w.sc.mu.Lock()
	w.sc.outbound = append(w.sc.outbound, p...)
	w.sc.mu.Unlock()
	return len(p), nil
}

// Release notifies the write loop that new bytes are pending.
func (w *ServerWriter) Release() {
	w.sc.writerEv.Signal()
}

// serveConnection implements spec.md §4.5's serve_connection: paired read
// and write loops under a child context, half-close on cancel.
func (s *Server) serveConnection(ctx *Context, conn net.Conn) {
	defer s.wg.Add(-1)

	sc := &ServerConn{
		conn:     conn,
		writeEv:  newEvent(),
		writerEv: newEvent(),
	}

	dereg := ctx.Register(func() {
		if tc, ok := conn.(*net.TCPConn); ok {
			tc.CloseRead()
		}
	})
	defer dereg()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(ctx, sc)
	}()

	readErr := s.readLoop(ctx, sc)
	if readErr != nil {
		logf("wireproto: [%s] connection %v closed: %v", ctx.ID(), conn.RemoteAddr(), readErr)
	}
	ctx.Cancel()
	<-writeDone
	conn.Close()
}

// readLoop frames inbound packets identically to the Client's read loop,
// but hands each one to the Node instead of the RPC table, applying 64 KiB
// outbound backpressure before the handoff per spec.md §4.5.
func (s *Server) readLoop(ctx *Context, sc *ServerConn) error {
	for {
		hdr, body, err := readFrame(sc.conn)
		if err != nil {
			return err
		}

		sc.mu.Lock()
		full := len(sc.outbound) > OutboundSoftCap
		sc.mu.Unlock()
		if full {
			if err := sc.writeEv.Wait(ctx); err != nil {
				return err
			}
		}

		if err := s.node.HandleServerPacket(ctx, sc, hdr, bytes.NewReader(body)); err != nil {
			return err
		}
	}
}

// writeLoop is the Server's counterpart to Client's write loop and, per
// spec.md §4.5, is "otherwise identical to the Client's": it takes true
// ownership of the pending bytes by swapping the buffer to nil before the
// blocking writeAll, exactly like Client.writeLoop. Clearing in place with
// outbound[:0] after an unlocked writeAll would race a concurrent
// ServerWriter.Write appending mid-flush and silently discard it.
func (s *Server) writeLoop(ctx *Context, sc *ServerConn) {
	for {
		sc.mu.Lock()
		empty := len(sc.outbound) == 0
		sc.mu.Unlock()
		if empty {
			if err := sc.writerEv.Wait(ctx); err != nil {
				return
			}
			if ctx.Cancelled() {
				return
			}
			continue
		}

		sc.mu.Lock()
		buf := sc.outbound
		sc.outbound = nil
		sc.mu.Unlock()

		if err := writeAll(sc.conn, buf); err != nil {
			return
		}

		sc.writeEv.Signal()
	}
}
