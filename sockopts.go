package wireproto

// sockopts.go applies the socket options required by spec.md §6 —
// TCP_NODELAY, SO_KEEPALIVE, TCP_QUICKACK — to every dialed or accepted
// connection. NoDelay and KeepAlive are portable via net.TCPConn; QuickACK
// has no stdlib equivalent, so the Linux-specific half lives in
// sockopts_linux.go behind golang.org/x/sys/unix, the same low-level socket
// tuning package the corpus reaches for (see DESIGN.md).

import (
	"net"
	"time"
)

const tcpKeepAlivePeriod = 30 * time.Second

func setSocketOptions(conn net.Conn) {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tc.SetNoDelay(true)
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(tcpKeepAlivePeriod)
	setQuickAck(tc)
}
