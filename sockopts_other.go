//go:build !linux

package wireproto

import "net"

// setQuickAck is a no-op outside Linux: TCP_QUICKACK is a Linux-specific
// socket option with no portable equivalent.
func setQuickAck(*net.TCPConn) {}
