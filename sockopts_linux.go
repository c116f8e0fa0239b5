//go:build linux

package wireproto

import (
	"net"

	"golang.org/x/sys/unix"
)

// setQuickAck sets TCP_QUICKACK so the kernel sends ACKs immediately rather
// than delaying them, matching this protocol's small-request/small-response
// traffic pattern.
func setQuickAck(tc *net.TCPConn) {
	raw, err := tc.SyscallConn()
	if err != nil {
		return
	}
	raw.Control(func(fd uintptr) {
		unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	})
}
