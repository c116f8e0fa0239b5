package wireproto

// node.go: the single seam between this transport core and application
// semantics, per spec.md §9's guidance to replace compile-time
// parameterization over the node type with an interface capability.

import "io"

// Node is implemented by the application layer running atop a Server. It is
// the only point at which packet payloads are interpreted.
type Node interface {
	// HandleServerPacket is invoked once per inbound frame, whatever its
	// op; the Server does not filter out responses. body is bounded to
	// exactly hdr.Len bytes; the
	// implementation must not read past io.EOF. To reply (typically for
	// op == request), append an encoded response frame to conn's outbound
	// buffer via conn.Writer() and call Release.
	HandleServerPacket(ctx *Context, conn *ServerConn, hdr PacketHeader, body io.Reader) error
}
