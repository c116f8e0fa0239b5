package wireproto

// packet.go: the 10-byte fixed header plus variable body framing described
// in spec.md §4.1 and §6. Stateless and transport-independent, in the same
// spirit as the teacher's hdr.go header (de)serialization, but a plain
// little-endian binary layout rather than greenpack/msgpack, since the
// header here is fixed-shape and does not need a schema-evolving codec.

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameBody is the largest permitted body length, per spec.md §3.
const MaxFrameBody = 1 << 20 // 1 MiB

// HeaderSize is the exact wire size of PacketHeader.
const HeaderSize = 10

// Op identifies the role a packet plays: a fire-and-forget command, an
// outstanding request, or a response correlated by nonce.
type Op uint8

const (
	OpCommand  Op = 0
	OpRequest  Op = 1
	OpResponse Op = 2
)

func (o Op) valid() bool { return o <= OpResponse }

// Tag identifies the application-level meaning of a packet body. The
// enumeration is extensible; unknown values are a decode error.
type Tag uint8

const (
	TagPing           Tag = 0
	TagHello          Tag = 1
	TagFindNode       Tag = 2
	TagPushTransaction Tag = 3
	TagPullTransaction Tag = 4
	TagPullBlock      Tag = 5

	tagMax = TagPullBlock
)

func (t Tag) valid() bool { return t <= tagMax }

func (t Tag) String() string {
	switch t {
	case TagPing:
		return "ping"
	case TagHello:
		return "hello"
	case TagFindNode:
		return "find_node"
	case TagPushTransaction:
		return "push_transaction"
	case TagPullTransaction:
		return "pull_transaction"
	case TagPullBlock:
		return "pull_block"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// PacketHeader is the exactly-10-byte header preceding every packet body.
type PacketHeader struct {
	Len   uint32 // body length in bytes; invariant Len <= MaxFrameBody
	Nonce uint32 // request/response correlator
	Op    Op
	Tag   Tag
}

// Encode writes the 10-byte header to out: len, nonce as little-endian
// u32s, then op, tag as single bytes.
func Encode(h PacketHeader, out []byte) {
	_ = out[:HeaderSize] // bounds check hint
	binary.LittleEndian.PutUint32(out[0:4], h.Len)
	binary.LittleEndian.PutUint32(out[4:8], h.Nonce)
	out[8] = byte(h.Op)
	out[9] = byte(h.Tag)
}

// Decode reads a 10-byte header from in. It fails with ErrFrameTooLarge if
// Len exceeds MaxFrameBody, and ErrBadEnum if Op or Tag are out of range;
// both checks consume only the 10 header bytes already read by the caller.
func Decode(in []byte) (PacketHeader, error) {
	if len(in) < HeaderSize {
		return PacketHeader{}, io.ErrShortBuffer
	}
	h := PacketHeader{
		Len:   binary.LittleEndian.Uint32(in[0:4]),
		Nonce: binary.LittleEndian.Uint32(in[4:8]),
		Op:    Op(in[8]),
		Tag:   Tag(in[9]),
	}
	if h.Len > MaxFrameBody {
		return PacketHeader{}, ErrFrameTooLarge
	}
	if !h.Op.valid() || !h.Tag.valid() {
		return PacketHeader{}, ErrBadEnum
	}
	return h, nil
}
