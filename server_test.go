package wireproto

import (
	"io"
	"net"
	"testing"
	"time"

	cv "github.com/glycerine/goconvey/convey"
)

func Test050_Server_echoes_ping_to_pong(t *testing.T) {
	cv.Convey("a Node handler can reply on the same connection", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		cv.So(err, cv.ShouldBeNil)
		defer ln.Close()

		srv := NewServer(echoTestNode{})
		go srv.Serve(ln)
		defer srv.Shutdown()

		conn, err := net.Dial("tcp", ln.Addr().String())
		cv.So(err, cv.ShouldBeNil)
		defer conn.Close()

		body := []byte("ping-body")
		cv.So(writeFrame(conn, PacketHeader{Nonce: 1, Op: OpRequest, Tag: TagPing}, body), cv.ShouldBeNil)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		hdr, got, err := readFrame(conn)
		cv.So(err, cv.ShouldBeNil)
		cv.So(hdr.Op, cv.ShouldEqual, OpResponse)
		cv.So(hdr.Nonce, cv.ShouldEqual, uint32(1))
		cv.So(got, cv.ShouldResemble, body)
	})
}

func Test051_Server_shutdown_closes_listener(t *testing.T) {
	cv.Convey("Serve returns once the server is shut down", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		cv.So(err, cv.ShouldBeNil)

		srv := NewServer(echoTestNode{})
		done := make(chan error, 1)
		go func() { done <- srv.Serve(ln) }()

		srv.Shutdown()

		select {
		case err := <-done:
			cv.So(err, cv.ShouldBeNil)
		case <-time.After(2 * time.Second):
			t.Fatal("Serve did not return after Shutdown")
		}
	})
}

type echoTestNode struct{}

func (echoTestNode) HandleServerPacket(ctx *Context, conn *ServerConn, hdr PacketHeader, body io.Reader) error {
	buf, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	w := conn.Writer()
	framed := make([]byte, HeaderSize+len(buf))
	Encode(PacketHeader{Len: uint32(len(buf)), Nonce: hdr.Nonce, Op: OpResponse, Tag: hdr.Tag}, framed[:HeaderSize])
	copy(framed[HeaderSize:], buf)
	if _, err := w.Write(framed); err != nil {
		return err
	}
	w.Release()
	return nil
}
