package wireproto

import (
	"net"
	"testing"
	"time"

	cv "github.com/glycerine/goconvey/convey"
)

func Test060_Client_S1_request_response_over_real_socket(t *testing.T) {
	cv.Convey("SendRequest against a real echoing Server returns the same body", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		cv.So(err, cv.ShouldBeNil)
		srv := NewServer(echoTestNode{})
		go srv.Serve(ln)
		defer srv.Shutdown()

		addr, err := Parse(ln.Addr().String())
		cv.So(err, cv.ShouldBeNil)

		cfg := DefaultConfig()
		cfg.TargetCapacity = 1
		client := NewClient(addr, cfg)
		defer client.Shutdown()

		ctx := NewContext("test")
		reply, err := client.SendRequest(ctx, TagPing, []byte("hello"))
		cv.So(err, cv.ShouldBeNil)
		cv.So(string(reply), cv.ShouldEqual, "hello")
	})
}

func Test061_S4_breaker_trips_on_repeated_connect_failure(t *testing.T) {
	cv.Convey("a Client pointed at a closed port trips its breaker after max_fails", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		cv.So(err, cv.ShouldBeNil)
		closedAddr := ln.Addr().String()
		ln.Close() // nothing listens here anymore

		addr, err := Parse(closedAddr)
		cv.So(err, cv.ShouldBeNil)

		cfg := DefaultConfig()
		cfg.TargetCapacity = 1
		cfg.MaxFails = 1
		cfg.ResetTimeout = time.Hour
		client := NewClient(addr, cfg)
		defer client.Shutdown()

		ctx := NewContext("test")
		_, err = client.AcquireWriter(ctx)
		cv.So(err, cv.ShouldEqual, ErrCircuitBreakerTripped)
	})
}

func Test062_S5_backpressure_releases_after_flush(t *testing.T) {
	cv.Convey("AcquireWriter blocks while the outbound buffer exceeds 64KiB and resumes once it drains", t, func(c cv.C) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		cv.So(err, cv.ShouldBeNil)
		srv := NewServer(echoTestNode{})
		go srv.Serve(ln)
		defer srv.Shutdown()

		addr, err := Parse(ln.Addr().String())
		cv.So(err, cv.ShouldBeNil)
		cfg := DefaultConfig()
		cfg.TargetCapacity = 1
		client := NewClient(addr, cfg)
		defer client.Shutdown()

		ctx := NewContext("test")
		// force the pool to spawn and go alive first.
		w, err := client.AcquireWriter(ctx)
		cv.So(err, cv.ShouldBeNil)

		client.mu.Lock()
		client.outbound = make([]byte, 70*1024) // above the 64 KiB soft cap
		client.mu.Unlock()
		w.Release()

		done := make(chan struct{})
		go func() {
			_, err := client.AcquireWriter(ctx)
			c.So(err, cv.ShouldBeNil)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("AcquireWriter did not resume after the buffer drained")
		}
	})
}
