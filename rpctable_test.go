package wireproto

import (
	"testing"

	cv "github.com/glycerine/goconvey/convey"
)

func Test030_S1_single_request_response(t *testing.T) {
	cv.Convey("a registered entry resumes with the pushed body", t, func() {
		table := NewRPCTable()
		ctx := NewContext("t")
		entry := &RPCEntry{Response: NewParker[[]byte]()}

		nonce, dereg, err := table.Register(ctx, entry)
		cv.So(err, cv.ShouldBeNil)
		defer dereg()

		body := []byte{0x01, 0x02, 0x03}
		ok := table.Push(RPCResponse{Nonce: nonce, Body: body})
		cv.So(ok, cv.ShouldBeTrue)

		got, err := entry.Response.Park(ctx)
		cv.So(err, cv.ShouldBeNil)
		cv.So(got, cv.ShouldResemble, body)
	})
}

func Test031_S2_out_of_order_responses(t *testing.T) {
	cv.Convey("nonces 0,1,2 fed back in order 2,0,1 all resume correctly and tail ends at 3", t, func() {
		table := NewRPCTable()
		ctx := NewContext("t")

		entries := make([]*RPCEntry, 3)
		nonces := make([]uint32, 3)
		for i := 0; i < 3; i++ {
			entries[i] = &RPCEntry{Response: NewParker[[]byte]()}
			n, dereg, err := table.Register(ctx, entries[i])
			cv.So(err, cv.ShouldBeNil)
			nonces[i] = n
			defer dereg()
		}

		order := []int{2, 0, 1}
		for _, i := range order {
			ok := table.Push(RPCResponse{Nonce: nonces[i], Body: []byte{byte(i)}})
			cv.So(ok, cv.ShouldBeTrue)
		}

		for i := 0; i < 3; i++ {
			got, err := entries[i].Response.Park(ctx)
			cv.So(err, cv.ShouldBeNil)
			cv.So(got, cv.ShouldResemble, []byte{byte(i)})
		}

		cv.So(table.Tail(), cv.ShouldEqual, uint32(3))
	})
}

func Test032_S3_stale_response_rejected(t *testing.T) {
	cv.Convey("a response for a cancelled, already-cleared nonce is rejected", t, func() {
		table := NewRPCTable()
		ctx := NewContext("t")
		childCtx := WithContext(ctx, "child")

		entry := &RPCEntry{Response: NewParker[[]byte]()}
		nonce, _, err := table.Register(childCtx, entry)
		cv.So(err, cv.ShouldBeNil)

		childCtx.Cancel() // clears the slot, advances tail to 1

		cv.So(table.Tail(), cv.ShouldEqual, uint32(1))

		ok := table.Push(RPCResponse{Nonce: nonce, Body: []byte{0xff}})
		cv.So(ok, cv.ShouldBeFalse)
	})
}

func Test033_nonce_uniqueness(t *testing.T) {
	cv.Convey("successive registrations return strictly increasing nonces", t, func() {
		table := NewRPCTable()
		ctx := NewContext("t")

		var prev uint32
		for i := 0; i < 100; i++ {
			entry := &RPCEntry{Response: NewParker[[]byte]()}
			n, _, err := table.Register(ctx, entry)
			cv.So(err, cv.ShouldBeNil)
			if i > 0 {
				cv.So(n, cv.ShouldEqual, prev+1)
			}
			prev = n
		}
	})
}

func Test034_push_rejects_out_of_range_nonce(t *testing.T) {
	cv.Convey("push on a nonce at or beyond tail+capacity returns false", t, func() {
		table := NewRPCTable()
		ok := table.Push(RPCResponse{Nonce: RPCTableCapacity, Body: nil})
		cv.So(ok, cv.ShouldBeFalse)
	})

	cv.Convey("push on a never-registered nonce within range returns false", t, func() {
		table := NewRPCTable()
		ctx := NewContext("t")
		entry := &RPCEntry{Response: NewParker[[]byte]()}
		_, _, err := table.Register(ctx, entry)
		cv.So(err, cv.ShouldBeNil)

		ok := table.Push(RPCResponse{Nonce: 5, Body: nil})
		cv.So(ok, cv.ShouldBeFalse)
	})
}
