package wireproto

import (
	"testing"
	"time"

	cv "github.com/glycerine/goconvey/convey"
)

func Test040_Context_cancel_runs_callbacks_LIFO(t *testing.T) {
	cv.Convey("callbacks run in LIFO order exactly once", t, func() {
		ctx := NewContext("t")
		var order []int
		ctx.Register(func() { order = append(order, 1) })
		ctx.Register(func() { order = append(order, 2) })
		ctx.Register(func() { order = append(order, 3) })

		ctx.Cancel()
		cv.So(order, cv.ShouldResemble, []int{3, 2, 1})

		ctx.Cancel() // idempotent
		cv.So(order, cv.ShouldResemble, []int{3, 2, 1})
	})

	cv.Convey("registering on an already-cancelled context runs the callback immediately", t, func() {
		ctx := NewContext("t")
		ctx.Cancel()
		ran := false
		ctx.Register(func() { ran = true })
		cv.So(ran, cv.ShouldBeTrue)
	})
}

func Test041_WithContext_propagates_cancellation(t *testing.T) {
	cv.Convey("cancelling the parent cancels the child", t, func() {
		parent := NewContext("p")
		child := WithContext(parent, "c")
		parent.Cancel()
		cv.So(child.Cancelled(), cv.ShouldBeTrue)
	})
}

func Test042_Parker_park_and_notify(t *testing.T) {
	cv.Convey("Park returns the notified value", t, func() {
		p := NewParker[int]()
		ctx := NewContext("t")
		go p.Notify(7)
		v, err := p.Park(ctx)
		cv.So(err, cv.ShouldBeNil)
		cv.So(v, cv.ShouldEqual, 7)
	})

	cv.Convey("Park fails Cancelled if the context cancels first", t, func() {
		p := NewParker[int]()
		ctx := NewContext("t")
		ctx.Cancel()
		_, err := p.Park(ctx)
		cv.So(err, cv.ShouldEqual, ErrCancelled)
	})
}

func Test043_WaitGroup_wait(t *testing.T) {
	cv.Convey("Wait returns once the count reaches zero", t, func() {
		wg := NewWaitGroup()
		ctx := NewContext("t")
		wg.Add(1)
		go func() {
			time.Sleep(10 * time.Millisecond)
			wg.Add(-1)
		}()
		err := wg.Wait(ctx)
		cv.So(err, cv.ShouldBeNil)
	})

	cv.Convey("Wait fails Cancelled if the context cancels first", t, func() {
		wg := NewWaitGroup()
		wg.Add(1)
		ctx := NewContext("t")
		ctx.Cancel()
		err := wg.Wait(ctx)
		cv.So(err, cv.ShouldEqual, ErrCancelled)
	})
}

func Test044_Mutex_acquire_release(t *testing.T) {
	cv.Convey("a second Acquire blocks until Release", t, func() {
		m := NewMutex()
		ctx := NewContext("t")
		cv.So(m.Acquire(ctx), cv.ShouldBeNil)

		acquired := make(chan struct{})
		go func() {
			m.Acquire(ctx)
			close(acquired)
		}()

		select {
		case <-acquired:
			t.Fatal("second Acquire should not have completed yet")
		case <-time.After(10 * time.Millisecond):
		}

		m.Release()
		<-acquired
	})
}
