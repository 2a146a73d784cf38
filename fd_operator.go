//go:build linux

package zstream

import (
	"runtime"
	"sync/atomic"
)

// FDOperator binds a descriptor to the callbacks its poller drives.
type FDOperator struct {
	FD int

	// OnHup is called once, off the poller goroutine, after the descriptor
	// was detached. cause is nil for a peer close or end-of-file.
	OnHup func(p Poller, cause error) error

	// The following is the required fn, which must exist when used, or directly panic.
	// Fns are only called by the poller when it handles read events.
	Inputs   func(vs [][]byte) (rs [][]byte)
	InputAck func(n int) (err error)

	poller Poller

	state int32 // CAS: 0(unused) 1(inuse) 2(onEvent)
}

func (o *FDOperator) Control(event PollEvent) error {
	return o.poller.Control(o, event)
}

// unused waits for an in-flight event to finish and marks the operator idle.
func (o *FDOperator) unused() {
	for !atomic.CompareAndSwapInt32(&o.state, 1, 0) {
		if atomic.LoadInt32(&o.state) == 0 {
			return
		}
		runtime.Gosched()
	}
}

func (o *FDOperator) inuse() {
	for !atomic.CompareAndSwapInt32(&o.state, 0, 1) {
		if atomic.LoadInt32(&o.state) == 1 {
			return
		}
		runtime.Gosched()
	}
}

func (o *FDOperator) tryOnEvent() (ok bool) {
	return atomic.CompareAndSwapInt32(&o.state, 1, 2)
}

func (o *FDOperator) done() {
	atomic.StoreInt32(&o.state, 1)
}
