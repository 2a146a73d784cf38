//go:build linux

package zstream

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/zhihanii/zlog"
	"golang.org/x/sys/unix"
)

// Poller waits for readiness of registered descriptors and moves their bytes
// into the owning channels.
type Poller interface {
	Poll() error

	Close() error

	Control(operator *FDOperator, event PollEvent) error

	// Load is the number of registered descriptors.
	Load() int
}

type PollEvent int8

const (
	// PollReadable registers the descriptor for read and hang-up events.
	PollReadable PollEvent = 0x1
	// PollModReadable re-arms read events after PollPause.
	PollModReadable PollEvent = 0x2
	// PollPause keeps only hang-up and error events while the channel is full.
	PollPause PollEvent = 0x3
	// PollDetach removes the descriptor.
	PollDetach PollEvent = 0x4
)

type hup struct {
	operator *FDOperator
	cause    error
}

type defaultPoller struct {
	fd        int
	wop       *FDOperator // eventfd used to wake and close the loop
	events    []unix.EpollEvent
	iovs      [][]byte
	operators sync.Map // fd -> *FDOperator
	load      int32
	hups      []hup
	buf       []byte
}

func openPoller() (Poller, error) {
	return openDefaultPoller()
}

func openDefaultPoller() (*defaultPoller, error) {
	var p = &defaultPoller{buf: make([]byte, 8), iovs: make([][]byte, 1)}
	var err error
	p.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	efd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(p.fd)
		return nil, err
	}
	p.wop = &FDOperator{FD: efd}
	var evt = unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(efd)}
	if err = unix.EpollCtl(p.fd, unix.EPOLL_CTL_ADD, efd, &evt); err != nil {
		unix.Close(efd)
		unix.Close(p.fd)
		return nil, err
	}
	return p, nil
}

func (p *defaultPoller) reset(size int) {
	p.events = make([]unix.EpollEvent, size)
}

func (p *defaultPoller) Poll() (err error) {
	var msec, n = -1, 0
	p.reset(128)
	for {
		if n == len(p.events) && len(p.events) < 128*1024 {
			p.reset(len(p.events) << 1)
		}
		n, err = unix.EpollWait(p.fd, p.events, msec)
		if err != nil && err != unix.EINTR {
			zlog.Errorf("epoll_wait(fd=%d) failed: %s", p.fd, err.Error())
			return err
		}
		if n <= 0 {
			msec = -1
			runtime.Gosched()
			continue
		}
		msec = 0
		if p.handle(p.events[:n]) {
			return nil
		}
	}
}

func (p *defaultPoller) handle(events []unix.EpollEvent) (closed bool) {
	for i := range events {
		fd := int(events[i].Fd)
		if fd == p.wop.FD {
			unix.Read(p.wop.FD, p.buf)
			if p.buf[0] > 0 {
				unix.Close(p.wop.FD)
				unix.Close(p.fd)
				return true
			}
			continue
		}

		v, ok := p.operators.Load(fd)
		if !ok {
			continue
		}
		operator := v.(*FDOperator)
		if !operator.tryOnEvent() {
			continue
		}

		evt := events[i].Events
		if evt&unix.EPOLLIN != 0 {
			if bs := operator.Inputs(p.iovs); len(bs) > 0 {
				n, err := readv(operator.FD, bs)
				operator.InputAck(n)
				if n == 0 && err == nil {
					// end of file
					p.appendHup(operator, nil)
					continue
				}
				if err != nil && !isTemporary(err) {
					zlog.Errorf("readv(fd=%d) failed: %s", operator.FD, err.Error())
					p.appendHup(operator, err)
					continue
				}
			}
		}

		if evt&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
			p.appendHup(operator, nil)
			continue
		}

		if evt&unix.EPOLLERR != 0 {
			p.appendHup(operator, socketError(operator.FD))
			continue
		}
		operator.done()
	}
	p.detaches()
	return false
}

func (p *defaultPoller) Close() error {
	_, err := unix.Write(p.wop.FD, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	return err
}

func (p *defaultPoller) Load() int {
	return int(atomic.LoadInt32(&p.load))
}

func (p *defaultPoller) Control(operator *FDOperator, event PollEvent) error {
	var op int
	var evt = unix.EpollEvent{Fd: int32(operator.FD)}
	switch event {
	case PollReadable:
		operator.inuse()
		p.operators.Store(operator.FD, operator)
		atomic.AddInt32(&p.load, 1)
		op, evt.Events = unix.EPOLL_CTL_ADD, readableEvents
	case PollModReadable:
		op, evt.Events = unix.EPOLL_CTL_MOD, readableEvents
	case PollPause:
		op, evt.Events = unix.EPOLL_CTL_MOD, pausedEvents
	case PollDetach:
		if _, ok := p.operators.LoadAndDelete(operator.FD); ok {
			atomic.AddInt32(&p.load, -1)
		}
		op = unix.EPOLL_CTL_DEL
	}
	err := unix.EpollCtl(p.fd, op, operator.FD, &evt)
	if err != nil && event == PollReadable {
		p.operators.Delete(operator.FD)
		atomic.AddInt32(&p.load, -1)
	}
	return err
}

func (p *defaultPoller) appendHup(operator *FDOperator, cause error) {
	p.hups = append(p.hups, hup{operator: operator, cause: cause})
	operator.Control(PollDetach)
	operator.done()
}

// detaches hands hang-ups to the goroutine pool so the loop never blocks on
// channel callbacks.
func (p *defaultPoller) detaches() {
	if len(p.hups) == 0 {
		return
	}
	hups := p.hups
	p.hups = nil
	gopool.Go(func() {
		for i := range hups {
			if onHup := hups[i].operator.OnHup; onHup != nil {
				onHup(p, hups[i].cause)
			}
		}
	})
}
