//go:build linux

package zstream

import (
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/zhihanii/zlog"
	"golang.org/x/sys/unix"
)

type fileConn interface {
	File() (f *os.File, err error)
}

// Attach makes a poller the producer of a new channel fed from conn. The
// descriptor is duplicated, so conn may be closed independently; the
// duplicate is closed when the channel terminates. Peer close ends the
// stream cleanly after the remaining bytes are read, a socket error fails it.
func Attach(conn net.Conn, opts ...Option) (*Channel, error) {
	fc, ok := conn.(fileConn)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not expose a file descriptor", ErrInvalidArgument, conn)
	}
	f, err := fc.File()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}
	ch, err := attach(netFD{fd: fd, network: conn.LocalAddr().Network()}, newOptions(opts))
	if err != nil {
		unix.Close(fd)
	}
	return ch, err
}

// AttachFD is Attach for a raw stream descriptor, e.g. one end of a socket
// pair or a pipe. The channel takes ownership of fd.
func AttachFD(fd int, opts ...Option) (*Channel, error) {
	return attach(netFD{fd: fd}, newOptions(opts))
}

// fdSource is the producer side of an attached channel.
type fdSource struct {
	netFD

	ch       *Channel
	operator *FDOperator
	bookSize int
	paused   int32
}

func attach(nfd netFD, o *options) (*Channel, error) {
	if err := unix.SetNonblock(nfd.fd, true); err != nil {
		return nil, err
	}
	if nfd.isTCP() {
		if err := setTCPNoDelay(nfd.fd, o.noDelay); err != nil {
			return nil, err
		}
		if err := nfd.SetKeepAlive(int(o.keepAlive / time.Second)); err != nil {
			return nil, err
		}
	}

	ch := newChannel(o)
	// the poller is the only producer
	ch.lock(writing)

	s := &fdSource{netFD: nfd, ch: ch, bookSize: block1k / 2}
	s.operator = &FDOperator{
		FD:       nfd.fd,
		OnHup:    s.onHup,
		Inputs:   s.inputs,
		InputAck: s.inputAck,
	}
	ch.onDrain = s.resume

	poller, err := defaultPollerManager.Pick()
	if err != nil {
		return nil, err
	}
	s.operator.poller = poller
	if err = s.operator.Control(PollReadable); err != nil {
		zlog.Errorf("attach fd %d: %v", nfd.fd, err)
		return nil, err
	}
	ch.AddCloseCallback(s.finalize)
	return ch, nil
}

// inputs implements FDOperator.
func (s *fdSource) inputs(vs [][]byte) (rs [][]byte) {
	size := s.bookSize
	if room := s.ch.room(); room < size {
		if room <= 0 {
			s.pause()
			return nil
		}
		size = room
	}
	vs[0] = s.ch.input.book(size)
	return vs[:1]
}

// inputAck implements FDOperator.
func (s *fdSource) inputAck(n int) (err error) {
	if n <= 0 {
		return nil
	}
	// Auto size bookSize.
	if n == s.bookSize && s.bookSize < mallocMax {
		s.bookSize <<= 1
	}
	s.ch.inputAck(n)
	return nil
}

// pause stops read events while the channel is at capacity.
func (s *fdSource) pause() {
	if !atomic.CompareAndSwapInt32(&s.paused, 0, 1) {
		return
	}
	if err := s.operator.Control(PollPause); err != nil {
		zlog.Errorf("pause fd %d: %v", s.fd, err)
	}
	// the reader may have drained before paused was visible
	if s.ch.room() > 0 {
		s.resume()
	}
}

// resume re-arms read events once the reader made room.
func (s *fdSource) resume() {
	if atomic.LoadInt32(&s.paused) == 0 || s.ch.room() <= 0 || !s.ch.IsActive() {
		return
	}
	if !atomic.CompareAndSwapInt32(&s.paused, 1, 0) {
		return
	}
	if err := s.operator.Control(PollModReadable); err != nil {
		zlog.Errorf("resume fd %d: %v", s.fd, err)
	}
}

// onHup means close by poller.
func (s *fdSource) onHup(p Poller, cause error) error {
	if cause != nil {
		s.ch.Fail(cause)
		return nil
	}
	if err := s.fill(); err != nil {
		s.ch.Fail(err)
		return nil
	}
	return s.ch.Close()
}

// fill drains what the peer sent before hanging up, ignoring capacity.
func (s *fdSource) fill() error {
	for s.ch.IsActive() {
		n, err := readv(s.fd, [][]byte{s.ch.input.book(s.bookSize)})
		s.inputAck(n)
		switch {
		case n == 0 && err == nil:
			return nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return nil
		case err != nil:
			return err
		}
	}
	return nil
}

// finalize releases the descriptor once the channel terminated.
func (s *fdSource) finalize(c *Channel) error {
	s.operator.Control(PollDetach)
	s.operator.unused()
	return s.netFD.Close()
}
