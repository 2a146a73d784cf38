package zstream

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
)

// Session is an exclusive, explicit-lifetime read mode over a channel. While
// it is open no other session or Read can start on the same channel. Views
// returned by Request point straight into channel storage and stay valid
// until the next Discard or End.
type Session struct {
	c     *Channel
	ended atomic.Bool
	epoch atomic.Uint64
}

// StartSession switches the channel from Idle to Reading. It fails fast with
// ErrConcurrentRead when a session or a Read is already outstanding.
func (c *Channel) StartSession() (*Session, error) {
	if !c.lock(reading) {
		return nil, ErrConcurrentRead
	}
	return &Session{c: c}, nil
}

// AvailableForRead is the number of bytes Request can hand out as one view.
// Bytes in later segments are not counted, and neither are bytes past one
// pool buffer's capacity.
func (s *Session) AvailableForRead() (int, error) {
	if s.ended.Load() {
		return 0, ErrSessionEnded
	}
	n := s.c.input.headLen()
	if limit := s.c.pool.BufferCapacity(); n > limit {
		n = limit
	}
	return n, nil
}

// Request returns a zero-copy view of at least atLeast contiguous bytes.
// ok is false when not enough bytes are buffered yet or they are split across
// segments; err is io.EOF once the stream ended cleanly and nothing is left,
// or the latched failure of the channel.
func (s *Session) Request(atLeast int) (v View, ok bool, err error) {
	if err = s.check(atLeast); err != nil {
		return View{}, false, err
	}
	if err = s.c.readErr(); err != nil {
		return View{}, false, err
	}
	if atLeast == 0 {
		atLeast = 1
	}
	if mem, start, end, found := s.c.input.headSpan(atLeast); found {
		// a view never exceeds one pool buffer
		if limit := start + s.c.pool.BufferCapacity(); end > limit {
			end = limit
		}
		return newView(mem, start, end, &s.epoch), true, nil
	}
	if s.c.IsDrained() {
		return View{}, false, io.EOF
	}
	return View{}, false, nil
}

// Discard consumes up to n bytes. Views handed out before are invalidated.
func (s *Session) Discard(n int) (int, error) {
	if s.ended.Load() {
		return 0, ErrSessionEnded
	}
	s.epoch.Add(1)
	return s.c.discard(n), nil
}

// Await waits until at least atLeast bytes are buffered. It returns false at
// end-of-stream when fewer bytes remain, which is not an error.
func (s *Session) Await(ctx context.Context, atLeast int) (bool, error) {
	if err := s.check(atLeast); err != nil {
		return false, err
	}
	if atLeast == 0 {
		if err := s.c.readErr(); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := s.c.waitRead(ctx, atLeast); err != nil {
		return false, err
	}
	return s.c.input.Len() >= atLeast, nil
}

// End returns the channel to Idle. The handle is unusable afterwards.
func (s *Session) End() error {
	if !s.ended.CompareAndSwap(false, true) {
		return ErrSessionEnded
	}
	s.epoch.Add(1)
	s.c.unlock(reading)
	return nil
}

func (s *Session) check(atLeast int) error {
	if s.ended.Load() {
		return ErrSessionEnded
	}
	limit := s.c.pool.BufferCapacity()
	if s.c.capacity > 0 && s.c.capacity < limit {
		limit = s.c.capacity
	}
	if atLeast < 0 || atLeast > limit {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidAtLeast, atLeast, limit)
	}
	return nil
}
