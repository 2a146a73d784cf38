package zstream

import (
	"context"
	"fmt"
	"io"
)

// Read waits until desiredSize bytes are available or the stream ends, then
// calls fn exactly once with a view over at most desiredSize buffered bytes.
// fn returns how many of them it consumed; only those are discarded.
//
// The delivered span may be shorter than desiredSize: it never exceeds the
// pool buffer capacity or the channel capacity, and it is cut short by
// end-of-stream. A desiredSize of zero does not wait and delivers whatever
// is buffered, possibly nothing.
//
// The view is valid only inside fn. The pooled buffer behind it is released
// exactly once on every path: normal return, an fn error or panic, and ctx
// cancellation while waiting. When fn fails nothing is discarded.
//
// At clean end-of-stream fn sees an empty view and Read returns (0, io.EOF),
// on this and every later call, without waiting.
func (c *Channel) Read(ctx context.Context, desiredSize int, fn func(v View) (int, error)) (int, error) {
	if desiredSize < 0 || fn == nil {
		return 0, fmt.Errorf("%w: desiredSize=%d", ErrInvalidArgument, desiredSize)
	}
	if !c.lock(reading) {
		return 0, ErrConcurrentRead
	}
	defer c.unlock(reading)

	buf := c.pool.Borrow()
	defer func() {
		_ = c.pool.Release(buf)
	}()

	eof, err := c.requestBuffer(ctx, buf, desiredSize)
	if err != nil {
		return 0, err
	}

	v := buf.view()
	bytesRead, err := fn(v)
	if err != nil {
		return 0, err
	}
	if err = c.completeReadingFromBuffer(v, bytesRead); err != nil {
		return 0, err
	}
	if eof {
		return 0, io.EOF
	}
	return bytesRead, nil
}

// requestBuffer waits until desiredSize bytes are buffered, bounded by the
// buffer and channel capacity, then fills buf's writable region without
// consuming.
func (c *Channel) requestBuffer(ctx context.Context, buf *Buffer, desiredSize int) (eof bool, err error) {
	if target := c.readTarget(buf, desiredSize); target > 0 {
		if err = c.waitRead(ctx, target); err != nil {
			return false, err
		}
	}
	copied, err := c.peekInto(ctx, buf.writable(), 0, desiredSize)
	switch {
	case err == io.EOF:
		return true, nil
	case err != nil:
		return false, err
	}
	buf.commitWritten(copied)
	return false, nil
}

// readTarget caps desiredSize so a request above what one buffer or the
// channel can hold does not wait forever.
func (c *Channel) readTarget(buf *Buffer, desiredSize int) int {
	target := desiredSize
	if room := buf.WriteRemaining(); target > room {
		target = room
	}
	if c.capacity > 0 && target > c.capacity {
		target = c.capacity
	}
	return target
}

// completeReadingFromBuffer validates the consumer's count and discards it.
func (c *Channel) completeReadingFromBuffer(v View, bytesRead int) error {
	if bytesRead < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeConsumption, bytesRead)
	}
	if bytesRead > v.Len() {
		return fmt.Errorf("%w: %d > %d", ErrOverConsumption, bytesRead, v.Len())
	}
	if d := c.discard(bytesRead); d < bytesRead {
		// the channel failed or was cancelled while fn ran
		return c.readErr()
	}
	return nil
}
