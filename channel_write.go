package zstream

import (
	"context"
	"io"
)

var _ io.Writer = (*Channel)(nil)

// Write appends p, waiting for the reader while the channel is at capacity.
func (c *Channel) Write(p []byte) (n int, err error) {
	return c.WriteContext(context.Background(), p)
}

// WriteContext appends p, waiting for the reader while the channel is at
// capacity. Only one producer may write at a time.
func (c *Channel) WriteContext(ctx context.Context, p []byte) (n int, err error) {
	if !c.lock(writing) {
		return 0, ErrConcurrentWrite
	}
	defer c.unlock(writing)

	for n < len(p) {
		if err = c.waitWrite(ctx); err != nil {
			return n, err
		}
		chunk := p[n:]
		if room := c.room(); room < len(chunk) {
			chunk = chunk[:room]
		}
		n += c.input.write(chunk)
		c.inputAck(0)
	}
	return n, nil
}

// room is how many bytes the producer may append without waiting.
func (c *Channel) room() int {
	if c.capacity <= 0 {
		return mallocMax
	}
	return c.capacity - c.input.Len()
}

// waitWrite waits until the channel has room for at least one byte.
func (c *Channel) waitWrite(ctx context.Context) error {
	for {
		switch c.status() {
		case statusClosed:
			return ErrChannelClosed
		case statusFailed, statusCancelled:
			return c.readErr()
		}
		if c.room() > 0 {
			return nil
		}
		select {
		case <-c.writeTrigger:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
