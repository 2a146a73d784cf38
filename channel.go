package zstream

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhihanii/zlog"
)

// Channel is an ordered byte stream between one producer and one reader.
// The producer appends with Write, Pump or an attached descriptor; the reader
// consumes through Read or a Session. Reads park the calling goroutine until
// enough bytes arrive or the stream terminates.
type Channel struct {
	locker

	input       *linkBuffer
	pool        *BufferPool
	capacity    int
	readTimeout time.Duration

	readTrigger  chan struct{}
	writeTrigger chan struct{}
	waitReadSize int64
	consumed     atomic.Int64

	termMu         sync.Mutex
	err            error
	done           chan struct{}
	closeCallbacks *closeCallbackNode

	// onDrain is called after the reader discarded bytes.
	onDrain func()
}

// CloseCallback runs once when the channel reaches a terminal state.
type CloseCallback func(c *Channel) error

type closeCallbackNode struct {
	cb  CloseCallback
	pre *closeCallbackNode
}

// NewChannel creates an open channel.
func NewChannel(opts ...Option) *Channel {
	return newChannel(newOptions(opts))
}

func newChannel(o *options) *Channel {
	return &Channel{
		input:        newLinkBuffer(o.segmentSize),
		pool:         o.pool,
		capacity:     o.capacity,
		readTimeout:  o.readTimeout,
		readTrigger:  make(chan struct{}, 1),
		writeTrigger: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// Len is the number of produced but unconsumed bytes.
func (c *Channel) Len() int {
	return c.input.Len()
}

// Consumed is the total number of bytes discarded so far.
func (c *Channel) Consumed() int64 {
	return c.consumed.Load()
}

// Capacity is the backpressure bound, zero when unbounded.
func (c *Channel) Capacity() int {
	return c.capacity
}

// Pool is the pool Read borrows from.
func (c *Channel) Pool() *BufferPool {
	return c.pool
}

// IsActive reports whether the producer may still append.
func (c *Channel) IsActive() bool {
	return c.status() == statusOpen
}

// IsDrained reports clean end-of-stream with nothing left to read.
func (c *Channel) IsDrained() bool {
	return c.status() == statusClosed && c.input.Len() == 0
}

// Done is closed when the channel leaves the open state.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure or cancellation recorded on the channel, or nil.
func (c *Channel) Err() error {
	return c.readErr()
}

// peekInto copies up to min(desiredSize, Len()-srcOffset, len(dst)) bytes,
// starting srcOffset bytes past the consumed offset, without consuming them.
// It waits only while nothing is buffered past srcOffset and the stream is
// open. A desiredSize of zero never waits. (0, io.EOF) is returned only at
// clean end-of-stream with nothing left past srcOffset.
//
// peekInto and discard are reachable only through Read and Session, which
// hold the read-access key.
func (c *Channel) peekInto(ctx context.Context, dst []byte, srcOffset, desiredSize int) (n int, err error) {
	if srcOffset < 0 || desiredSize < 0 {
		return 0, fmt.Errorf("%w: srcOffset=%d desiredSize=%d", ErrInvalidArgument, srcOffset, desiredSize)
	}
	if c.capacity > 0 && srcOffset >= c.capacity {
		return 0, fmt.Errorf("%w: srcOffset %d beyond capacity %d", ErrInvalidArgument, srcOffset, c.capacity)
	}

	limit := len(dst)
	if desiredSize > 0 && desiredSize < limit {
		limit = desiredSize
	}
	if desiredSize > 0 && limit > 0 {
		if err = c.waitRead(ctx, srcOffset+1); err != nil {
			return 0, err
		}
	} else if err = c.readErr(); err != nil {
		return 0, err
	}

	n = c.input.peekInto(dst[:limit], srcOffset)
	if n == 0 && c.status() == statusClosed && c.input.Len() <= srcOffset {
		return 0, io.EOF
	}
	return n, nil
}

// discard consumes up to n bytes and returns how many were consumed. It never
// waits and is a no-op on a failed or cancelled channel.
func (c *Channel) discard(n int) int {
	if n <= 0 {
		return 0
	}
	switch c.status() {
	case statusFailed, statusCancelled:
		return 0
	}
	d := c.input.skip(n)
	if d > 0 {
		c.consumed.Add(int64(d))
		c.triggerWrite()
		if c.onDrain != nil {
			c.onDrain()
		}
	}
	return d
}

// Close marks clean end-of-stream. Buffered bytes stay readable.
func (c *Channel) Close() error {
	c.terminate(statusClosed, nil)
	return nil
}

// Fail latches cause as the stream failure. Every pending and later read
// returns a *StreamError wrapping cause. Only the first call has an effect.
func (c *Channel) Fail(cause error) bool {
	if cause == nil {
		cause = io.ErrUnexpectedEOF
	}
	if !c.terminate(statusFailed, &StreamError{Cause: cause}) {
		return false
	}
	zlog.Errorf("channel failed: %v", cause)
	return true
}

// Cancel abandons the stream from either side, even after a clean Close.
// Buffered bytes are dropped and reads return ErrCancelled.
func (c *Channel) Cancel(cause error) bool {
	return c.terminate(statusCancelled, &cancelErr{cause: cause})
}

// AddCloseCallback registers callback to run once the channel terminates.
// On an already terminated channel it runs immediately.
func (c *Channel) AddCloseCallback(callback CloseCallback) error {
	if callback == nil {
		return nil
	}
	c.termMu.Lock()
	if c.status() != statusOpen {
		c.termMu.Unlock()
		return callback(c)
	}
	c.closeCallbacks = &closeCallbackNode{cb: callback, pre: c.closeCallbacks}
	c.termMu.Unlock()
	return nil
}

func (c *Channel) terminate(to status, err error) bool {
	c.termMu.Lock()
	from := c.status()
	if from != statusOpen && !(from == statusClosed && to == statusCancelled) {
		c.termMu.Unlock()
		return false
	}
	c.err = err
	c.transit(from, to)
	if from == statusOpen {
		close(c.done)
	}
	callbacks := c.closeCallbacks
	if from == statusOpen {
		c.closeCallbacks = nil
	}
	c.termMu.Unlock()

	if to != statusClosed {
		c.input.reset()
	}
	c.triggerRead()
	c.triggerWrite()
	if from != statusOpen {
		return true
	}
	for node := callbacks; node != nil; node = node.pre {
		if cerr := node.cb(c); cerr != nil {
			zlog.Errorf("channel close callback: %v", cerr)
		}
	}
	return true
}

func (c *Channel) readErr() error {
	switch c.status() {
	case statusFailed, statusCancelled:
		c.termMu.Lock()
		err := c.err
		c.termMu.Unlock()
		return err
	}
	return nil
}

func (c *Channel) triggerRead() {
	select {
	case c.readTrigger <- struct{}{}:
	default:
	}
}

func (c *Channel) triggerWrite() {
	select {
	case c.writeTrigger <- struct{}{}:
	default:
	}
}

// waitRead waits until n bytes are buffered or the producer closed the
// stream. It returns the latched error of a failed or cancelled channel.
func (c *Channel) waitRead(ctx context.Context, n int) (err error) {
	if err = c.readErr(); err != nil {
		return err
	}
	if n <= c.input.Len() {
		return nil
	}
	atomic.StoreInt64(&c.waitReadSize, int64(n))
	defer atomic.StoreInt64(&c.waitReadSize, 0)

	var timeout <-chan time.Time
	if c.readTimeout > 0 {
		timer := time.NewTimer(c.readTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for c.input.Len() < n {
		if err = c.readErr(); err != nil {
			return err
		}
		if c.status() == statusClosed {
			return nil
		}
		select {
		case <-c.readTrigger:
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			// double check if there is enough data to be read
			if c.input.Len() >= n {
				return nil
			}
			return ErrReadTimeout
		}
	}
	return c.readErr()
}

// inputAck publishes n bytes written into a booked region.
func (c *Channel) inputAck(n int) {
	length := c.input.bookAck(n)
	if length >= int(atomic.LoadInt64(&c.waitReadSize)) {
		c.triggerRead()
	}
}
