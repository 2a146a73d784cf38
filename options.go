package zstream

import "time"

// Option configures a Channel, or an attached fd source.
type Option func(o *options)

type options struct {
	pool        *BufferPool
	capacity    int
	segmentSize int
	readTimeout time.Duration
	keepAlive   time.Duration
	noDelay     bool
}

func newOptions(opts []Option) *options {
	o := &options{
		pool:        DefaultBufferPool,
		segmentSize: pageSize,
		noDelay:     true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithPool sets the pool Read borrows from.
func WithPool(p *BufferPool) Option {
	return func(o *options) {
		if p != nil {
			o.pool = p
		}
	}
}

// WithCapacity bounds how many unconsumed bytes the channel buffers before
// the producer is held back. Zero means unbounded.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.capacity = n
		}
	}
}

// WithSegmentSize sets the size of the internal storage segments. It bounds
// the largest contiguous view a Session can hand out.
func WithSegmentSize(n int) Option {
	return func(o *options) {
		if n > 0 && n <= mallocMax {
			o.segmentSize = n
		}
	}
}

// WithReadTimeout bounds every wait for data. Zero waits indefinitely.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.readTimeout = d
		}
	}
}

// WithKeepAlive enables TCP keep-alive probes on an attached socket.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.keepAlive = d
	}
}

// WithNoDelay toggles TCP_NODELAY on an attached socket. Enabled by default.
func WithNoDelay(on bool) Option {
	return func(o *options) {
		o.noDelay = on
	}
}
