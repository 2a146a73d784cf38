package zstream

import (
	"context"
	"io"

	"github.com/bytedance/gopkg/util/gopool"
)

// Pump makes c the sink of r. It reads straight into channel storage until r
// is exhausted, then closes c; a read error fails c with that error. Reads
// are held back while c is at capacity. If ctx ends first the channel is
// cancelled with ctx's error.
func Pump(ctx context.Context, c *Channel, r io.Reader) (total int64, err error) {
	if !c.lock(writing) {
		return 0, ErrConcurrentWrite
	}
	defer c.unlock(writing)

	bookSize := block1k / 2
	for {
		if err = c.waitWrite(ctx); err != nil {
			if ctx.Err() != nil {
				c.Cancel(err)
			}
			return total, err
		}
		size := bookSize
		if room := c.room(); room < size {
			size = room
		}

		n, rerr := r.Read(c.input.book(size))
		if n > 0 {
			c.inputAck(n)
			total += int64(n)
			// Auto size bookSize.
			if n == bookSize && bookSize < mallocMax {
				bookSize <<= 1
			}
		}
		switch {
		case rerr == io.EOF:
			return total, c.Close()
		case rerr != nil:
			c.Fail(rerr)
			return total, rerr
		}
	}
}

// GoPump runs Pump on the shared goroutine pool.
func GoPump(ctx context.Context, c *Channel, r io.Reader) {
	gopool.CtxGo(ctx, func() {
		_, _ = Pump(ctx, c, r)
	})
}
