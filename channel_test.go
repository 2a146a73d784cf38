package zstream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func writeAll(t *testing.T, c *Channel, p string) {
	t.Helper()
	n, err := c.Write([]byte(p))
	require.NoError(t, err)
	require.Equal(t, len(p), n)
}

func TestChannel_PeekIntoDoesNotConsume(t *testing.T) {
	c := NewChannel()
	writeAll(t, c, "hello world")

	dst := make([]byte, 32)
	n, err := c.peekInto(context.Background(), dst, 0, 5)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(dst[:n]))

	n, err = c.peekInto(context.Background(), dst, 6, 32)
	require.NoError(t, err)
	assert.Equal(t, "world", string(dst[:n]))
	assert.Equal(t, 11, c.Len())
	assert.EqualValues(t, 0, c.Consumed())
}

func TestChannel_PeekIntoAcrossSegments(t *testing.T) {
	c := NewChannel(WithSegmentSize(4))
	writeAll(t, c, "0123456789")

	dst := make([]byte, 10)
	n, err := c.peekInto(context.Background(), dst, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, "3456789", string(dst[:n]))
}

func TestChannel_PeekIntoReturnsWhatIsBuffered(t *testing.T) {
	c := NewChannel()
	writeAll(t, c, "ab")

	dst := make([]byte, 8)
	n, err := c.peekInto(context.Background(), dst, 0, 4)
	require.NoError(t, err, "fewer bytes than desired do not suspend")
	assert.Equal(t, "ab", string(dst[:n]))
}

func TestChannel_PeekIntoWaitsPastOffset(t *testing.T) {
	c := NewChannel()
	writeAll(t, c, "ab")

	got := make(chan string, 1)
	go func() {
		dst := make([]byte, 8)
		n, err := c.peekInto(context.Background(), dst, 2, 4)
		if err != nil {
			got <- err.Error()
			return
		}
		got <- string(dst[:n])
	}()

	select {
	case s := <-got:
		t.Fatalf("peek returned early with %q", s)
	case <-time.After(20 * time.Millisecond):
	}
	writeAll(t, c, "cdef")
	assert.Equal(t, "cdef", <-got)
}

func TestChannel_PeekIntoZeroDesiredNeverWaits(t *testing.T) {
	c := NewChannel()
	dst := make([]byte, 8)

	n, err := c.peekInto(context.Background(), dst, 0, 0)
	require.NoError(t, err, "nothing available is not end-of-stream")
	assert.Equal(t, 0, n)

	writeAll(t, c, "xyz")
	n, err = c.peekInto(context.Background(), dst, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(dst[:n]))

	require.NoError(t, c.Close())
	c.discard(3)
	_, err = c.peekInto(context.Background(), dst, 0, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestChannel_PeekIntoRejectsBadArguments(t *testing.T) {
	c := NewChannel(WithCapacity(8))
	dst := make([]byte, 4)
	_, err := c.peekInto(context.Background(), dst, -1, 1)
	assert.ErrorIs(t, err, ErrContractViolation)
	_, err = c.peekInto(context.Background(), dst, 0, -1)
	assert.ErrorIs(t, err, ErrContractViolation)
	_, err = c.peekInto(context.Background(), dst, 8, 1)
	assert.ErrorIs(t, err, ErrContractViolation)
}

func TestChannel_ContextCancelLeavesChannelOpen(t *testing.T) {
	c := NewChannel()
	writeAll(t, c, "a")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := c.peekInto(ctx, make([]byte, 4), 1, 4)
		errc <- err
	}()
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.True(t, c.IsActive())
	assert.Equal(t, 1, c.Len())
	assert.EqualValues(t, 0, c.Consumed())
}

func TestChannel_ReadTimeout(t *testing.T) {
	c := NewChannel(WithReadTimeout(10 * time.Millisecond))
	_, err := c.peekInto(context.Background(), make([]byte, 4), 0, 1)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.True(t, c.IsActive())
}

func TestChannel_CloseDeliversRemainderThenEOF(t *testing.T) {
	c := NewChannel()
	writeAll(t, c, "tail")
	require.NoError(t, c.Close())

	dst := make([]byte, 16)
	n, err := c.peekInto(context.Background(), dst, 0, 16)
	require.NoError(t, err)
	assert.Equal(t, "tail", string(dst[:n]))
	assert.Equal(t, 4, c.discard(4))
	assert.True(t, c.IsDrained())

	for i := 0; i < 3; i++ {
		n, err = c.peekInto(context.Background(), dst, 0, 1)
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 0, n)
	}
	_, err = c.Write([]byte("late"))
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannel_FailureLatch(t *testing.T) {
	cause := errors.New("connection reset")
	c := NewChannel()
	writeAll(t, c, "pending")

	blocked := make(chan error, 1)
	go func() {
		_, err := c.peekInto(context.Background(), make([]byte, 64), 7, 64)
		blocked <- err
	}()
	time.Sleep(10 * time.Millisecond)

	assert.True(t, c.Fail(cause))
	assert.False(t, c.Fail(errors.New("second")), "the first failure wins")

	err := <-blocked
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, cause)

	for i := 0; i < 3; i++ {
		_, err = c.peekInto(context.Background(), make([]byte, 4), 0, 1)
		assert.ErrorIs(t, err, cause)
	}
	assert.Equal(t, 0, c.discard(3))
	assert.ErrorIs(t, c.Err(), cause)
	assert.False(t, c.Cancel(nil), "a failed channel never changes state again")
	assert.ErrorIs(t, c.Err(), cause)

	_, err = c.Write([]byte("x"))
	assert.ErrorIs(t, err, cause)
}

func TestChannel_CancelAfterClose(t *testing.T) {
	c := NewChannel()
	writeAll(t, c, "abc")
	require.NoError(t, c.Close())

	reason := errors.New("client went away")
	assert.True(t, c.Cancel(reason))
	_, err := c.peekInto(context.Background(), make([]byte, 4), 0, 1)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, reason)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.discard(1))
}

func TestChannel_CloseCallbacksRunOnce(t *testing.T) {
	c := NewChannel()
	var order []int
	require.NoError(t, c.AddCloseCallback(func(*Channel) error { order = append(order, 1); return nil }))
	require.NoError(t, c.AddCloseCallback(func(*Channel) error { order = append(order, 2); return nil }))

	require.NoError(t, c.Close())
	c.Cancel(nil)
	c.Fail(errors.New("late"))
	assert.Equal(t, []int{2, 1}, order)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed")
	}

	require.NoError(t, c.AddCloseCallback(func(*Channel) error { order = append(order, 3); return nil }))
	assert.Equal(t, []int{2, 1, 3}, order)
}

func TestChannel_Backpressure(t *testing.T) {
	c := NewChannel(WithCapacity(4))

	done := make(chan int, 1)
	go func() {
		n, _ := c.Write([]byte("0123456789"))
		done <- n
	}()

	require.Eventually(t, func() bool { return c.Len() == 4 }, time.Second, time.Millisecond)
	select {
	case <-done:
		t.Fatal("writer must wait for room")
	case <-time.After(10 * time.Millisecond):
	}

	var got []byte
	dst := make([]byte, 4)
	for len(got) < 10 {
		n, err := c.peekInto(context.Background(), dst, 0, 1)
		require.NoError(t, err)
		got = append(got, dst[:n]...)
		c.discard(n)
	}
	assert.Equal(t, "0123456789", string(got))
	assert.Equal(t, 10, <-done)
}

func TestChannel_CapacityCapsDesiredSize(t *testing.T) {
	c := NewChannel(WithCapacity(4))
	writeAll(t, c, "abcd")

	dst := make([]byte, 64)
	n, err := c.peekInto(context.Background(), dst, 0, 64)
	require.NoError(t, err, "a desired size above capacity must not wait forever")
	assert.Equal(t, "abcd", string(dst[:n]))
}

func TestChannel_ConcurrentWriters(t *testing.T) {
	c := NewChannel(WithCapacity(1))
	writeAll(t, c, "a")

	go func() {
		_, _ = c.Write([]byte("b"))
	}()
	require.Eventually(t, func() bool { return !c.isUnlock(writing) }, time.Second, time.Millisecond)

	_, err := c.Write([]byte("c"))
	assert.ErrorIs(t, err, ErrConcurrentWrite)
	c.Cancel(nil)
}

func TestChannel_OrderedDelivery(t *testing.T) {
	c := NewChannel(WithCapacity(64), WithSegmentSize(16))
	const total = 10000

	go func() {
		buf := make([]byte, 0, 37)
		for i := 0; i < total; {
			buf = buf[:0]
			for j := 0; j < cap(buf) && i < total; j++ {
				buf = append(buf, byte(i))
				i++
			}
			if _, err := c.Write(buf); err != nil {
				return
			}
		}
		_ = c.Close()
	}()

	dst := make([]byte, 32)
	var next int
	for {
		n, err := c.peekInto(context.Background(), dst, 0, 32)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		for _, b := range dst[:n] {
			require.Equal(t, byte(next), b)
			next++
		}
		require.Equal(t, n, c.discard(n))
	}
	assert.Equal(t, total, next)
	assert.EqualValues(t, total, c.Consumed())
}

func TestProperty_Channel_DiscardBound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c := NewChannel(WithSegmentSize(rapid.IntRange(1, 32).Draw(rt, "segment")))
		data := rapid.SliceOfN(rapid.Byte(), 0, 200).Draw(rt, "data")
		_, err := c.Write(data)
		require.NoError(rt, err)

		var consumed int
		for _, n := range rapid.SliceOfN(rapid.IntRange(-8, 80), 1, 20).Draw(rt, "discards") {
			avail := c.Len()
			d := c.discard(n)
			assert.GreaterOrEqual(rt, d, 0)
			assert.LessOrEqual(rt, d, avail)
			if n > 0 {
				want := n
				if want > avail {
					want = avail
				}
				assert.Equal(rt, want, d)
			}
			consumed += d
			assert.Equal(rt, len(data)-consumed, c.Len())
		}

		rest := make([]byte, len(data))
		m, _ := c.peekInto(context.Background(), rest, 0, 0)
		assert.Equal(rt, data[consumed:], rest[:m])
	})
}
