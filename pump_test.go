package zstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, c *Channel) []byte {
	t.Helper()
	var got []byte
	for {
		_, err := c.Read(context.Background(), 64, func(v View) (int, error) {
			got = append(got, v.Bytes()...)
			return v.Len(), nil
		})
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
	}
}

func TestPump_DeliversAndCloses(t *testing.T) {
	c := NewChannel()
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096)

	total, err := Pump(context.Background(), c, bytes.NewReader(payload))
	require.NoError(t, err)
	assert.EqualValues(t, len(payload), total)
	assert.False(t, c.IsActive())

	dst := make([]byte, len(payload))
	n, err := c.peekInto(context.Background(), dst, 0, len(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, dst[:n])
}

func TestPump_Backpressure(t *testing.T) {
	c := NewChannel(WithCapacity(100), WithSegmentSize(32))
	payload := bytes.Repeat([]byte("xy"), 2000)

	GoPump(context.Background(), c, &chunkReader{data: append([]byte(nil), payload...), chunk: 300})
	require.Eventually(t, func() bool { return c.Len() == 100 }, time.Second, time.Millisecond)
	assert.True(t, c.IsActive(), "the pump waits for room instead of finishing")

	assert.Equal(t, payload, readAll(t, c))
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestPump_ReaderErrorFailsChannel(t *testing.T) {
	c := NewChannel()
	cause := errors.New("connection reset by peer")

	_, err := Pump(context.Background(), c, &failingReader{data: []byte("partial"), err: cause})
	assert.ErrorIs(t, err, cause)

	_, err = c.Read(context.Background(), 1, consumeAll)
	var se *StreamError
	require.ErrorAs(t, err, &se)
	assert.ErrorIs(t, err, cause)
}

// blockingReader never returns data.
type blockingReader struct{}

func (blockingReader) Read([]byte) (int, error) {
	select {}
}

func TestPump_ContextCancelsChannel(t *testing.T) {
	c := NewChannel(WithCapacity(4))
	writeAll(t, c, "full")

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := Pump(ctx, c, blockingReader{})
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
	assert.ErrorIs(t, c.Err(), ErrCancelled)
	assert.ErrorIs(t, c.Err(), context.Canceled)
}

func TestPump_SingleProducer(t *testing.T) {
	c := NewChannel(WithCapacity(1))
	writeAll(t, c, "a")

	go func() {
		_, _ = c.Write([]byte("b"))
	}()
	require.Eventually(t, func() bool { return !c.isUnlock(writing) }, time.Second, time.Millisecond)

	_, err := Pump(context.Background(), c, bytes.NewReader([]byte("c")))
	assert.ErrorIs(t, err, ErrConcurrentWrite)
	c.Cancel(nil)
}
