package zstream

import "context"

const (
	block1k = 1 * 1024
	block4k = 4 * 1024
	block8k = 8 * 1024

	pageSize = block8k

	// mallocMax caps a single segment or booked region.
	mallocMax = 8 * pageSize
)

// DefaultDesiredSize is the desired size most consumers pass to Read.
const DefaultDesiredSize = 1

// Reader is the consumer side of a Channel. It is the only access the
// application layer has to buffered bytes.
type Reader interface {
	// Read borrows a pooled buffer, fills it with up to desiredSize bytes and
	// calls fn exactly once with a view over them. fn returns how many bytes
	// it consumed; only those are discarded from the channel.
	Read(ctx context.Context, desiredSize int, fn func(v View) (int, error)) (int, error)

	// StartSession opens the exclusive zero-copy read mode.
	StartSession() (*Session, error)
}

// Producer is the side that delivers bytes into a Channel and terminates it.
type Producer interface {
	WriteContext(ctx context.Context, p []byte) (n int, err error)
	Close() error
	Fail(cause error) bool
}

var (
	_ Reader   = (*Channel)(nil)
	_ Producer = (*Channel)(nil)
)
