package zstream

import "sync/atomic"

// Buffer is one loan of a fixed-capacity region from a BufferPool. It is
// owned by the operation that borrowed it until it is released; consumers
// only ever see it through a View. Each Borrow returns a fresh Buffer, so a
// stale one cannot release the region out from under its next borrower.
type Buffer struct {
	*region
	lease uint64
}

// region is the memory behind a Buffer, kept by the pool across loans.
type region struct {
	mem  []byte
	r, w int

	slot  int32         // arena index, -1 for an ephemeral region
	lease atomic.Uint64 // id of the current loan, bumped on borrow and release
	epoch atomic.Uint64
}

// Capacity is the size of the underlying region.
func (b *region) Capacity() int {
	return len(b.mem)
}

// ReadPosition is the read cursor.
func (b *region) ReadPosition() int {
	return b.r
}

// WritePosition is the write cursor.
func (b *region) WritePosition() int {
	return b.w
}

// ReadRemaining is the number of bytes between the cursors.
func (b *region) ReadRemaining() int {
	return b.w - b.r
}

// WriteRemaining is the free space after the write cursor.
func (b *region) WriteRemaining() int {
	return len(b.mem) - b.w
}

// writable returns the free region after the write cursor.
func (b *region) writable() []byte {
	return b.mem[b.w:]
}

// commitWritten advances the write cursor after n bytes were filled in.
func (b *region) commitWritten(n int) {
	if n < 0 || n > b.WriteRemaining() {
		panic("zstream: commit exceeds buffer capacity")
	}
	b.w += n
}

// view exposes [r, w) until the next release.
func (b *region) view() View {
	return newView(b.mem, b.r, b.w, &b.epoch)
}

// reset rewinds the cursors and invalidates every view handed out so far.
// The memory itself is not zeroed.
func (b *region) reset() {
	b.r, b.w = 0, 0
	b.epoch.Add(1)
}

// lend starts a new loan of b.
func (b *region) lend() *Buffer {
	return &Buffer{region: b, lease: b.lease.Add(1)}
}

// disown ends the loan if it is still the current one.
func (b *Buffer) disown() bool {
	return b.region.lease.CompareAndSwap(b.lease, b.lease+1)
}
