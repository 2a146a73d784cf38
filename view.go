package zstream

import (
	"bytes"
	"sync/atomic"
)

// View is a borrowed window over pooled or segment memory. It is handed to
// consumers by value and stays valid only until the operation that produced
// it completes: the end of a Read callback, or the next Discard/End of the
// session that requested it. Accessors on a stale View refuse to touch the
// memory, which by then may belong to another borrower.
type View struct {
	mem   []byte
	start int
	end   int
	epoch *atomic.Uint64
	seen  uint64
}

func newView(mem []byte, start, end int, epoch *atomic.Uint64) View {
	return View{mem: mem, start: start, end: end, epoch: epoch, seen: epoch.Load()}
}

// Valid reports whether the view may still be accessed.
func (v View) Valid() bool {
	return v.epoch != nil && v.epoch.Load() == v.seen
}

// Start is the offset of the first readable byte in the underlying region.
func (v View) Start() int {
	return v.start
}

// End is the exclusive end offset of the readable span.
func (v View) End() int {
	return v.end
}

// Len is the number of readable bytes.
func (v View) Len() int {
	return v.end - v.start
}

// Bytes returns the readable span without copying, or nil once the view is
// stale. The slice must not be retained past the callback or session step
// that received the view.
func (v View) Bytes() []byte {
	if !v.Valid() {
		return nil
	}
	return v.mem[v.start:v.end:v.end]
}

// At returns the i-th readable byte.
func (v View) At(i int) (byte, error) {
	if !v.Valid() {
		return 0, ErrViewReleased
	}
	if i < 0 || i >= v.Len() {
		return 0, ErrInvalidArgument
	}
	return v.mem[v.start+i], nil
}

// CopyTo copies the readable span into dst.
func (v View) CopyTo(dst []byte) (int, error) {
	if !v.Valid() {
		return 0, ErrViewReleased
	}
	return copy(dst, v.mem[v.start:v.end]), nil
}

// IndexByte returns the index of the first c in the readable span, or -1.
func (v View) IndexByte(c byte) int {
	if !v.Valid() {
		return -1
	}
	return bytes.IndexByte(v.mem[v.start:v.end], c)
}
