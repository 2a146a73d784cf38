package zstream

import (
	"sync"

	"github.com/bytedance/gopkg/lang/mcache"
)

// linkBufferNode is one contiguous segment. Bytes in [off, end) are readable,
// [end, len(buf)) is free for the producer.
type linkBufferNode struct {
	buf  []byte
	off  int
	end  int
	next *linkBufferNode
}

func newLinkBufferNode(size int) *linkBufferNode {
	return &linkBufferNode{buf: mcache.Malloc(size)}
}

func (n *linkBufferNode) readable() int {
	return n.end - n.off
}

func (n *linkBufferNode) free() int {
	return len(n.buf) - n.end
}

// linkBuffer is the channel's storage: a singly linked list of segments.
// The consumer advances head, the producer appends at tail. A booked region
// is written by the producer outside the lock and published by bookAck.
type linkBuffer struct {
	mu       sync.Mutex
	head     *linkBufferNode
	tail     *linkBufferNode
	length   int
	nodeSize int
}

func newLinkBuffer(nodeSize int) *linkBuffer {
	if nodeSize <= 0 {
		nodeSize = pageSize
	}
	return &linkBuffer{nodeSize: nodeSize}
}

// Len is the number of produced but unconsumed bytes.
func (b *linkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.length
}

// headLen is the size of the first non-empty segment.
func (b *linkBuffer) headLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := b.firstReadable(); n != nil {
		return n.readable()
	}
	return 0
}

// headSpan returns the first non-empty segment's readable span if it holds at
// least atLeast bytes. The span is stable until it is skipped.
func (b *linkBuffer) headSpan(atLeast int) (mem []byte, start, end int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.firstReadable()
	if n == nil || n.readable() < atLeast {
		return nil, 0, 0, false
	}
	return n.buf, n.off, n.end, true
}

// peekInto copies up to len(dst) bytes starting skip bytes past the head.
func (b *linkBuffer) peekInto(dst []byte, skip int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if skip >= b.length {
		return 0
	}
	var copied int
	for n := b.head; n != nil && copied < len(dst); n = n.next {
		l := n.readable()
		if skip >= l {
			skip -= l
			continue
		}
		copied += copy(dst[copied:], n.buf[n.off+skip:n.end])
		skip = 0
	}
	return copied
}

// skip consumes up to n bytes and recycles fully consumed segments other
// than the tail.
func (b *linkBuffer) skip(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.length {
		n = b.length
	}
	left := n
	for left > 0 {
		l := b.head.readable()
		if left < l {
			b.head.off += left
			left = 0
			break
		}
		b.head.off = b.head.end
		left -= l
		if b.head == b.tail {
			break
		}
		b.recycleHead()
	}
	for b.head != nil && b.head != b.tail && b.head.readable() == 0 {
		b.recycleHead()
	}
	b.length -= n
	return n
}

// write copies p after the tail, growing the list as needed.
func (b *linkBuffer) write(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	var written int
	for written < len(p) {
		if b.tail == nil || b.tail.free() == 0 {
			b.appendNode(b.nodeSize)
		}
		n := copy(b.tail.buf[b.tail.end:], p[written:])
		b.tail.end += n
		written += n
	}
	b.length += written
	return written
}

// book reserves a free region of at most size bytes at the tail. A new
// segment is appended when the tail has less than size bytes free.
func (b *linkBuffer) book(size int) []byte {
	if size > mallocMax {
		size = mallocMax
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tail == nil || b.tail.free() < size {
		nodeSize := b.nodeSize
		if size > nodeSize {
			nodeSize = size
		}
		b.appendNode(nodeSize)
	}
	return b.tail.buf[b.tail.end : b.tail.end+size]
}

// bookAck publishes n bytes of the last booked region and returns the new
// length.
func (b *linkBuffer) bookAck(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > 0 && b.tail != nil {
		b.tail.end += n
		b.length += n
	}
	return b.length
}

// reset drops every segment without recycling: a producer may still hold a
// booked region of the tail.
func (b *linkBuffer) reset() {
	b.mu.Lock()
	b.head, b.tail, b.length = nil, nil, 0
	b.mu.Unlock()
}

func (b *linkBuffer) firstReadable() *linkBufferNode {
	for n := b.head; n != nil; n = n.next {
		if n.readable() > 0 {
			return n
		}
	}
	return nil
}

func (b *linkBuffer) appendNode(size int) {
	node := newLinkBufferNode(size)
	if b.tail == nil {
		b.head, b.tail = node, node
		return
	}
	b.tail.next = node
	b.tail = node
}

func (b *linkBuffer) recycleHead() {
	old := b.head
	b.head = old.next
	old.next = nil
	mcache.Free(old.buf)
	old.buf = nil
}
