package zstream

import (
	"runtime"
	"sync/atomic"

	"github.com/zhihanii/zlog"
)

// arenaChunk is the size of one contiguous allocation the arena grows by.
const arenaChunk = 16 * block4k

// DefaultBufferPool is shared by every channel created without WithPool.
var DefaultBufferPool = newBufferPool(DefaultPoolConfig())

// BufferPool is an arena of fixed-size buffers with an index-based free list.
// Borrow never fails: when the arena is exhausted it hands out an ephemeral
// buffer that is dropped on release instead of being retained.
type BufferPool struct {
	locked int32

	capacity  int
	maxPooled int
	slots     []*region
	free      []int32
	closed    bool

	borrowed  atomic.Int64
	released  atomic.Int64
	ephemeral atomic.Int64
}

// PoolStats is a snapshot of pool accounting.
type PoolStats struct {
	BufferCapacity int
	MaxPooled      int
	Slots          int // arena slots allocated so far
	Free           int // arena slots ready to lend
	Borrowed       int64
	Released       int64
	InUse          int64
	Ephemeral      int64 // borrows served outside the arena
}

// NewBufferPool creates a pool sized by cfg.
func NewBufferPool(cfg PoolConfig) (*BufferPool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newBufferPool(cfg), nil
}

func newBufferPool(cfg PoolConfig) *BufferPool {
	return &BufferPool{
		capacity:  cfg.BufferCapacityBytes,
		maxPooled: cfg.MaxPooledBuffers,
		slots:     make([]*region, 0, cfg.MaxPooledBuffers),
		free:      make([]int32, 0, cfg.MaxPooledBuffers),
	}
}

// BufferCapacity is the size of every buffer lent by the pool.
func (p *BufferPool) BufferCapacity() int {
	return p.capacity
}

// Borrow lends a buffer with both cursors at zero. Its previous contents are
// not cleared.
func (p *BufferPool) Borrow() *Buffer {
	var b *region
	p.lock()
	if len(p.free) == 0 && !p.closed && len(p.slots) < p.maxPooled {
		p.grow()
	}
	if n := len(p.free); n > 0 {
		idx := p.free[n-1]
		p.free = p.free[:n-1]
		b = p.slots[idx]
	}
	p.unlock()

	if b == nil {
		b = &region{mem: make([]byte, p.capacity), slot: -1}
		p.ephemeral.Add(1)
	}
	p.borrowed.Add(1)
	return b.lend()
}

// Release gives a borrowed buffer back. Releasing the same borrow twice, or a
// borrow whose region was lent again since, is rejected with ErrDoubleRelease.
func (p *BufferPool) Release(b *Buffer) error {
	if b == nil || b.region == nil {
		return ErrInvalidArgument
	}
	if !b.disown() {
		zlog.Errorf("buffer pool: double release of slot %d", b.slot)
		return ErrDoubleRelease
	}
	b.reset()
	p.released.Add(1)
	if b.slot < 0 {
		return nil
	}

	p.lock()
	if !p.closed && int(b.slot) < len(p.slots) && p.slots[b.slot] == b.region {
		p.free = append(p.free, b.slot)
	}
	p.unlock()
	return nil
}

// Stats returns the current accounting snapshot.
func (p *BufferPool) Stats() PoolStats {
	p.lock()
	slots, free := len(p.slots), len(p.free)
	p.unlock()
	borrowed, released := p.borrowed.Load(), p.released.Load()
	return PoolStats{
		BufferCapacity: p.capacity,
		MaxPooled:      p.maxPooled,
		Slots:          slots,
		Free:           free,
		Borrowed:       borrowed,
		Released:       released,
		InUse:          borrowed - released,
		Ephemeral:      p.ephemeral.Load(),
	}
}

// Close drops the arena. Buffers still on loan stay usable and are discarded
// when released; later borrows are ephemeral.
func (p *BufferPool) Close() {
	p.lock()
	p.closed = true
	p.slots = nil
	p.free = nil
	p.unlock()
}

// grow carves a batch of slots out of one allocation. Must hold the lock.
func (p *BufferPool) grow() {
	n := arenaChunk / p.capacity
	if n == 0 {
		n = 1
	}
	if left := p.maxPooled - len(p.slots); n > left {
		n = left
	}
	mem := make([]byte, n*p.capacity)
	for i := 0; i < n; i++ {
		lo, hi := i*p.capacity, (i+1)*p.capacity
		b := &region{mem: mem[lo:hi:hi], slot: int32(len(p.slots))}
		p.slots = append(p.slots, b)
		p.free = append(p.free, b.slot)
	}
}

func (p *BufferPool) lock() {
	for !atomic.CompareAndSwapInt32(&p.locked, 0, 1) {
		runtime.Gosched()
	}
}

func (p *BufferPool) unlock() {
	atomic.StoreInt32(&p.locked, 0)
}
