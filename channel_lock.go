package zstream

import "sync/atomic"

type status int32

const (
	statusOpen status = iota
	statusClosed
	statusFailed
	statusCancelled
)

func (s status) String() string {
	switch s {
	case statusOpen:
		return "open"
	case statusClosed:
		return "closed"
	case statusFailed:
		return "failed"
	case statusCancelled:
		return "cancelled"
	}
	return "unknown"
}

type key int32

/* State Diagram
+--------+  Close  +----------+  drained  +-----------+
|  open  |-------->|  closed  |---------->| (drained) |
+---+----+         +-----+----+           +-----------+
    |                    |
    | Fail               | Cancel
    v                    v
+--------+         +-------------+
| failed |         |  cancelled  |<---- Cancel (from open)
+--------+         +-------------+

- "closing" holds the status above; it only leaves open (or closed, for Cancel).
- "reading" is the read-access mode: Idle(0) or Reading(1), held by one
  session or one Read call at a time.
- "writing" is held by the single producer while it appends.
*/

const (
	closing key = iota
	reading
	writing
	// total must be at the bottom.
	total
)

type locker struct {
	// keychain use for lock/unlock operation by key.
	// 0 means unlock, 1 means locked; closing stores a status.
	keychain [total]int32
}

func (l *locker) transit(from, to status) (success bool) {
	return atomic.CompareAndSwapInt32(&l.keychain[closing], int32(from), int32(to))
}

func (l *locker) status() status {
	return status(atomic.LoadInt32(&l.keychain[closing]))
}

func (l *locker) lock(k key) (success bool) {
	return atomic.CompareAndSwapInt32(&l.keychain[k], 0, 1)
}

func (l *locker) unlock(k key) {
	atomic.StoreInt32(&l.keychain[k], 0)
}

func (l *locker) isUnlock(k key) bool {
	return atomic.LoadInt32(&l.keychain[k]) == 0
}
