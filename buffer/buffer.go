package buffer

import (
	"sync"
	"time"
)

type entry[T any] struct {
	val T
	seq uint64
	at  time.Time
}

// Buffer is a bounded, ordered store of values. Its length never exceeds
// the configured capacity: a value arriving at capacity either evicts the
// oldest value or is rejected, per the drop policy. Safe for concurrent
// use.
type Buffer[T any] struct {
	opts Options

	mu      sync.Mutex
	entries []entry[T]
	seq     uint64
	dropped uint64
	expired uint64
}

// New creates a Buffer. Returns an INVALID_CONFIG error if opts are
// invalid.
func New[T any](opts Options) (*Buffer[T], error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()
	return &Buffer[T]{
		opts:    opts,
		entries: make([]entry[T], 0, opts.Capacity),
	}, nil
}

// Add appends v, applying the drop policy at capacity. Returns false if v
// itself was rejected.
func (b *Buffer[T]) Add(v T) bool {
	accepted, _ := b.add(v)
	return accepted
}

// add is Add that also returns the sequence number assigned to v.
func (b *Buffer[T]) add(v T) (bool, uint64) {
	b.mu.Lock()
	expired := b.pruneLocked()
	b.seq++
	seq := b.seq
	var reason DropReason
	if len(b.entries) >= b.opts.Capacity {
		b.dropped++
		if b.opts.DropPolicy == DropNewest {
			b.mu.Unlock()
			b.notify(ReasonExpired, expired)
			b.notify(ReasonRejected, 1)
			return false, seq
		}
		b.entries[0] = entry[T]{}
		b.entries = b.entries[1:]
		reason = ReasonEvicted
	}
	b.entries = append(b.entries, entry[T]{val: v, seq: seq, at: b.opts.Clock()})
	b.mu.Unlock()

	b.notify(ReasonExpired, expired)
	if reason != "" {
		b.notify(reason, 1)
	}
	return true, seq
}

// Shift removes and returns the oldest live value.
func (b *Buffer[T]) Shift() (T, bool) {
	b.mu.Lock()
	expired := b.pruneLocked()
	var v T
	ok := len(b.entries) > 0
	if ok {
		v = b.entries[0].val
		b.entries[0] = entry[T]{}
		b.entries = b.entries[1:]
	}
	b.mu.Unlock()
	b.notify(ReasonExpired, expired)
	return v, ok
}

// shiftBefore is Shift restricted to a value whose sequence number is
// below limit.
func (b *Buffer[T]) shiftBefore(limit uint64) (T, bool) {
	b.mu.Lock()
	expired := b.pruneLocked()
	var v T
	ok := len(b.entries) > 0 && b.entries[0].seq < limit
	if ok {
		v = b.entries[0].val
		b.entries[0] = entry[T]{}
		b.entries = b.entries[1:]
	}
	b.mu.Unlock()
	b.notify(ReasonExpired, expired)
	return v, ok
}

// lastSeq returns the sequence number assigned to the latest value.
func (b *Buffer[T]) lastSeq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Values returns a copy of the live values, oldest first.
func (b *Buffer[T]) Values() []T {
	entries, _ := b.snapshot()
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.val
	}
	return out
}

// snapshot returns the live entries and the last sequence number assigned.
func (b *Buffer[T]) snapshot() ([]entry[T], uint64) {
	b.mu.Lock()
	expired := b.pruneLocked()
	entries := make([]entry[T], len(b.entries))
	copy(entries, b.entries)
	seq := b.seq
	b.mu.Unlock()
	b.notify(ReasonExpired, expired)
	return entries, seq
}

// Len returns the number of live values.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	expired := b.pruneLocked()
	n := len(b.entries)
	b.mu.Unlock()
	b.notify(ReasonExpired, expired)
	return n
}

// Full reports whether the buffer is at capacity.
func (b *Buffer[T]) Full() bool {
	return b.Len() >= b.opts.Capacity
}

// Capacity returns the configured capacity.
func (b *Buffer[T]) Capacity() int { return b.opts.Capacity }

// Clear removes every value and resets the Dropped and Expired counters.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	clear(b.entries)
	b.entries = b.entries[:0]
	b.dropped = 0
	b.expired = 0
	b.mu.Unlock()
}

// Dropped returns the number of values evicted or rejected at capacity
// since creation or the last Clear.
func (b *Buffer[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Expired returns the number of values removed by TTL expiry since
// creation or the last Clear.
func (b *Buffer[T]) Expired() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expired
}

// pruneLocked drops expired entries from the front. Entries are in arrival
// order, so the first live entry ends the scan.
func (b *Buffer[T]) pruneLocked() int {
	if b.opts.TTL <= 0 || len(b.entries) == 0 {
		return 0
	}
	now := b.opts.Clock()
	n := 0
	for n < len(b.entries) && now.Sub(b.entries[n].at) >= b.opts.TTL {
		n++
	}
	if n == 0 {
		return 0
	}
	clear(b.entries[:n])
	b.entries = b.entries[n:]
	b.expired += uint64(n)
	return n
}

func (b *Buffer[T]) notify(reason DropReason, n int) {
	if n > 0 && b.opts.OnDrop != nil {
		b.opts.OnDrop(reason, n)
	}
}
