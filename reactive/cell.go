package reactive

import (
	"context"
	"sync"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/stream"
)

// Cell holds a single value and emits it on Stream whenever it changes.
type Cell[T any] struct {
	mu    sync.RWMutex
	value T
	equal func(a, b T) bool

	exec     executor
	changes  *stream.Stream[T]
	unfollow func()
}

// NewCell creates a cell holding initial, comparing values with ==.
func NewCell[T comparable](initial T) *Cell[T] {
	return NewCellFunc(initial, func(a, b T) bool { return a == b })
}

// NewCellFunc creates a cell holding initial, comparing values with equal.
func NewCellFunc[T any](initial T, equal func(a, b T) bool) *Cell[T] {
	return &Cell[T]{
		value:   initial,
		equal:   equal,
		exec:    newExecutor("cell"),
		changes: stream.New[T](stream.WithName("cell")),
	}
}

// FromStream creates a cell that takes its initial value from the next
// value pushed to s and then follows s until s closes or the cell is
// closed. Returns ctx.Err() if ctx is done first, or an ErrClosed-matching
// error if s closes before producing a value.
func FromStream[T comparable](ctx context.Context, s *stream.Stream[T]) (*Cell[T], error) {
	var zero T
	c := NewCell(zero)
	seeded := make(chan struct{})
	ended := make(chan struct{})
	var once sync.Once
	first := true

	// callbacks on s never run concurrently, so first needs no lock
	unsub := s.Observe(func(v T) {
		if first {
			first = false
			c.mu.Lock()
			c.value = v
			c.mu.Unlock()
			once.Do(func() { close(seeded) })
			return
		}
		_ = c.Set(v)
	}, nil, func() { close(ended) })
	c.unfollow = unsub

	select {
	case <-seeded:
		return c, nil
	case <-ended:
		select {
		case <-seeded:
			return c, nil
		default:
		}
		c.Close()
		return nil, errors.Closed("stream " + s.Name())
	case <-ctx.Done():
		c.Close()
		return nil, ctx.Err()
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and emits it if it differs from the current value. Called
// from inside a change listener, the update is applied after that listener
// returns.
func (c *Cell[T]) Set(v T) error {
	return c.exec.do(func() { c.apply(v) })
}

// Update stores fn applied to the current value.
func (c *Cell[T]) Update(fn func(T) T) error {
	return c.exec.do(func() { c.apply(fn(c.Get())) })
}

func (c *Cell[T]) apply(v T) {
	c.mu.Lock()
	if c.equal(c.value, v) {
		c.mu.Unlock()
		return
	}
	c.value = v
	c.mu.Unlock()
	_ = c.changes.Push(v)
}

// Stream returns the stream of changed values.
func (c *Cell[T]) Stream() *stream.Stream[T] { return c.changes }

// Close stops following the source stream, if any, and closes Stream.
// Further Set calls fail with ErrClosed.
func (c *Cell[T]) Close() {
	if c.unfollow != nil {
		c.unfollow()
	}
	c.exec.close()
	c.changes.Close()
}
