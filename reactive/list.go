package reactive

import (
	"fmt"
	"slices"
	"sync"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/stream"
)

// ListChange describes one mutation of a List.
type ListChange[T any] struct {
	Op    Op
	Index int
	Value T
	Old   T
}

// List is an ordered container that emits a ListChange for every mutation
// that alters it.
type List[T any] struct {
	mu     sync.RWMutex
	values []T
	equal  func(a, b T) bool

	exec    executor
	changes *stream.Stream[ListChange[T]]
}

// NewList creates a list holding initial, comparing values with ==.
func NewList[T comparable](initial ...T) *List[T] {
	return NewListFunc(func(a, b T) bool { return a == b }, initial...)
}

// NewListFunc creates a list holding initial, comparing values with equal.
func NewListFunc[T any](equal func(a, b T) bool, initial ...T) *List[T] {
	return &List[T]{
		values:  slices.Clone(initial),
		equal:   equal,
		exec:    newExecutor("list"),
		changes: stream.New[ListChange[T]](stream.WithName("list")),
	}
}

// Append adds values at the end, emitting one OpInsert change each.
func (l *List[T]) Append(values ...T) error {
	return l.exec.do(func() {
		for _, v := range values {
			l.mu.Lock()
			l.values = append(l.values, v)
			i := len(l.values) - 1
			l.mu.Unlock()
			_ = l.changes.Push(ListChange[T]{Op: OpInsert, Index: i, Value: v})
		}
	})
}

// Set replaces the value at index i. Setting the value already there emits
// nothing. Returns INVALID_INPUT if i is out of range.
func (l *List[T]) Set(i int, v T) error {
	if err := l.checkIndex(i); err != nil {
		return err
	}
	return l.exec.do(func() {
		l.mu.Lock()
		if i >= len(l.values) || l.equal(l.values[i], v) {
			l.mu.Unlock()
			return
		}
		old := l.values[i]
		l.values[i] = v
		l.mu.Unlock()
		_ = l.changes.Push(ListChange[T]{Op: OpSet, Index: i, Value: v, Old: old})
	})
}

// Remove deletes the value at index i. Returns INVALID_INPUT if i is out of
// range.
func (l *List[T]) Remove(i int) error {
	if err := l.checkIndex(i); err != nil {
		return err
	}
	return l.exec.do(func() {
		l.mu.Lock()
		if i >= len(l.values) {
			l.mu.Unlock()
			return
		}
		old := l.values[i]
		l.values = slices.Delete(l.values, i, i+1)
		l.mu.Unlock()
		_ = l.changes.Push(ListChange[T]{Op: OpDelete, Index: i, Old: old})
	})
}

func (l *List[T]) checkIndex(i int) error {
	if n := l.Len(); i < 0 || i >= n {
		return errors.InvalidInput("index", fmt.Sprintf("index %d out of range [0,%d)", i, n))
	}
	return nil
}

// Get returns the value at index i.
func (l *List[T]) Get(i int) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 || i >= len(l.values) {
		var zero T
		return zero, false
	}
	return l.values[i], true
}

// Values returns a copy of the contents.
func (l *List[T]) Values() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.values)
}

// Len returns the number of values.
func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.values)
}

// Stream returns the stream of changes.
func (l *List[T]) Stream() *stream.Stream[ListChange[T]] { return l.changes }

// Close closes Stream. Further mutations fail with ErrClosed.
func (l *List[T]) Close() {
	l.exec.close()
	l.changes.Close()
}
