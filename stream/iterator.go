package stream

import (
	"context"
	"iter"
	"sync"

	"github.com/kbukum/streamkit/errors"
)

// Iterator provides pull-based sequential access to a stream of values.
type Iterator[T any] interface {
	// Next blocks until a value is available. Returns (zero, false, nil)
	// when the source is exhausted, and (zero, false, err) for an error
	// delivered at this position or a done ctx. Calling Next again after an
	// error continues with the following position.
	Next(ctx context.Context) (T, bool, error)
	// Close releases the iterator. Pending values are discarded.
	Close() error
}

// session is the iteration bridge: a listener that parks pushed values in a
// private FIFO until the consumer pulls them.
type session[T any] struct {
	mu          sync.Mutex
	queue       []event[T]
	ended       bool
	stopped     bool
	wake        chan struct{}
	unsubscribe func()
}

// Iter opens an iteration session. The session subscribes immediately, so
// every value pushed after Iter returns is observed even if the first Next
// comes later. Each session receives every value independently.
func (s *Stream[T]) Iter() Iterator[T] {
	se := &session[T]{wake: make(chan struct{}, 1)}
	unsub := s.subscribe(&listener[T]{
		onValue: func(v T) { se.enqueue(event[T]{val: v}) },
		onError: func(err error) { se.enqueue(event[T]{err: err}) },
		onClose: se.end,
	})
	se.mu.Lock()
	se.unsubscribe = unsub
	se.mu.Unlock()
	return se
}

func (it *session[T]) enqueue(ev event[T]) {
	it.mu.Lock()
	if it.stopped || it.ended {
		it.mu.Unlock()
		return
	}
	it.queue = append(it.queue, ev)
	it.mu.Unlock()
	it.signal()
}

func (it *session[T]) end() {
	it.mu.Lock()
	it.ended = true
	it.mu.Unlock()
	it.signal()
}

func (it *session[T]) signal() {
	select {
	case it.wake <- struct{}{}:
	default:
	}
}

func (it *session[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		it.mu.Lock()
		switch {
		case it.stopped:
			it.mu.Unlock()
			return zero, false, nil
		case len(it.queue) > 0:
			ev := it.queue[0]
			it.queue[0] = event[T]{}
			it.queue = it.queue[1:]
			it.mu.Unlock()
			if ev.err != nil {
				return zero, false, ev.err
			}
			return ev.val, true, nil
		case it.ended:
			it.mu.Unlock()
			return zero, false, nil
		}
		it.mu.Unlock()

		select {
		case <-it.wake:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

func (it *session[T]) Close() error {
	it.mu.Lock()
	if it.stopped {
		it.mu.Unlock()
		return nil
	}
	it.stopped = true
	it.queue = nil
	unsub := it.unsubscribe
	it.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	it.signal()
	return nil
}

// Next awaits the next value pushed to the stream: it opens a session,
// takes exactly one value and closes the session. Returns an
// ErrClosed-matching error if the stream closes first.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	it := s.Iter()
	defer it.Close()
	v, ok, err := it.Next(ctx)
	if err != nil {
		return v, err
	}
	if !ok {
		return v, errors.Closed("stream " + s.name)
	}
	return v, nil
}

// All returns a range-over-func view of a fresh session. Errors delivered
// with Fail are yielded with a zero value; iteration stops when the stream
// closes, ctx is done, or the loop breaks.
//
//	for v, err := range s.All(ctx) { ... }
func (s *Stream[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		Seq(ctx, s.Iter())(yield)
	}
}

// Seq adapts an Iterator to a range-over-func sequence and closes it when
// the loop ends.
func Seq[T any](ctx context.Context, it Iterator[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		defer it.Close()
		for {
			v, ok, err := it.Next(ctx)
			if err != nil {
				if !yield(v, err) || ctx.Err() != nil {
					return
				}
				continue
			}
			if !ok {
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Take pulls n values from a fresh session on s.
func Take[T any](ctx context.Context, s *Stream[T], n int) ([]T, error) {
	it := s.Iter()
	defer it.Close()
	out := make([]T, 0, n)
	for len(out) < n {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
	return out, nil
}

// Collect pulls all values from it until it is exhausted or fails, then
// closes it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var result []T
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return result, err
		}
		if !ok {
			return result, nil
		}
		result = append(result, val)
	}
}

// Drain pulls every value from it and hands it to sink, stopping on the
// first error from either side.
func Drain[T any](ctx context.Context, it Iterator[T], sink func(context.Context, T) error) error {
	defer it.Close()
	for {
		val, ok, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := sink(ctx, val); err != nil {
			return err
		}
	}
}
