package buffer

import (
	"context"
	"sync"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/stream"
)

// broadcast wakes every goroutine waiting on the channel returned by wait.
type broadcast struct {
	mu sync.Mutex
	ch chan struct{}
}

func newBroadcast() *broadcast {
	return &broadcast{ch: make(chan struct{})}
}

func (b *broadcast) wait() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

func (b *broadcast) notify() {
	b.mu.Lock()
	close(b.ch)
	b.ch = make(chan struct{})
	b.mu.Unlock()
}

// failure is an error failed on the source, positioned before the value
// with sequence number before.
type failure struct {
	err    error
	before uint64
}

// Queue buffers the values of a stream for pull-based consumption. Each
// value is handed to exactly one consumer: concurrent Pull calls compete
// and the first ready consumer wins. Like Cache, Queue subscribes to its
// source at construction so production can run ahead of consumption.
//
// Errors failed on the source are queued in order with the values and
// returned by exactly one Pull or Next. They do not count against the
// capacity.
type Queue[T any] struct {
	buf  *Buffer[T]
	name string

	ready *broadcast
	space *broadcast

	mu          sync.Mutex
	failures    []failure
	ended       bool
	unsubscribe func()
}

// NewQueue creates a Queue over src. Returns an INVALID_CONFIG error if
// opts are invalid; in that case src is left untouched.
func NewQueue[T any](src *stream.Stream[T], opts Options) (*Queue[T], error) {
	buf, err := New[T](opts)
	if err != nil {
		return nil, err
	}
	q := &Queue[T]{
		buf:   buf,
		name:  src.Name() + ".queue",
		ready: newBroadcast(),
		space: newBroadcast(),
	}
	unsub := src.Observe(q.receive, q.fail, q.end)
	q.mu.Lock()
	q.unsubscribe = unsub
	q.mu.Unlock()

	logger.Get("buffer").Debug("queue attached", logger.Fields(
		logger.FieldStream, src.Name(),
		logger.FieldCapacity, opts.Capacity,
		logger.FieldPolicy, opts.DropPolicy.String(),
	))
	return q, nil
}

func (q *Queue[T]) receive(v T) {
	if q.buf.Add(v) {
		q.ready.notify()
	}
}

func (q *Queue[T]) fail(err error) {
	q.mu.Lock()
	q.failures = append(q.failures, failure{err: err, before: q.buf.lastSeq() + 1})
	q.mu.Unlock()
	q.ready.notify()
}

// end marks the queue as no longer receiving. Values already buffered can
// still be pulled.
func (q *Queue[T]) end() {
	q.mu.Lock()
	q.ended = true
	q.mu.Unlock()
	q.ready.notify()
	q.space.notify()
}

func (q *Queue[T]) isEnded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ended
}

// Pull removes and returns the oldest value, blocking until one is
// available. A queued source error is returned in its place. Returns an
// ErrClosed-matching error once the queue has ended and is empty, or
// ctx.Err() if ctx is done first.
func (q *Queue[T]) Pull(ctx context.Context) (T, error) {
	v, ok, err := q.next(ctx)
	if !ok && err == nil {
		return v, errors.Closed(q.name)
	}
	return v, err
}

// next blocks for the head of the queue. ok is false with a nil error once
// the queue has ended and is empty.
func (q *Queue[T]) next(ctx context.Context) (T, bool, error) {
	var zero T
	for {
		ready := q.ready.wait()
		v, ok, err := q.TryPull()
		switch {
		case err != nil:
			return zero, false, err
		case ok:
			return v, true, nil
		case q.isEnded():
			return zero, false, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return zero, false, ctx.Err()
		}
	}
}

// TryPull removes and returns the head of the queue without blocking: the
// oldest value, or a source error queued before it. ok is false with a
// nil error when the queue is empty.
func (q *Queue[T]) TryPull() (v T, ok bool, err error) {
	q.mu.Lock()
	if len(q.failures) == 0 {
		v, ok = q.buf.Shift()
	} else if v, ok = q.buf.shiftBefore(q.failures[0].before); !ok {
		err = q.failures[0].err
		q.failures[0] = failure{}
		q.failures = q.failures[1:]
	}
	q.mu.Unlock()
	if ok {
		q.space.notify()
	}
	return v, ok, err
}

// WaitSpace blocks until the queue is below capacity, letting a producer
// apply backpressure instead of relying on the drop policy.
func (q *Queue[T]) WaitSpace(ctx context.Context) error {
	for {
		space := q.space.wait()
		if !q.buf.Full() {
			return nil
		}
		if q.isEnded() {
			return errors.Closed(q.name)
		}
		select {
		case <-space:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Iter returns a competing consumer: values it yields are removed from the
// queue and never seen by other consumers. It is exhausted once the queue
// has ended and is empty.
func (q *Queue[T]) Iter() stream.Iterator[T] {
	return &queueIter[T]{q: q}
}

// Values returns the buffered values, oldest first, without removing them.
func (q *Queue[T]) Values() []T { return q.buf.Values() }

// Len returns the number of buffered values.
func (q *Queue[T]) Len() int { return q.buf.Len() }

// Full reports whether the queue is at capacity.
func (q *Queue[T]) Full() bool { return q.buf.Full() }

// Dropped returns the number of values lost to the drop policy.
func (q *Queue[T]) Dropped() uint64 { return q.buf.Dropped() }

// Clear discards every buffered value and queued error and resets Dropped.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	q.failures = nil
	q.buf.Clear()
	q.mu.Unlock()
	q.space.notify()
}

// Close releases the source subscription. Blocked and future pulls drain
// what is buffered and then fail with ErrClosed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	unsub := q.unsubscribe
	q.unsubscribe = nil
	q.mu.Unlock()
	if unsub != nil {
		unsub()
	}
	q.end()
}

type queueIter[T any] struct {
	q       *Queue[T]
	mu      sync.Mutex
	stopped bool
}

func (it *queueIter[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	it.mu.Lock()
	stopped := it.stopped
	it.mu.Unlock()
	if stopped {
		return zero, false, nil
	}
	return it.q.next(ctx)
}

func (it *queueIter[T]) Close() error {
	it.mu.Lock()
	it.stopped = true
	it.mu.Unlock()
	return nil
}
