package buffer

import (
	"context"
	"sync"

	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/stream"
)

// Cache retains the most recent values of a stream. It subscribes to its
// source at construction and holds that subscription until Close, so
// values pushed before anyone observes the cache are kept.
type Cache[T any] struct {
	buf  *Buffer[T]
	name string
	// live relays every source value tagged with its buffer sequence number
	live *stream.Stream[entry[T]]
	out  *stream.Stream[T]

	closeOnce   sync.Once
	unsubscribe func()
}

// NewCache creates a Cache over src. Returns an INVALID_CONFIG error if
// opts are invalid; in that case src is left untouched.
func NewCache[T any](src *stream.Stream[T], opts Options) (*Cache[T], error) {
	buf, err := New[T](opts)
	if err != nil {
		return nil, err
	}
	name := src.Name() + ".cache"
	c := &Cache[T]{
		buf:  buf,
		name: name,
		live: stream.New[entry[T]](stream.WithName(name + ".live")),
	}
	c.out = stream.Map(c.live, func(e entry[T]) T { return e.val }, stream.WithName(name))
	c.unsubscribe = src.Observe(c.receive, c.fail, c.live.Close)

	logger.Get("buffer").Debug("cache attached", logger.Fields(
		logger.FieldStream, src.Name(),
		logger.FieldCapacity, opts.Capacity,
		logger.FieldPolicy, opts.DropPolicy.String(),
	))
	return c, nil
}

func (c *Cache[T]) receive(v T) {
	_, seq := c.buf.add(v)
	_ = c.live.Push(entry[T]{val: v, seq: seq})
}

func (c *Cache[T]) fail(err error) {
	_ = c.live.Fail(err)
}

// Values returns the retained values, oldest first, without removing them.
func (c *Cache[T]) Values() []T { return c.buf.Values() }

// Len returns the number of retained values.
func (c *Cache[T]) Len() int { return c.buf.Len() }

// Clear empties the cache and resets Dropped.
func (c *Cache[T]) Clear() { c.buf.Clear() }

// Dropped returns the number of values lost to the drop policy.
func (c *Cache[T]) Dropped() uint64 { return c.buf.Dropped() }

// Stream returns a stream relaying every value the cache receives as it
// arrives. It closes when the source closes or the cache is closed.
func (c *Cache[T]) Stream() *stream.Stream[T] { return c.out }

// Iter opens a session that first yields the values retained at the time
// of the call and then every value received afterwards.
func (c *Cache[T]) Iter() stream.Iterator[T] {
	live := c.live.Iter()
	retained, upTo := c.buf.snapshot()
	return &replayIter[T]{retained: retained, upTo: upTo, live: live}
}

// Close releases the source subscription and closes Stream. Retained
// values stay readable.
func (c *Cache[T]) Close() {
	c.closeOnce.Do(func() {
		c.unsubscribe()
		c.live.Close()
	})
}

// replayIter yields a snapshot and then the live values that arrived after
// it, skipping live values the snapshot already covers.
type replayIter[T any] struct {
	retained []entry[T]
	upTo     uint64
	live     stream.Iterator[entry[T]]
}

func (it *replayIter[T]) Next(ctx context.Context) (T, bool, error) {
	if len(it.retained) > 0 {
		e := it.retained[0]
		it.retained = it.retained[1:]
		return e.val, true, nil
	}
	for {
		e, ok, err := it.live.Next(ctx)
		if err != nil || !ok {
			return e.val, ok, err
		}
		if e.seq > it.upTo {
			return e.val, true, nil
		}
	}
}

func (it *replayIter[T]) Close() error {
	it.retained = nil
	return it.live.Close()
}
