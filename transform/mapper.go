package transform

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kbukum/streamkit/errors"
	"github.com/kbukum/streamkit/logger"
	"github.com/kbukum/streamkit/stream"
)

// Map derives a stream carrying fn applied to each value of s, scheduled
// according to the configured Strategy. The output is cold: mapping runs
// only while it is observed, and it closes once s has closed and every
// started value has been settled.
//
// A failure of fn is reported as a TRANSFORM_FAILED error carrying the
// value's position. Under Continue it is failed on the output where the
// value would have been emitted; under Abort it fails and closes the
// output.
//
// Returns an INVALID_CONFIG error for a nil fn or an unknown strategy or
// error policy; s is left untouched in that case.
func Map[A, B any](s *stream.Stream[A], fn func(context.Context, A) (B, error), opts ...Option) (*stream.Stream[B], error) {
	o := applyOptions(opts)
	if err := o.validate(fn != nil); err != nil {
		return nil, err
	}
	if o.name == "" {
		o.name = s.Name() + ".map"
	}
	m := &mapper[A, B]{fn: fn, opts: o, log: logger.Get("transform")}

	run := m.sequential
	if o.strategy == ConcurrentUnordered || o.strategy == ConcurrentOrdered {
		run = m.concurrent
	}
	return stream.Generate(s, run, stream.WithName(o.name)), nil
}

type mapper[A, B any] struct {
	fn   func(context.Context, A) (B, error)
	opts options
	log  *logger.Logger
}

func (m *mapper[A, B]) call(ctx context.Context, v A) (B, error) {
	m.opts.observer.MapStarted(m.opts.name)
	start := time.Now()
	out, err := m.fn(ctx, v)
	m.opts.observer.MapFinished(m.opts.name, time.Since(start), err)
	return out, err
}

func (m *mapper[A, B]) sequential(ctx context.Context, in stream.Iterator[A], out stream.Emitter[B]) error {
	var index uint64
	for {
		v, ok, err := in.Next(ctx)
		switch {
		case ctx.Err() != nil, !ok && err == nil:
			return nil
		case err != nil:
			continue
		}
		res, err := m.call(ctx, v)
		if err != nil {
			failure := errors.TransformFailed(index, err)
			index++
			if m.opts.policy == Abort {
				m.aborted(failure)
				return failure
			}
			_ = out.Fail(failure)
			continue
		}
		index++
		_ = out.Push(res)
	}
}

func (m *mapper[A, B]) concurrent(ctx context.Context, in stream.Iterator[A], out stream.Emitter[B]) error {
	workCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sem *semaphore.Weighted
	if m.opts.concurrency > 0 {
		sem = semaphore.NewWeighted(int64(m.opts.concurrency))
	}
	rel := &releaser[B]{
		out:     out,
		ordered: m.opts.strategy == ConcurrentOrdered,
		abort:   m.opts.policy == Abort,
		parked:  make(map[uint64]outcome[B]),
	}

	var wg sync.WaitGroup
	var index uint64
	for {
		v, ok, err := in.Next(workCtx)
		if workCtx.Err() != nil || (!ok && err == nil) {
			break
		}
		if err != nil {
			continue
		}
		if sem != nil {
			if err := sem.Acquire(workCtx, 1); err != nil {
				break
			}
		}
		wg.Add(1)
		go func(i uint64, v A) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			res, err := m.call(workCtx, v)
			if rel.settle(i, res, err) {
				cancel()
			}
		}(index, v)
		index++
	}
	wg.Wait()

	if failure := rel.failure(); failure != nil {
		m.aborted(failure)
		return failure
	}
	return nil
}

func (m *mapper[A, B]) aborted(err error) {
	m.log.Warn("mapping aborted", logger.Fields(
		logger.FieldStream, m.opts.name,
		logger.FieldStrategy, m.opts.strategy.String(),
		logger.FieldError, err.Error(),
	))
}

type outcome[B any] struct {
	val B
	err error
}

// releaser serializes emission from mapping goroutines. In ordered mode a
// completed value is parked until every value before it has been released.
type releaser[B any] struct {
	mu      sync.Mutex
	out     stream.Emitter[B]
	ordered bool
	abort   bool
	next    uint64
	parked  map[uint64]outcome[B]
	failed  error
}

// settle records the outcome for position i and releases whatever became
// releasable. Returns true when the mapping must stop.
func (r *releaser[B]) settle(i uint64, v B, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed != nil {
		return false
	}
	if err != nil {
		err = errors.TransformFailed(i, err)
	}
	if !r.ordered {
		return r.emit(outcome[B]{val: v, err: err})
	}
	r.parked[i] = outcome[B]{val: v, err: err}
	for {
		oc, ok := r.parked[r.next]
		if !ok {
			return false
		}
		delete(r.parked, r.next)
		r.next++
		if r.emit(oc) {
			return true
		}
	}
}

func (r *releaser[B]) emit(oc outcome[B]) bool {
	if oc.err == nil {
		_ = r.out.Push(oc.val)
		return false
	}
	if r.abort {
		r.failed = oc.err
		return true
	}
	_ = r.out.Fail(oc.err)
	return false
}

func (r *releaser[B]) failure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed
}
