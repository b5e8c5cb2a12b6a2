package stream

import (
	"context"
	"sync/atomic"

	"github.com/kbukum/streamkit/errors"
)

// Transformer derives one stream from another. Transformers are plain
// functions so they chain with Pipe.
type Transformer[A, B any] func(*Stream[A]) *Stream[B]

// Pipe applies t to s.
func Pipe[A, B any](s *Stream[A], t Transformer[A, B]) *Stream[B] {
	return t(s)
}

// Pipe applies same-typed transformers left to right.
func (s *Stream[T]) Pipe(ts ...Transformer[T, T]) *Stream[T] {
	out := s
	for _, t := range ts {
		out = t(out)
	}
	return out
}

// relay builds a cold stream that, while observed, listens to up and hands
// each value to the callback returned by forward. forward runs once per
// activation so per-activation state lives in its closure. The derived
// stream closes when up closes; errors failed on up stay on up.
func relay[A, B any](up *Stream[A], suffix string, opts []Option, forward func(emit Emitter[B]) func(A)) *Stream[B] {
	return NewCold(func(emit Emitter[B]) func() {
		return up.subscribe(&listener[A]{
			onValue: forward(emit),
			onClose: emit.Close,
		})
	}, derivedOptions(up, suffix, opts)...)
}

// Filter returns a cold stream carrying the values for which pred is true.
func (s *Stream[T]) Filter(pred func(T) bool, opts ...Option) *Stream[T] {
	return relay(s, "filter", opts, func(emit Emitter[T]) func(T) {
		return func(v T) {
			if pred(v) {
				_ = emit.Push(v)
			}
		}
	})
}

// FilterState is Filter with explicit state threaded from one call to the
// next. The state starts from initial on every activation.
func FilterState[T, S any](s *Stream[T], initial S, pred func(state S, v T) (bool, S), opts ...Option) *Stream[T] {
	return relay(s, "filter", opts, func(emit Emitter[T]) func(T) {
		state := initial
		return func(v T) {
			var keep bool
			keep, state = pred(state, v)
			if keep {
				_ = emit.Push(v)
			}
		}
	})
}

// FilterFunc filters with a predicate that may block or fail. Values are
// evaluated one at a time so the output keeps arrival order. A predicate
// error drops the value and is failed on the derived stream.
func FilterFunc[T any](s *Stream[T], pred func(context.Context, T) (bool, error), opts ...Option) *Stream[T] {
	return Generate(s, func(ctx context.Context, in Iterator[T], out Emitter[T]) error {
		var index uint64
		for {
			v, ok, err := in.Next(ctx)
			switch {
			case ctx.Err() != nil, !ok && err == nil:
				return nil
			case err != nil:
				continue
			}
			keep, err := pred(ctx, v)
			if err != nil {
				_ = out.Fail(errors.TransformFailed(index, err))
				index++
				continue
			}
			index++
			if keep {
				_ = out.Push(v)
			}
		}
	}, append([]Option{WithName(s.name + ".filter")}, opts...)...)
}

// Map returns a cold stream carrying fn applied to each value.
func Map[A, B any](s *Stream[A], fn func(A) B, opts ...Option) *Stream[B] {
	return relay(s, "map", opts, func(emit Emitter[B]) func(A) {
		return func(v A) { _ = emit.Push(fn(v)) }
	})
}

// Merge returns a cold stream carrying the values of every input as they
// are pushed. It closes once all inputs have closed. The stream is named
// "merge" unless opts name it.
func Merge[T any](streams []*Stream[T], opts ...Option) *Stream[T] {
	return NewCold(func(emit Emitter[T]) func() {
		if len(streams) == 0 {
			emit.Close()
			return nil
		}
		var remaining atomic.Int32
		remaining.Store(int32(len(streams)))
		unsubs := make([]func(), 0, len(streams))
		for _, up := range streams {
			unsubs = append(unsubs, up.subscribe(&listener[T]{
				onValue: func(v T) { _ = emit.Push(v) },
				onClose: func() {
					if remaining.Add(-1) == 0 {
						emit.Close()
					}
				},
			}))
		}
		return func() {
			for _, u := range unsubs {
				u()
			}
		}
	}, append([]Option{WithName("merge")}, opts...)...)
}

// gatedEmitter drops writes once its activation has been stopped, so a
// producer goroutine that outlives its activation cannot leak values into
// a later one.
type gatedEmitter[T any] struct {
	ctx context.Context
	out Emitter[T]
}

func (g gatedEmitter[T]) Push(values ...T) error {
	if err := g.ctx.Err(); err != nil {
		return err
	}
	return g.out.Push(values...)
}

func (g gatedEmitter[T]) Fail(err error) error {
	if ctxErr := g.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return g.out.Fail(err)
}

func (g gatedEmitter[T]) Close() {
	if g.ctx.Err() == nil {
		g.out.Close()
	}
}

// background runs produce on its own goroutine for the lifetime of one
// activation. Returning nil closes the stream, returning an error fails and
// then closes it; neither happens if the activation was stopped first.
func background[T any](produce func(ctx context.Context, emit Emitter[T]) error, cleanup func()) func(Emitter[T]) func() {
	return func(emit Emitter[T]) func() {
		ctx, cancel := context.WithCancel(context.Background())
		gated := gatedEmitter[T]{ctx: ctx, out: emit}
		go func() {
			err := produce(ctx, gated)
			if err != nil {
				_ = gated.Fail(err)
			}
			gated.Close()
		}()
		return func() {
			cancel()
			if cleanup != nil {
				cleanup()
			}
		}
	}
}

// FromFunc creates a cold stream whose producer runs on its own goroutine
// while the stream is observed. ctx is canceled when the last consumer
// leaves.
func FromFunc[T any](produce func(ctx context.Context, emit Emitter[T]) error, opts ...Option) *Stream[T] {
	return NewCold(background(produce, nil), opts...)
}

// Generate derives a stream from an explicit upstream iterator and emit
// handle. The upstream session is opened when the derived stream is first
// observed, so nothing pushed after that is missed, and closed when it is
// no longer observed.
func Generate[A, B any](up *Stream[A], fn func(ctx context.Context, in Iterator[A], out Emitter[B]) error, opts ...Option) *Stream[B] {
	return NewCold(func(emit Emitter[B]) func() {
		in := up.Iter()
		produce := func(ctx context.Context, out Emitter[B]) error {
			return fn(ctx, in, out)
		}
		return background(produce, func() { _ = in.Close() })(emit)
	}, derivedOptions(up, "generate", opts)...)
}

// FromChannel creates a cold stream that forwards values received on ch
// while observed, and closes when ch is closed.
func FromChannel[T any](ch <-chan T, opts ...Option) *Stream[T] {
	return FromFunc(func(ctx context.Context, emit Emitter[T]) error {
		for {
			select {
			case v, ok := <-ch:
				if !ok {
					return nil
				}
				if err := emit.Push(v); err != nil {
					return nil
				}
			case <-ctx.Done():
				return nil
			}
		}
	}, opts...)
}

// FromIterator creates a cold stream that pulls it while observed. An error
// from it is failed on the stream and ends it. it is closed when
// exhausted.
func FromIterator[T any](it Iterator[T], opts ...Option) *Stream[T] {
	return FromFunc(func(ctx context.Context, emit Emitter[T]) error {
		for {
			v, ok, err := it.Next(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				_ = it.Close()
				return err
			}
			if !ok {
				return it.Close()
			}
			if err := emit.Push(v); err != nil {
				return nil
			}
		}
	}, opts...)
}

// FromSlice creates a cold stream that pushes items to its first consumer
// synchronously on activation and then closes.
func FromSlice[T any](items []T, opts ...Option) *Stream[T] {
	return NewCold(func(emit Emitter[T]) func() {
		_ = emit.Push(items...)
		emit.Close()
		return nil
	}, opts...)
}
