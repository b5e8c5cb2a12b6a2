package transform

import (
	"context"
	"time"

	"github.com/kbukum/streamkit/stream"
)

// nextBefore pulls the next value from in, giving up at deadline. A zero
// deadline waits without limit. expired is true when the deadline passed
// first.
func nextBefore[T any](ctx context.Context, in stream.Iterator[T], deadline time.Time) (v T, ok, expired bool, err error) {
	if deadline.IsZero() {
		v, ok, err = in.Next(ctx)
		return v, ok, false, err
	}
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	v, ok, err = in.Next(waitCtx)
	if err != nil && ctx.Err() == nil && waitCtx.Err() != nil {
		return v, false, true, nil
	}
	return v, ok, false, err
}

// Batch collects up to size values or waits timeout after the first value
// of a batch (whichever comes first), then emits them as a slice. The
// partial batch is emitted when s closes.
//
// size=0 means collect until timeout. timeout=0 means collect until size.
// Both zero defaults to size=1.
func Batch[T any](s *stream.Stream[T], size int, timeout time.Duration) *stream.Stream[[]T] {
	if size <= 0 && timeout <= 0 {
		size = 1
	}
	return stream.Generate(s, func(ctx context.Context, in stream.Iterator[T], out stream.Emitter[[]T]) error {
		var batch []T
		var deadline time.Time
		flush := func() {
			if len(batch) > 0 {
				_ = out.Push(batch)
				batch = nil
			}
			deadline = time.Time{}
		}
		for {
			v, ok, expired, err := nextBefore(ctx, in, deadline)
			switch {
			case ctx.Err() != nil:
				return nil
			case expired:
				flush()
				continue
			case err != nil:
				continue
			case !ok:
				flush()
				return nil
			}
			if len(batch) == 0 && timeout > 0 {
				deadline = time.Now().Add(timeout)
			}
			batch = append(batch, v)
			if size > 0 && len(batch) >= size {
				flush()
			}
		}
	}, stream.WithName(s.Name()+".batch"))
}

// TumblingWindow groups values into non-overlapping fixed-duration windows
// measured from activation. Each non-empty window is emitted when its
// duration expires; the final partial window is emitted when s closes.
func TumblingWindow[T any](s *stream.Stream[T], d time.Duration) *stream.Stream[[]T] {
	return stream.Generate(s, func(ctx context.Context, in stream.Iterator[T], out stream.Emitter[[]T]) error {
		var window []T
		deadline := time.Now().Add(d)
		for {
			v, ok, expired, err := nextBefore(ctx, in, deadline)
			switch {
			case ctx.Err() != nil:
				return nil
			case expired:
				if len(window) > 0 {
					_ = out.Push(window)
					window = nil
				}
				now := time.Now()
				for !deadline.After(now) {
					deadline = deadline.Add(d)
				}
				continue
			case err != nil:
				continue
			case !ok:
				if len(window) > 0 {
					_ = out.Push(window)
				}
				return nil
			}
			window = append(window, v)
		}
	}, stream.WithName(s.Name()+".window"))
}

// SlidingWindow emits overlapping windows based on a time extraction
// function. size is the duration of each window, slide is how far each
// window advances.
//
// Values must arrive in time order. Each emitted slice contains the values
// whose timestamp falls within [windowStart, windowStart+size). A window is
// emitted once a value at or past its end arrives, or when s closes.
func SlidingWindow[T any](s *stream.Stream[T], timeFn func(T) time.Time, size, slide time.Duration) *stream.Stream[[]T] {
	if size <= 0 {
		size = time.Nanosecond
	}
	if slide <= 0 {
		slide = size
	}
	return stream.Generate(s, func(ctx context.Context, in stream.Iterator[T], out stream.Emitter[[]T]) error {
		var (
			buffer    []T
			windowEnd time.Time
			started   bool
		)
		emitWindow := func() {
			start := windowEnd.Add(-size)
			var window []T
			for _, v := range buffer {
				ts := timeFn(v)
				if !ts.Before(start) && ts.Before(windowEnd) {
					window = append(window, v)
				}
			}
			if len(window) > 0 {
				_ = out.Push(window)
			}
		}
		for {
			v, ok, err := in.Next(ctx)
			switch {
			case ctx.Err() != nil:
				return nil
			case err != nil:
				continue
			case !ok:
				if started {
					emitWindow()
				}
				return nil
			}

			ts := timeFn(v)
			if !started {
				windowEnd = ts.Add(size)
				started = true
			}
			for !ts.Before(windowEnd) {
				emitWindow()
				windowEnd = windowEnd.Add(slide)
				newStart := windowEnd.Add(-size)
				kept := buffer[:0]
				for _, b := range buffer {
					if !timeFn(b).Before(newStart) {
						kept = append(kept, b)
					}
				}
				buffer = kept
			}
			buffer = append(buffer, v)
		}
	}, stream.WithName(s.Name()+".sliding"))
}
