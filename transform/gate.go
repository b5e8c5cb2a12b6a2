package transform

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/kbukum/streamkit/stream"
)

// Throttle drops values that arrive faster than the given interval. Only
// the first value in each interval is emitted; later values within the same
// interval are dropped. The limiter restarts on every activation.
func Throttle[T any](s *stream.Stream[T], interval time.Duration) *stream.Stream[T] {
	return stream.FilterState(s, (*rate.Limiter)(nil), func(l *rate.Limiter, _ T) (bool, *rate.Limiter) {
		if l == nil {
			l = rate.NewLimiter(rate.Every(interval), 1)
		}
		return l.Allow(), l
	}, stream.WithName(s.Name()+".throttle"))
}

// RateLimit delays values so that at most limit values per second are
// emitted, with bursts of up to burst. Unlike Throttle nothing is dropped;
// values wait in the upstream session until a token is available.
func RateLimit[T any](s *stream.Stream[T], limit rate.Limit, burst int) *stream.Stream[T] {
	if burst <= 0 {
		burst = 1
	}
	return stream.Generate(s, func(ctx context.Context, in stream.Iterator[T], out stream.Emitter[T]) error {
		limiter := rate.NewLimiter(limit, burst)
		for {
			v, ok, err := in.Next(ctx)
			switch {
			case ctx.Err() != nil, !ok && err == nil:
				return nil
			case err != nil:
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			_ = out.Push(v)
		}
	}, stream.WithName(s.Name()+".ratelimit"))
}

// Debounce waits for silence of the given duration after the last value
// before emitting it. A value arriving during the quiet period restarts it
// and replaces the pending value. A pending value is emitted when s closes.
func Debounce[T any](s *stream.Stream[T], d time.Duration) *stream.Stream[T] {
	return stream.Generate(s, func(ctx context.Context, in stream.Iterator[T], out stream.Emitter[T]) error {
		var latest T
		var deadline time.Time
		pending := false
		for {
			v, ok, expired, err := nextBefore(ctx, in, deadline)
			switch {
			case ctx.Err() != nil:
				return nil
			case expired:
				_ = out.Push(latest)
				pending = false
				deadline = time.Time{}
				continue
			case err != nil:
				continue
			case !ok:
				if pending {
					_ = out.Push(latest)
				}
				return nil
			}
			latest = v
			pending = true
			deadline = time.Now().Add(d)
		}
	}, stream.WithName(s.Name()+".debounce"))
}

// Tap calls fn for each value as a side effect and passes the value on.
func Tap[T any](s *stream.Stream[T], fn func(T)) *stream.Stream[T] {
	return stream.Map(s, func(v T) T {
		fn(v)
		return v
	}, stream.WithName(s.Name()+".tap"))
}
