package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kbukum/streamkit/buffer"
	"github.com/kbukum/streamkit/expose"
	"github.com/kbukum/streamkit/observability"
	"github.com/kbukum/streamkit/stream"
	"github.com/kbukum/streamkit/transform"
)

// buildRoutes creates the routes streamd serves. metrics may be nil. The
// returned function stops the handlers and closes the routes.
func buildRoutes(cfg *Config, metrics *observability.Metrics) ([]*expose.Route, func(), error) {
	echo, stopEcho, err := newEchoRoute(cfg, metrics)
	if err != nil {
		return nil, nil, err
	}
	clock, stopClock, err := newClockRoute(cfg.ClockInterval)
	if err != nil {
		stopEcho()
		return nil, nil, err
	}

	return []*expose.Route{echo, clock}, func() {
		stopEcho()
		stopClock()
	}, nil
}

// newEchoRoute answers every request with its own payload and publishes the
// payload as an event. Recent events are cached for new subscribers.
func newEchoRoute(cfg *Config, metrics *observability.Metrics) (*expose.Route, func(), error) {
	r := expose.NewRoute("echo")

	var onDrop func(buffer.DropReason, int)
	if metrics != nil {
		onDrop = metrics.DropRecorder(r.Events.Name())
	}
	bufOpts, err := cfg.Buffer.Options(onDrop)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	if err := r.CacheEvents(bufOpts); err != nil {
		r.Close()
		return nil, nil, err
	}

	mapOpts, err := cfg.Mapper.Options()
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	if metrics != nil {
		mapOpts = append(mapOpts, transform.WithObserver(metrics))
	}

	stop, err := expose.Handle(r, func(_ context.Context, req expose.Request) (json.RawMessage, error) {
		if err := r.Events.Push(req.Payload); err != nil {
			return nil, err
		}
		return req.Payload, nil
	}, mapOpts...)
	if err != nil {
		r.Close()
		return nil, nil, err
	}

	return r, func() {
		stop()
		r.Close()
	}, nil
}

// newClockRoute publishes the current time every interval and answers
// requests with it.
func newClockRoute(interval time.Duration) (*expose.Route, func(), error) {
	r := expose.NewRoute("clock")

	ticks := stream.FromFunc(func(ctx context.Context, emit stream.Emitter[json.RawMessage]) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if err := emit.Push(timestamp(now)); err != nil {
					return nil
				}
			}
		}
	}, stream.WithName("clock.ticks"))
	unsubscribe := ticks.Listen(func(v json.RawMessage) { _ = r.Events.Push(v) })

	stop, err := expose.Handle(r, func(context.Context, expose.Request) (json.RawMessage, error) {
		return timestamp(time.Now()), nil
	})
	if err != nil {
		unsubscribe()
		r.Close()
		return nil, nil, err
	}

	return r, func() {
		unsubscribe()
		stop()
		r.Close()
	}, nil
}

func timestamp(t time.Time) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"time": t.UTC().Format(time.RFC3339Nano)})
	return data
}
