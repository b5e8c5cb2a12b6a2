package stream

import (
	"context"
	"slices"
	"sync"
)

// listener is one registration. Each call to Listen creates a new one, so
// registering the same callback twice yields two subscriptions.
type listener[T any] struct {
	onValue func(T)
	onError func(error)
	onClose func()
}

// Listen registers fn for every value pushed from now on. The returned
// function deregisters it; calling it more than once is harmless.
func (s *Stream[T]) Listen(fn func(T)) (unsubscribe func()) {
	return s.subscribe(&listener[T]{onValue: fn})
}

// ListenContext is Listen with ctx as the cancellation signal: the
// listener is deregistered when ctx is done.
func (s *Stream[T]) ListenContext(ctx context.Context, fn func(T)) (unsubscribe func()) {
	if ctx.Err() != nil {
		return func() {}
	}
	unsub := s.Listen(fn)
	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}
}

// OnError registers fn for errors delivered with Fail. It counts as a
// consumer for cold activation.
func (s *Stream[T]) OnError(fn func(error)) (unsubscribe func()) {
	return s.subscribe(&listener[T]{onError: fn})
}

// Observe registers callbacks for values, errors and close in a single
// subscription. Any of them may be nil. If the stream is already closed,
// onClose runs immediately and nothing is registered.
func (s *Stream[T]) Observe(onValue func(T), onError func(error), onClose func()) (unsubscribe func()) {
	return s.subscribe(&listener[T]{onValue: onValue, onError: onError, onClose: onClose})
}

// HasListeners reports whether at least one listener or iteration session
// is registered.
func (s *Stream[T]) HasListeners() bool {
	return s.ListenerCount() > 0
}

// ListenerCount returns the number of registered listeners and sessions.
func (s *Stream[T]) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

func (s *Stream[T]) subscribe(l *listener[T]) (unsubscribe func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if l.onClose != nil {
			l.onClose()
		}
		return func() {}
	}
	next := make([]*listener[T], len(s.listeners), len(s.listeners)+1)
	copy(next, s.listeners)
	s.listeners = append(next, l)
	s.mu.Unlock()

	s.reconcile()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(l) })
	}
}

func (s *Stream[T]) remove(l *listener[T]) {
	s.mu.Lock()
	i := slices.Index(s.listeners, l)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.listeners = slices.Delete(slices.Clone(s.listeners), i, i+1)
	s.mu.Unlock()

	s.reconcile()
}
