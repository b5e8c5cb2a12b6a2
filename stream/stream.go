package stream

import (
	"sync"

	"github.com/kbukum/streamkit/errors"
)

// Emitter is the write side of a stream. Generators receive one instead of
// the stream itself so they can only push, fail or close.
type Emitter[T any] interface {
	// Push delivers values in argument order to the current listeners.
	Push(values ...T) error
	// Fail delivers err on the stream's error channel.
	Fail(err error) error
	// Close permanently closes the stream.
	Close()
}

// event is one dispatch unit: a value or an error, with the listeners
// registered when the push that produced it began.
type event[T any] struct {
	val     T
	err     error
	targets []*listener[T]
	// done is closed once the event has been delivered; set on the last
	// event of a batch whose pusher waits for it.
	done chan struct{}
}

// Stream is a typed multicast event source. Values pushed into it are
// delivered synchronously to every listener registered when the push call
// begins. Listeners registered on one stream are never
// invoked concurrently with each other.
//
// The zero value is not usable; create streams with New, NewCold or one of
// the composition functions.
type Stream[T any] struct {
	name string
	sink ErrorSink

	mu sync.Mutex
	// listeners is copy-on-write: each pending event holds the slice
	// current when its push began while registrations install a fresh one.
	listeners   []*listener[T]
	pending     []event[T]
	dispatching bool
	// owner is the goroutine running the dispatch loop, recorded before it
	// first calls a listener. Zero while no listener has been called.
	owner     uint64
	closed    bool
	finalized bool
	done      chan struct{}

	// cold activation state, see reconcile
	start       func(Emitter[T]) (stop func())
	stop        func()
	active      bool
	reconciling bool
	dirty       bool
}

// New creates a hot stream with no upstream.
func New[T any](opts ...Option) *Stream[T] {
	o := applyOptions(opts)
	return &Stream[T]{
		name: o.name,
		sink: o.sink,
		done: make(chan struct{}),
	}
}

// NewCold creates a stream that runs start when it gains its first
// listener or iteration session and calls the returned stop function when
// the last one goes away. start may push synchronously.
func NewCold[T any](start func(emit Emitter[T]) (stop func()), opts ...Option) *Stream[T] {
	s := New[T](opts...)
	s.start = start
	return s
}

// Name returns the stream's name as used in logs and errors.
func (s *Stream[T]) Name() string { return s.name }

// Push delivers each value, in argument order, to the listeners registered
// when the call begins, and returns once they have run. A push issued from
// inside a listener of the same stream is queued behind the dispatch in
// progress and delivered after it, preserving order; it returns without
// waiting. A listener must therefore not block on another goroutine
// pushing to the same stream. Returns ErrClosed-matching errors once the
// stream is closed.
func (s *Stream[T]) Push(values ...T) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Closed("stream " + s.name)
	}
	if len(values) == 0 {
		s.mu.Unlock()
		return nil
	}
	evs := make([]event[T], len(values))
	for i, v := range values {
		evs[i] = event[T]{val: v, targets: s.listeners}
	}
	s.enqueue(evs)
	return nil
}

// Fail delivers err to OnError listeners and open iteration sessions,
// ordered with respect to values pushed around it.
func (s *Stream[T]) Fail(err error) error {
	if err == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.Closed("stream " + s.name)
	}
	s.enqueue([]event[T]{{err: err, targets: s.listeners}})
	return nil
}

// enqueue appends evs and makes sure they are delivered. Without a running
// dispatch the caller runs the loop itself. A reentrant call from the
// dispatching goroutine leaves evs for the loop; any other caller waits
// until the loop has delivered them. Must be called with s.mu held;
// returns with it released.
func (s *Stream[T]) enqueue(evs []event[T]) {
	if !s.dispatching {
		s.pending = append(s.pending, evs...)
		s.drain()
		return
	}
	if s.owner != 0 && s.owner == goroutineID() {
		s.pending = append(s.pending, evs...)
		s.mu.Unlock()
		return
	}
	done := make(chan struct{})
	evs[len(evs)-1].done = done
	s.pending = append(s.pending, evs...)
	s.mu.Unlock()
	<-done
}

// drain runs the dispatch loop until no events are pending. Must be
// called with s.mu held and s.dispatching false; returns with it released.
func (s *Stream[T]) drain() {
	s.dispatching = true
	for len(s.pending) > 0 {
		ev := s.pending[0]
		s.pending[0] = event[T]{}
		s.pending = s.pending[1:]
		if s.owner == 0 && len(ev.targets) > 0 {
			s.owner = goroutineID()
		}
		s.mu.Unlock()
		for _, l := range ev.targets {
			s.deliver(l, ev)
		}
		if ev.done != nil {
			close(ev.done)
		}
		s.mu.Lock()
	}
	s.pending = nil
	s.dispatching = false
	s.owner = 0
	finalize := s.closed && !s.finalized
	s.mu.Unlock()
	if finalize {
		s.finalize()
	}
}

func (s *Stream[T]) deliver(l *listener[T], ev event[T]) {
	defer func() {
		if r := recover(); r != nil {
			s.report(errors.ListenerFailed(s.name, r))
		}
	}()
	if ev.err != nil {
		if l.onError != nil {
			l.onError(ev.err)
		}
		return
	}
	if l.onValue != nil {
		l.onValue(ev.val)
	}
}

func (s *Stream[T]) report(err error) {
	sink := s.sink
	if sink == nil {
		sink = DefaultErrorSink()
	}
	sink.ReportError(s.name, err)
}

// Close permanently closes the stream. Further pushes fail immediately;
// values already accepted are still delivered, then every listener and
// session is released and Done is closed. Close is idempotent.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.dispatching {
		// the running dispatch loop finalizes once it has drained
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.finalize()
}

func (s *Stream[T]) finalize() {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	released := s.listeners
	s.listeners = nil
	close(s.done)
	s.mu.Unlock()

	for _, l := range released {
		if l.onClose != nil {
			s.notifyClose(l)
		}
	}
	s.reconcile()
}

func (s *Stream[T]) notifyClose(l *listener[T]) {
	defer func() {
		if r := recover(); r != nil {
			s.report(errors.ListenerFailed(s.name, r))
		}
	}()
	l.onClose()
}

// Closed reports whether Close has been called.
func (s *Stream[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Done returns a channel closed once the stream has released its listeners
// after Close.
func (s *Stream[T]) Done() <-chan struct{} {
	return s.done
}

// reconcile starts or stops the cold activation so that it is running
// exactly while the stream has consumers. Calls made while a
// reconciliation is in progress (including reentrant ones from start or
// stop) mark it dirty and return; the running loop picks the change up.
func (s *Stream[T]) reconcile() {
	if s.start == nil {
		return
	}
	s.mu.Lock()
	if s.reconciling {
		s.dirty = true
		s.mu.Unlock()
		return
	}
	s.reconciling = true
	for {
		s.dirty = false
		want := len(s.listeners) > 0 && !s.closed
		switch {
		case want && !s.active:
			s.active = true
			s.mu.Unlock()
			stop := s.start(s)
			s.mu.Lock()
			s.stop = stop
		case !want && s.active:
			stop := s.stop
			s.stop = nil
			s.active = false
			s.mu.Unlock()
			if stop != nil {
				stop()
			}
			s.mu.Lock()
		}
		if !s.dirty {
			break
		}
	}
	s.reconciling = false
	s.mu.Unlock()
}
