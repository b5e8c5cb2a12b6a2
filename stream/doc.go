// Package stream provides typed multicast event streams.
//
// A Stream delivers each pushed value synchronously to the listeners that
// were registered when the push call began, and Push returns once they have
// run, also when another goroutine is dispatching at the time. A push
// issued from inside a listener is queued and delivered after the current
// dispatch, so every listener observes values in push order. Listener panics are recovered and
// reported to the stream's ErrorSink instead of reaching the pusher.
//
// # Hot and cold
//
// New creates a hot stream: values pushed with no listeners are lost.
// NewCold and every composition function create cold streams that only
// subscribe upstream while they have at least one consumer, and release the
// upstream subscription when the last one leaves.
//
// # Pull access
//
// Iter opens a session that buffers values until they are pulled with
// Next, bridging push delivery to sequential consumption:
//
//	it := s.Iter()
//	defer it.Close()
//	for {
//	    v, ok, err := it.Next(ctx)
//	    ...
//	}
//
// All exposes the same thing as a range-over-func sequence.
//
// # Composition
//
//   - Filter / FilterState: synchronous filtering, optionally stateful
//   - FilterFunc: context-aware filtering that keeps arrival order
//   - Map: synchronous mapping
//   - Merge: interleave several streams
//   - Generate: derive a stream from an upstream iterator and emitter
//   - FromChannel / FromIterator / FromSlice / FromFunc: sources
//
// Concurrent mapping strategies live in package transform; retaining
// transformers live in package buffer.
package stream
