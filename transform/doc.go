// Package transform provides stream transformers that schedule work:
// the concurrency-strategy mapper and time-based gates and windows.
//
// # Mapper
//
// Map applies a context-aware, fallible function to every value of a
// stream using one of three strategies:
//
//   - Sequential: one value at a time, arrival order
//   - ConcurrentUnordered: all values in flight, completion order
//   - ConcurrentOrdered: all values in flight, arrival order
//
// WithConcurrency bounds the number of values in flight for the concurrent
// strategies.
//
//	replies, err := transform.Map(requests, handle,
//	    transform.WithStrategy(transform.ConcurrentOrdered),
//	    transform.WithConcurrency(8),
//	)
//
// # Gates and windows
//
//   - Batch: group by size and/or timeout
//   - TumblingWindow / SlidingWindow: group by time
//   - Throttle: drop values faster than an interval
//   - RateLimit: delay values to a token-bucket rate
//   - Debounce: emit the latest value after a quiet period
//   - Tap: side effect per value
package transform
