// Package buffer provides hot, bounded retention for streams.
//
// A Buffer is a bounded ordered store with a drop policy (evict the oldest
// value or reject the newest one) and an optional TTL checked on access.
// Cache and Queue wrap a Buffer around a stream:
//
//   - Cache keeps the most recent values for inspection and replays them to
//     new iteration sessions before live values.
//   - Queue hands each value to exactly one consumer; concurrent pullers
//     compete for values.
//
// Both subscribe to their source when constructed, so a producer can run
// ahead of its consumers:
//
//	q, err := buffer.NewQueue(jobs, buffer.Options{Capacity: 128, DropPolicy: buffer.DropNewest})
//	if err != nil { ... }
//	job, err := q.Pull(ctx)
package buffer
