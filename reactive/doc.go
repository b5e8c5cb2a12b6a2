// Package reactive provides observable containers built on package stream.
//
// Each container separates its imperative side (Set, Delete, Append, ...)
// from its event side, which is an ordinary stream returned by Stream().
// Mutations are applied one at a time in submission order, including
// mutations made from inside a change listener, and a mutation that leaves
// the state unchanged emits nothing.
//
//	temp := reactive.NewCell(20.5)
//	temp.Stream().Listen(func(v float64) { log.Printf("now %.1f", v) })
//	temp.Set(21.0) // emits
//	temp.Set(21.0) // no-op
package reactive
