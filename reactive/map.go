package reactive

import (
	"maps"
	"slices"
	"sync"

	"github.com/kbukum/streamkit/stream"
)

// Op names the kind of mutation a change describes.
type Op string

const (
	OpInsert Op = "insert"
	OpSet    Op = "set"
	OpDelete Op = "delete"
)

// Change describes one mutation of a Map. Old is the previous value when
// Existed is true.
type Change[K comparable, V any] struct {
	Op      Op
	Key     K
	Value   V
	Old     V
	Existed bool
}

// Map is a keyed container that emits a Change for every mutation that
// alters it. Keys iterate in insertion order.
type Map[K comparable, V any] struct {
	mu    sync.RWMutex
	data  map[K]V
	order []K
	equal func(a, b V) bool

	exec    executor
	changes *stream.Stream[Change[K, V]]
}

// NewMap creates an empty map comparing values with ==.
func NewMap[K comparable, V comparable]() *Map[K, V] {
	return NewMapFunc[K](func(a, b V) bool { return a == b })
}

// NewMapFunc creates an empty map comparing values with equal.
func NewMapFunc[K comparable, V any](equal func(a, b V) bool) *Map[K, V] {
	return &Map[K, V]{
		data:    make(map[K]V),
		equal:   equal,
		exec:    newExecutor("map"),
		changes: stream.New[Change[K, V]](stream.WithName("map")),
	}
}

// Set stores v under k. Setting a key to the value it already holds emits
// nothing.
func (m *Map[K, V]) Set(k K, v V) error {
	return m.exec.do(func() {
		m.mu.Lock()
		old, existed := m.data[k]
		if existed && m.equal(old, v) {
			m.mu.Unlock()
			return
		}
		m.data[k] = v
		op := OpSet
		if !existed {
			m.order = append(m.order, k)
			op = OpInsert
		}
		m.mu.Unlock()
		_ = m.changes.Push(Change[K, V]{Op: op, Key: k, Value: v, Old: old, Existed: existed})
	})
}

// Delete removes k. Deleting a missing key emits nothing.
func (m *Map[K, V]) Delete(k K) error {
	return m.exec.do(func() { m.delete(k) })
}

func (m *Map[K, V]) delete(k K) {
	m.mu.Lock()
	old, existed := m.data[k]
	if !existed {
		m.mu.Unlock()
		return
	}
	delete(m.data, k)
	if i := slices.Index(m.order, k); i >= 0 {
		m.order = slices.Delete(m.order, i, i+1)
	}
	m.mu.Unlock()
	_ = m.changes.Push(Change[K, V]{Op: OpDelete, Key: k, Old: old, Existed: true})
}

// Clear deletes every key, emitting one OpDelete change per key.
func (m *Map[K, V]) Clear() error {
	return m.exec.do(func() {
		for _, k := range m.Keys() {
			m.delete(k)
		}
	})
}

// Get returns the value stored under k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[k]
	return v, ok
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Keys returns the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Snapshot returns a copy of the contents.
func (m *Map[K, V]) Snapshot() map[K]V {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.data)
}

// Stream returns the stream of changes.
func (m *Map[K, V]) Stream() *stream.Stream[Change[K, V]] { return m.changes }

// Close closes Stream. Further mutations fail with ErrClosed.
func (m *Map[K, V]) Close() {
	m.exec.close()
	m.changes.Close()
}
