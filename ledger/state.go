package ledger

// Map is a journaled key/value container. Reads are free; writes require a
// Tx so they can be rolled back with the operation that made them.
//
// Stored values must be treated as immutable: replace a value with Set
// instead of mutating it in place, otherwise a revert cannot restore it.
type Map[K comparable, V any] struct {
	entries map[K]V
}

// NewMap returns an empty journaled map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]V)}
}

// Get returns the value stored under k.
func (m *Map[K, V]) Get(k K) (V, bool) {
	v, ok := m.entries[k]
	return v, ok
}

// Has reports whether k is present.
func (m *Map[K, V]) Has(k K) bool {
	_, ok := m.entries[k]
	return ok
}

// Set stores v under k and journals the previous state.
func (m *Map[K, V]) Set(tx *Tx, k K, v V) {
	prev, existed := m.entries[k]
	tx.OnRevert(func() {
		if existed {
			m.entries[k] = prev
		} else {
			delete(m.entries, k)
		}
	})
	m.entries[k] = v
}

// Delete removes k. Deleting a missing key is a no-op.
func (m *Map[K, V]) Delete(tx *Tx, k K) {
	prev, existed := m.entries[k]
	if !existed {
		return
	}
	tx.OnRevert(func() { m.entries[k] = prev })
	delete(m.entries, k)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

// Range calls fn for every entry until fn returns false. Order is unspecified.
func (m *Map[K, V]) Range(fn func(K, V) bool) {
	for k, v := range m.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Keys returns the keys in unspecified order.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Value is a journaled single-value cell.
type Value[T any] struct {
	v T
}

// NewValue returns a cell holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial}
}

func (c *Value[T]) Get() T {
	return c.v
}

// Set replaces the cell content and journals the previous value.
func (c *Value[T]) Set(tx *Tx, v T) {
	prev := c.v
	tx.OnRevert(func() { c.v = prev })
	c.v = v
}
