package utils

// OMap is an insertion-ordered map. The engine keys command lists and the
// participant table with it: membership tests are O(1) and enumeration
// follows insertion order, which is what makes a new participant's initial
// construction batch come out in registration order.
//
// Deleting keeps the relative order of the remaining entries but shifts
// their indexes; callers enumerating by index while deleting must tolerate
// the shift.
type OMap[K comparable, V any] struct {
	idx  map[K]int
	keys []K
	vals []V
}

func NewOMap[K comparable, V any]() *OMap[K, V] {
	return &OMap[K, V]{idx: make(map[K]int)}
}

func (m *OMap[K, V]) Len() int { return len(m.keys) }

func (m *OMap[K, V]) Has(key K) bool {
	_, ok := m.idx[key]
	return ok
}

func (m *OMap[K, V]) Get(key K) (v V, ok bool) {
	i, ok := m.idx[key]
	if !ok {
		return
	}
	return m.vals[i], true
}

// Set inserts or replaces. Insertion appends at the end; replacement keeps
// the original position.
func (m *OMap[K, V]) Set(key K, val V) {
	if i, ok := m.idx[key]; ok {
		m.vals[i] = val
		return
	}
	m.idx[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.vals = append(m.vals, val)
}

func (m *OMap[K, V]) Delete(key K) bool {
	i, ok := m.idx[key]
	if !ok {
		return false
	}
	copy(m.keys[i:], m.keys[i+1:])
	copy(m.vals[i:], m.vals[i+1:])
	m.keys = m.keys[:len(m.keys)-1]
	var zero V
	m.vals[len(m.vals)-1] = zero
	m.vals = m.vals[:len(m.vals)-1]
	delete(m.idx, key)
	for j := i; j < len(m.keys); j++ {
		m.idx[m.keys[j]] = j
	}
	return true
}

func (m *OMap[K, V]) At(i int) (key K, val V, ok bool) {
	if i < 0 || i >= len(m.keys) {
		return
	}
	return m.keys[i], m.vals[i], true
}

// Keys returns a copy of the key list, safe to iterate while mutating.
func (m *OMap[K, V]) Keys() []K {
	keys := make([]K, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Range calls f in insertion order until it returns false. The map must
// not be mutated from inside f; use Keys for that.
func (m *OMap[K, V]) Range(f func(key K, val V) bool) {
	for i := range m.keys {
		if !f(m.keys[i], m.vals[i]) {
			return
		}
	}
}
