// Package store holds fetched secrets in a hierarchical map shared by
// independent renewal loops.
package store

import (
	"sync"

	"github.com/mohae/deepcopy"
)

// Store is a concurrency-safe tree of nested maps. Writes merge into the
// existing tree; reads hand out deep copies so callers never share state
// with the store.
type Store struct {
	mu   sync.RWMutex
	data map[string]interface{}
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]interface{})}
}

// Merge writes value at addr. Maps merge key by key into whatever is
// already there; any other value replaces it. Merging a map at the root
// merges it into the top level; a non-map value at the root is ignored.
func (s *Store) Merge(addr Address, value interface{}) {
	value = deepcopy.Copy(value)

	s.mu.Lock()
	defer s.mu.Unlock()

	if addr.IsRoot() {
		if m, ok := value.(map[string]interface{}); ok {
			mergeMaps(s.data, m)
		}
		return
	}

	node := s.data
	for _, seg := range addr[:len(addr)-1] {
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			node[seg] = child
		}
		node = child
	}

	last := addr[len(addr)-1]
	node[last] = mergeValue(node[last], value)
}

// Get returns a deep copy of the value at addr.
func (s *Store) Get(addr Address) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if addr.IsRoot() {
		return deepcopy.Copy(s.data), true
	}

	v, ok := lookup(s.data, addr)
	if !ok {
		return nil, false
	}
	return deepcopy.Copy(v), true
}

// Snapshot returns a deep copy of the whole store.
func (s *Store) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return deepcopy.Copy(s.data).(map[string]interface{})
}

// Len returns the number of top-level keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Reset removes every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]interface{})
}

// MergeInto writes value at addr into dst with the same semantics as
// Store.Merge. It is used to assemble views outside a Store.
func MergeInto(dst map[string]interface{}, addr Address, value interface{}) {
	tmp := &Store{data: dst}
	tmp.Merge(addr, value)
}

func lookup(node map[string]interface{}, addr Address) (interface{}, bool) {
	var cur interface{} = node
	for _, seg := range addr {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func mergeValue(existing, incoming interface{}) interface{} {
	dst, dstOK := existing.(map[string]interface{})
	src, srcOK := incoming.(map[string]interface{})
	if !dstOK || !srcOK {
		return incoming
	}
	mergeMaps(dst, src)
	return dst
}

func mergeMaps(dst, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = mergeValue(dst[k], v)
	}
}
