// File: selector/keyset.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// KeySet is the selected-key set handed to applications: they may remove
// keys from it between rounds, but only the selector ever inserts.

package selector

import "sync"

// KeySet is a concurrency-safe set of selection keys.
type KeySet struct {
	mu sync.Mutex
	m  map[*SelectionKey]struct{}
}

func newKeySet() *KeySet {
	return &KeySet{m: make(map[*SelectionKey]struct{})}
}

// Len returns the current number of keys.
func (s *KeySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Contains reports membership.
func (s *KeySet) Contains(k *SelectionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	return ok
}

// Remove takes k out of the set, reporting whether it was present.
func (s *KeySet) Remove(k *SelectionKey) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[k]
	delete(s.m, k)
	return ok
}

// Clear empties the set. The usual call site is the top of an application's
// dispatch loop, after the previous round's keys have been handled.
func (s *KeySet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}

// Keys returns a snapshot of the members.
func (s *KeySet) Keys() []*SelectionKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*SelectionKey, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	return out
}

func (s *KeySet) add(k *SelectionKey) {
	s.mu.Lock()
	s.m[k] = struct{}{}
	s.mu.Unlock()
}
