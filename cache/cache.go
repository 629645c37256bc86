// Package cache is the process-wide key/value store test workers use to pass
// data between steps and across test files.
package cache

import "sync"

// Store is a thread-safe associative store. One store-wide lock serializes
// every operation: contention is bounded by the test-worker count, so
// correctness is preferred over fine-grained throughput.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// New creates an empty Store. Most callers want Shared instead; New exists
// so a composition root can inject the instance explicitly.
func New() *Store {
	return &Store{data: make(map[string]any)}
}

var (
	sharedMu sync.Mutex
	shared   *Store
)

// Shared returns the one process-wide instance, creating it on first call.
// Concurrent first calls observe the same instance.
func Shared() *Store {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		shared = New()
	}
	return shared
}

// ResetShared discards the process-wide instance so the next Shared call
// creates a fresh one. Intended for isolation between independent test runs.
func ResetShared() {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		shared.Clear()
	}
	shared = nil
}

// Set inserts or overwrites a key. Last writer wins; values may be any shape.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get returns the value for a key. The second result distinguishes an absent
// key from a stored zero value; a missing key is routine, never an error.
func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return value, ok
}

// Has reports whether a key is present.
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Delete removes a key, reporting whether it existed.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[key]
	delete(s.data, key)
	return ok
}

// Clear empties the store. Meant for the boundary between independent test
// runs; clearing mid-run is the caller's responsibility.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]any)
}

// Keys returns all present keys in unspecified order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Snapshot returns a point-in-time copy of the store for inspection. The
// copy is independent: later writes to the store do not show through, and
// the caller holds no lock while examining it.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
