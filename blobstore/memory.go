package blobstore

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation for testing.
// It records a per-artifact fetch count so tests can assert coalescing
// and prefetch behavior. Thread-safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string][]byte
	fetches map[string]int
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string][]byte),
		fetches: make(map[string]int),
	}
}

// Put stores an artifact, copying the data.
func (m *MemoryStore) Put(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(data))
	copy(copied, data)
	m.blobs[name] = copied
}

// Fetch retrieves an artifact. Every call counts as one fetch, even
// for missing names.
func (m *MemoryStore) Fetch(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.fetches[name]++
	data, ok := m.blobs[name]
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external mutation.
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// Fetches returns how many times the named artifact has been fetched.
func (m *MemoryStore) Fetches(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches[name]
}

// TotalFetches returns the total number of Fetch calls.
func (m *MemoryStore) TotalFetches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, n := range m.fetches {
		total += n
	}
	return total
}
