// Package memory provides the in-memory state store implementation, used
// in tests and single-node deployments
package memory

import (
	"context"
	"sync"

	"github.com/tablewise/insights/internal/ports/outbound"
)

// StateStore implements outbound.StateStore over a mutex-guarded map.
// Every Save replaces the whole value; the last writer wins.
type StateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStateStore creates an empty in-memory state store
func NewStateStore() *StateStore {
	return &StateStore{data: make(map[string][]byte)}
}

// Load retrieves a value
func (s *StateStore) Load(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, outbound.ErrKeyNotFound{Key: key}
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Save stores a value wholesale
func (s *StateStore) Save(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

// Delete removes a key; deleting a missing key is a no-op
func (s *StateStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}
