package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"lectura/domain/repositories"
)

// ObjectStore is an in-memory implementation of repositories.ObjectStore.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ repositories.ObjectStore = (*ObjectStore)(nil)

// NewObjectStore creates an empty in-memory object store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{objects: make(map[string][]byte)}
}

// Put stores the object, overwriting any existing one at the key.
func (s *ObjectStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]byte, len(data))
	copy(copied, data)
	s.objects[key] = copied
	return nil
}

// List returns the keys under the prefix in lexicographic order.
func (s *ObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Get returns the object bytes.
func (s *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

// DeletePrefix removes every object under the prefix.
func (s *ObjectStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

// Len reports the number of stored objects.
func (s *ObjectStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
