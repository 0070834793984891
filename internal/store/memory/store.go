package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/CynnixSinn/CyneticsIDE/internal/store"
)

// Store is an in-memory store.Store, the default backend for local
// development and tests.
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

func (s *Store) Get(ctx context.Context, key string) (store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.docs[key]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return store.Document{Key: key, Value: append([]byte(nil), v...)}, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[key] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.docs, key)
	return nil
}

func (s *Store) QueryByPrefix(ctx context.Context, prefix string) ([]store.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var res []store.Document
	for k, v := range s.docs {
		if strings.HasPrefix(k, prefix) {
			res = append(res, store.Document{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	return res, nil
}
