package contentstore

import (
	"context"
	"sync"

	"medguard/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, data []byte) (string, error) {
	cid := CIDFor(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[cid]; !exists {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.blobs[cid] = stored
	}
	return cid, nil
}

func (s *InMemoryStore) Get(_ context.Context, cid string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[cid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *InMemoryStore) Has(_ context.Context, cid string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[cid]
	return ok, nil
}
