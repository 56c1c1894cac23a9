package store

import (
	"context"
	"strings"
	"sync"

	"medguard/internal/pseudonym/models"
	"medguard/pkg/platform/sentinel"
)

// InMemoryStore keeps the bidirectional pseudonym index in process memory.
type InMemoryStore struct {
	mu        sync.RWMutex
	byPseudo  map[string]models.Mapping
	byAddress map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byPseudo:  make(map[string]models.Mapping),
		byAddress: make(map[string][]string),
	}
}

func (s *InMemoryStore) Save(_ context.Context, m models.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pseudo := strings.ToLower(m.Pseudonym)
	addr := strings.ToLower(m.Address)
	if _, exists := s.byPseudo[pseudo]; exists {
		return sentinel.ErrConflict
	}
	s.byPseudo[pseudo] = m
	s.byAddress[addr] = append(s.byAddress[addr], m.Pseudonym)
	return nil
}

func (s *InMemoryStore) FindByPseudonym(_ context.Context, pseudonym string) (models.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byPseudo[strings.ToLower(pseudonym)]
	if !ok {
		return models.Mapping{}, sentinel.ErrNotFound
	}
	return m, nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, address string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pseudos := s.byAddress[strings.ToLower(address)]
	out := make([]string, len(pseudos))
	copy(out, pseudos)
	return out, nil
}
