package store

import (
	"context"
	"strings"
	"sync"

	"medguard/internal/registry/models"
	"medguard/pkg/platform/sentinel"
)

// InMemoryStore keeps the registry in process memory. Registration is
// idempotent: a CID that already exists keeps its original entry and
// index references untouched.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]models.Entry
	byPat   map[string][]string
	byDoc   map[string][]string
	byOwner map[string][]string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]models.Entry),
		byPat:   make(map[string][]string),
		byDoc:   make(map[string][]string),
		byOwner: make(map[string][]string),
	}
}

func (s *InMemoryStore) Register(_ context.Context, e models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[e.CID]; exists {
		return nil
	}
	s.entries[e.CID] = e
	if e.PatientID != "" {
		key := strings.ToLower(e.PatientID)
		s.byPat[key] = appendUnique(s.byPat[key], e.CID)
	}
	if e.DoctorID != "" {
		key := strings.ToLower(e.DoctorID)
		s.byDoc[key] = appendUnique(s.byDoc[key], e.CID)
	}
	if e.Owner != "" {
		key := strings.ToLower(e.Owner)
		s.byOwner[key] = appendUnique(s.byOwner[key], e.CID)
	}
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, cid string) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[cid]
	if !ok {
		return models.Entry{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (s *InMemoryStore) ListByPatient(_ context.Context, address string) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byPat[strings.ToLower(address)]), nil
}

func (s *InMemoryStore) ListByDoctor(_ context.Context, address string) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byDoc[strings.ToLower(address)]), nil
}

func (s *InMemoryStore) ListByOwner(_ context.Context, address string) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.byOwner[strings.ToLower(address)]), nil
}

// Remove deletes the entry and every index reference to it.
func (s *InMemoryStore) Remove(_ context.Context, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[cid]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.entries, cid)
	if e.PatientID != "" {
		key := strings.ToLower(e.PatientID)
		s.byPat[key] = removeOne(s.byPat[key], cid)
	}
	if e.DoctorID != "" {
		key := strings.ToLower(e.DoctorID)
		s.byDoc[key] = removeOne(s.byDoc[key], cid)
	}
	if e.Owner != "" {
		key := strings.ToLower(e.Owner)
		s.byOwner[key] = removeOne(s.byOwner[key], cid)
	}
	return nil
}

func (s *InMemoryStore) collect(cids []string) []models.Entry {
	out := make([]models.Entry, 0, len(cids))
	for _, cid := range cids {
		if e, ok := s.entries[cid]; ok {
			out = append(out, e)
		}
	}
	return out
}

func appendUnique(list []string, cid string) []string {
	for _, existing := range list {
		if existing == cid {
			return list
		}
	}
	return append(list, cid)
}

func removeOne(list []string, cid string) []string {
	for i, existing := range list {
		if existing == cid {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
