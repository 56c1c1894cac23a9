package store

import (
	"context"
	"sync"

	"medguard/internal/groupsig"
	"medguard/internal/opening/models"
	"medguard/pkg/platform/sentinel"
)

// InMemoryStore holds opening requests in process memory. Update runs
// the mutation under the store lock so partial submission and the
// combine transition are atomic.
type InMemoryStore struct {
	mu       sync.Mutex
	requests map[string]*models.Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[string]*models.Request)}
}

func (s *InMemoryStore) Save(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = req
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id string) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return models.Request{}, sentinel.ErrNotFound
	}
	return *cloneRequest(req), nil
}

// Update applies fn to the stored request under the lock. fn returning
// an error leaves the request untouched.
func (s *InMemoryStore) Update(_ context.Context, id string, fn func(*models.Request) error) (models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return models.Request{}, sentinel.ErrNotFound
	}

	working := cloneRequest(req)
	if err := fn(working); err != nil {
		return models.Request{}, err
	}
	s.requests[id] = working
	return *working, nil
}

func cloneRequest(req *models.Request) *models.Request {
	clone := *req
	clone.Shares = make(map[groupsig.Opener][]byte, len(req.Shares))
	for opener, share := range req.Shares {
		clone.Shares[opener] = share
	}
	return &clone
}
