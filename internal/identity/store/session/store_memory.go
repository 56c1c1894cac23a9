// Package session stores authenticated sessions keyed by wallet address.
// Saving a session replaces any existing one, which keeps the one-session-
// per-address invariant without a separate check.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"medguard/internal/identity/models"
	"medguard/pkg/platform/sentinel"
)

// InMemorySessionStore is the default single-instance implementation. Use
// RedisSessionStore when multiple instances must share session state.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func New() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]models.Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[strings.ToLower(session.Address)] = session
	return nil
}

func (s *InMemorySessionStore) Find(_ context.Context, address string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[strings.ToLower(address)]; ok {
		return session, nil
	}
	return models.Session{}, fmt.Errorf("session for %s: %w", address, sentinel.ErrNotFound)
}

// Delete removes the session for an address; deleting a missing session is
// not an error (logout is idempotent).
func (s *InMemorySessionStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, strings.ToLower(address))
	return nil
}
