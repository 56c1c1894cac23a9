// Package challenge stores pending authentication challenges. A challenge is
// strictly single-use: Consume removes it whether or not verification later
// succeeds, so a captured signature cannot be replayed against a fresh nonce.
package challenge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"medguard/internal/identity/models"
	"medguard/pkg/platform/sentinel"
)

// InMemoryChallengeStore keeps pending challenges in memory. Issuing a new
// challenge for an address replaces any pending one.
type InMemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]models.Challenge
}

func New() *InMemoryChallengeStore {
	return &InMemoryChallengeStore{challenges: make(map[string]models.Challenge)}
}

func (s *InMemoryChallengeStore) Save(_ context.Context, ch models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[strings.ToLower(ch.Address)] = ch
	return nil
}

// Consume removes and returns the pending challenge for an address. Expired
// challenges are removed and reported via sentinel.ErrExpired; the caller
// never sees a stale nonce.
func (s *InMemoryChallengeStore) Consume(_ context.Context, address string, now time.Time, ttl time.Duration) (models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(address)
	ch, ok := s.challenges[key]
	if !ok {
		return models.Challenge{}, fmt.Errorf("challenge for %s: %w", address, sentinel.ErrNotFound)
	}
	delete(s.challenges, key)

	if ch.ExpiredAt(now, ttl) {
		return models.Challenge{}, fmt.Errorf("challenge for %s: %w", address, sentinel.ErrExpired)
	}
	return ch, nil
}

// DeleteExpired removes all challenges past their TTL as of the given time.
// The time parameter is injected for testability (no hidden time.Now() calls).
func (s *InMemoryChallengeStore) DeleteExpired(_ context.Context, now time.Time, ttl time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, ch := range s.challenges {
		if ch.ExpiredAt(now, ttl) {
			delete(s.challenges, key)
			deleted++
		}
	}
	return deleted, nil
}
