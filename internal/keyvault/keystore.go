package keyvault

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"

	"medguard/pkg/platform/sentinel"
)

// KeyStore persists per-principal key material. Implementations must treat
// addresses case-insensitively; the vault normalizes before calling.
type KeyStore interface {
	SaveKeypair(ctx context.Context, address string, key *rsa.PrivateKey) error
	LoadKeypair(ctx context.Context, address string) (*rsa.PrivateKey, error)
	SaveSymmetricKey(ctx context.Context, address string, key []byte) error
	LoadSymmetricKey(ctx context.Context, address string) ([]byte, error)
}

// InMemoryKeyStore keeps key material in process memory for tests/dev.
type InMemoryKeyStore struct {
	mu        sync.RWMutex
	keypairs  map[string]*rsa.PrivateKey
	symmetric map[string][]byte
}

func NewInMemoryKeyStore() *InMemoryKeyStore {
	return &InMemoryKeyStore{
		keypairs:  make(map[string]*rsa.PrivateKey),
		symmetric: make(map[string][]byte),
	}
}

func (s *InMemoryKeyStore) SaveKeypair(_ context.Context, address string, key *rsa.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keypairs[strings.ToLower(address)] = key
	return nil
}

func (s *InMemoryKeyStore) LoadKeypair(_ context.Context, address string) (*rsa.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keypairs[strings.ToLower(address)]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("keypair for %s: %w", address, sentinel.ErrNotFound)
}

func (s *InMemoryKeyStore) SaveSymmetricKey(_ context.Context, address string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(key))
	copy(cp, key)
	s.symmetric[strings.ToLower(address)] = cp
	return nil
}

func (s *InMemoryKeyStore) LoadSymmetricKey(_ context.Context, address string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.symmetric[strings.ToLower(address)]; ok {
		cp := make([]byte, len(key))
		copy(cp, key)
		return cp, nil
	}
	return nil, fmt.Errorf("symmetric key for %s: %w", address, sentinel.ErrNotFound)
}
