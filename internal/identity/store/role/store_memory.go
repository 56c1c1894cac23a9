// Package role persists the durable address-to-role assignment table.
package role

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"medguard/internal/identity/models"
	"medguard/pkg/platform/sentinel"
)

// InMemoryRoleStore keeps assignments in memory for tests/dev.
type InMemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]models.Role
}

func New() *InMemoryRoleStore {
	return &InMemoryRoleStore{roles: make(map[string]models.Role)}
}

func (s *InMemoryRoleStore) Assign(_ context.Context, address string, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[strings.ToLower(address)] = role
	return nil
}

func (s *InMemoryRoleStore) RoleOf(_ context.Context, address string) (models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if role, ok := s.roles[strings.ToLower(address)]; ok {
		return role, nil
	}
	return "", fmt.Errorf("role for %s: %w", address, sentinel.ErrNotFound)
}
