package role

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"medguard/internal/identity/models"
	"medguard/pkg/platform/sentinel"
)

// FileRoleStore persists assignments as a single JSON document. The full
// table is loaded at construction and rewritten on every assignment; the
// mutex keeps the read-modify-write atomic within this process.
type FileRoleStore struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	roles map[string]models.Role
}

func NewFile(path string, logger *slog.Logger) (*FileRoleStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create role store directory: %w", err)
	}

	s := &FileRoleStore{path: path, logger: logger, roles: make(map[string]models.Role)}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read role assignments: %w", err)
	}
	if err := json.Unmarshal(raw, &s.roles); err != nil {
		// A corrupted table must not take the service down; start empty and
		// let operators re-provision.
		logger.Error("role assignment file corrupted, starting empty",
			slog.String("path", path), slog.String("error", err.Error()))
		s.roles = make(map[string]models.Role)
	}
	return s, nil
}

func (s *FileRoleStore) Assign(_ context.Context, address string, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roles[strings.ToLower(address)] = role

	payload, err := json.MarshalIndent(s.roles, "", "  ")
	if err != nil {
		return fmt.Errorf("encode role assignments: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write role assignments: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("commit role assignments: %w", err)
	}
	return nil
}

func (s *FileRoleStore) RoleOf(_ context.Context, address string) (models.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role, ok := s.roles[strings.ToLower(address)]; ok {
		return role, nil
	}
	return "", fmt.Errorf("role for %s: %w", address, sentinel.ErrNotFound)
}
