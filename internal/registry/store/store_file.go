package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"medguard/internal/registry/models"
	"medguard/pkg/platform/sentinel"
)

// registryDocument is the on-disk shape of the registry. The whole
// document is rewritten on every mutation; reads serve from the loaded
// copy.
type registryDocument struct {
	CIDs        map[string]models.Entry `json:"cids"`
	PatientCIDs map[string][]string     `json:"patient_cids"`
	DoctorCIDs  map[string][]string     `json:"doctor_cids"`
	Metadata    documentMetadata        `json:"metadata"`
}

type documentMetadata struct {
	LastUpdated string `json:"last_updated"`
}

func emptyDocument() registryDocument {
	return registryDocument{
		CIDs:        make(map[string]models.Entry),
		PatientCIDs: make(map[string][]string),
		DoctorCIDs:  make(map[string][]string),
	}
}

// FileStore persists the registry as a single JSON document.
type FileStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu  sync.RWMutex
	doc registryDocument
}

func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}

	s := &FileStore{path: path, logger: logger, now: time.Now}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.doc = emptyDocument()
			return nil
		}
		return fmt.Errorf("reading registry document: %w", err)
	}

	var doc registryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupted registry must not take the service down.
		s.logger.Error("registry document corrupted, starting empty",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		s.doc = emptyDocument()
		return nil
	}
	if doc.CIDs == nil {
		doc.CIDs = make(map[string]models.Entry)
	}
	if doc.PatientCIDs == nil {
		doc.PatientCIDs = make(map[string][]string)
	}
	if doc.DoctorCIDs == nil {
		doc.DoctorCIDs = make(map[string][]string)
	}
	s.doc = doc
	return nil
}

func (s *FileStore) flush() error {
	s.doc.Metadata.LastUpdated = s.now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding registry document: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "registry-*.json")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing registry document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing registry document: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing registry document: %w", err)
	}
	return nil
}

func (s *FileStore) Register(_ context.Context, e models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.doc.CIDs[e.CID]; exists {
		return nil
	}
	s.doc.CIDs[e.CID] = e
	if e.PatientID != "" {
		key := strings.ToLower(e.PatientID)
		s.doc.PatientCIDs[key] = appendUnique(s.doc.PatientCIDs[key], e.CID)
	}
	if e.DoctorID != "" {
		key := strings.ToLower(e.DoctorID)
		s.doc.DoctorCIDs[key] = appendUnique(s.doc.DoctorCIDs[key], e.CID)
	}
	return s.flush()
}

func (s *FileStore) Find(_ context.Context, cid string) (models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.doc.CIDs[cid]
	if !ok {
		return models.Entry{}, sentinel.ErrNotFound
	}
	return e, nil
}

func (s *FileStore) ListByPatient(_ context.Context, address string) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.doc.PatientCIDs[strings.ToLower(address)]), nil
}

func (s *FileStore) ListByDoctor(_ context.Context, address string) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.doc.DoctorCIDs[strings.ToLower(address)]), nil
}

func (s *FileStore) ListByOwner(_ context.Context, address string) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Entry
	addr := strings.ToLower(address)
	for _, e := range s.doc.CIDs {
		if strings.ToLower(e.Owner) == addr {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *FileStore) Remove(_ context.Context, cid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.doc.CIDs[cid]
	if !ok {
		return sentinel.ErrNotFound
	}
	delete(s.doc.CIDs, cid)
	if e.PatientID != "" {
		key := strings.ToLower(e.PatientID)
		s.doc.PatientCIDs[key] = removeOne(s.doc.PatientCIDs[key], cid)
	}
	if e.DoctorID != "" {
		key := strings.ToLower(e.DoctorID)
		s.doc.DoctorCIDs[key] = removeOne(s.doc.DoctorCIDs[key], cid)
	}
	return s.flush()
}

func (s *FileStore) collect(cids []string) []models.Entry {
	out := make([]models.Entry, 0, len(cids))
	for _, cid := range cids {
		if e, ok := s.doc.CIDs[cid]; ok {
			out = append(out, e)
		}
	}
	return out
}
