package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medguard/internal/registry/models"
)

func fileStore(t *testing.T, path string) *FileStore {
	t.Helper()
	s, err := NewFileStore(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.json")

	first := fileStore(t, path)
	require.NoError(t, first.Register(ctx, models.Entry{
		CID:       "cid-1",
		Owner:     "0x1111",
		Type:      models.TypeRecord,
		PatientID: "0xAAAA",
		DoctorID:  "0xBBBB",
	}))

	second := fileStore(t, path)
	e, err := second.Find(ctx, "cid-1")
	require.NoError(t, err)
	assert.Equal(t, "0x1111", e.Owner)

	entries, err := second.ListByPatient(ctx, "0xaaaa")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStoreDocumentShape(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.json")

	s := fileStore(t, path)
	require.NoError(t, s.Register(ctx, models.Entry{
		CID:      "cid-1",
		Owner:    "0x1111",
		Type:     models.TypeRecord,
		DoctorID: "0xBBBB",
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Contains(t, doc, "cids")
	assert.Contains(t, doc, "patient_cids")
	assert.Contains(t, doc, "doctor_cids")
	assert.Contains(t, doc, "metadata")

	var meta struct {
		LastUpdated string `json:"last_updated"`
	}
	require.NoError(t, json.Unmarshal(doc["metadata"], &meta))
	assert.NotEmpty(t, meta.LastUpdated)
}

func TestFileStoreCorruptedDocumentStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := fileStore(t, path)
	entries, err := s.ListByOwner(context.Background(), "0x1111")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStoreRemoveRewritesDocument(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.json")

	s := fileStore(t, path)
	require.NoError(t, s.Register(ctx, models.Entry{
		CID: "cid-1", Owner: "0x1111", Type: models.TypeRecord, PatientID: "0xAAAA",
	}))
	require.NoError(t, s.Remove(ctx, "cid-1"))

	reloaded := fileStore(t, path)
	entries, err := reloaded.ListByPatient(ctx, "0xAAAA")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
