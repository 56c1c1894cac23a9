package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"medguard/pkg/platform/sentinel"
)

// FileStore persists blobs as one file per CID under a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating content directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	cid := CIDFor(data)
	path := filepath.Join(s.dir, cid)

	if _, err := os.Stat(path); err == nil {
		return cid, nil
	}

	tmp, err := os.CreateTemp(s.dir, "blob-*")
	if err != nil {
		return "", fmt.Errorf("creating temp blob: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("writing blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("closing blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("renaming blob: %w", err)
	}
	return cid, nil
}

func (s *FileStore) Get(_ context.Context, cid string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(cid)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("reading blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Has(_ context.Context, cid string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.dir, filepath.Base(cid)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("checking blob: %w", err)
	}
	return true, nil
}
