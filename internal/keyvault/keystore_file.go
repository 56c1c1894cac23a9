package keyvault

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"medguard/pkg/platform/sentinel"
)

// FileKeyStore persists keys on disk, one principal per file set:
// <address>.pem (PKCS#8 private key), <address>_pub.pem, <address>.sym
// (base64 symmetric key). Writes go through a temp file and rename so a
// crashed write never leaves a truncated key behind.
type FileKeyStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}
	return &FileKeyStore{dir: dir}, nil
}

func (s *FileKeyStore) SaveKeypair(_ context.Context, address string, key *rsa.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	addr := strings.ToLower(address)
	if err := s.writeFile(addr+".pem", privPEM, 0o600); err != nil {
		return err
	}
	return s.writeFile(addr+"_pub.pem", pubPEM, 0o644)
}

func (s *FileKeyStore) LoadKeypair(_ context.Context, address string) (*rsa.PrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, strings.ToLower(address)+".pem"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("keypair for %s: %w", address, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("keypair for %s: no PEM block: %w", address, sentinel.ErrInvalidState)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("keypair for %s: not an RSA key: %w", address, sentinel.ErrInvalidState)
	}
	return key, nil
}

func (s *FileKeyStore) SaveSymmetricKey(_ context.Context, address string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded := base64.StdEncoding.EncodeToString(key)
	return s.writeFile(strings.ToLower(address)+".sym", []byte(encoded), 0o600)
}

func (s *FileKeyStore) LoadSymmetricKey(_ context.Context, address string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(filepath.Join(s.dir, strings.ToLower(address)+".sym"))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("symmetric key for %s: %w", address, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read symmetric key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode symmetric key: %w", err)
	}
	return key, nil
}

// writeFile must be called with s.mu held.
func (s *FileKeyStore) writeFile(name string, data []byte, mode os.FileMode) error {
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
