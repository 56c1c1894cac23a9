// Package contentstore provides content-addressed blob storage. A blob's
// identifier is derived from its bytes, so the same payload always maps
// to the same CID and retrieval verifies integrity for free.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// CIDFor derives the content identifier for a payload.
func CIDFor(data []byte) string {
	sum := sha256.Sum256(data)
	return "cid-" + hex.EncodeToString(sum[:])
}

// Store persists blobs addressed by CID.
type Store interface {
	// Put stores the payload and returns its CID. Storing the same
	// payload twice is a no-op returning the same CID.
	Put(ctx context.Context, data []byte) (string, error)
	// Get returns the payload for a CID, or sentinel.ErrNotFound.
	Get(ctx context.Context, cid string) ([]byte, error)
	// Has reports whether the CID is present.
	Has(ctx context.Context, cid string) (bool, error)
}
