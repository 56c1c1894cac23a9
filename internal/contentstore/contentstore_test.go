package contentstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medguard/pkg/platform/sentinel"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewInMemoryStore(),
		"file":   fileStore,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			payload := []byte("encrypted record bytes")

			cid, err := store.Put(ctx, payload)
			require.NoError(t, err)
			assert.Equal(t, CIDFor(payload), cid)

			got, err := store.Get(ctx, cid)
			require.NoError(t, err)
			assert.Equal(t, payload, got)

			ok, err := store.Has(ctx, cid)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestPutIsIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first, err := store.Put(ctx, []byte("same bytes"))
			require.NoError(t, err)
			second, err := store.Put(ctx, []byte("same bytes"))
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestGetMissing(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.Get(ctx, CIDFor([]byte("never stored")))
			require.ErrorIs(t, err, sentinel.ErrNotFound)

			ok, err := store.Has(ctx, CIDFor([]byte("never stored")))
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestDistinctPayloadsDistinctCIDs(t *testing.T) {
	assert.NotEqual(t, CIDFor([]byte("a")), CIDFor([]byte("b")))
}
