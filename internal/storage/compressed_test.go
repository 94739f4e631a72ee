package storage_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/worldrelay/internal/model"
	"github.com/mcoot/worldrelay/internal/storage"
	"github.com/mcoot/worldrelay/internal/storage/memory"
)

func TestCompressedRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	store, err := storage.NewCompressed(inner)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	blob := []byte(`{"worlds":"` + strings.Repeat("ABCDEF", 200) + `"}`)
	require.NoError(t, store.Set(ctx, storage.KeyWorlds, blob))

	raw, err := inner.Get(ctx, storage.KeyWorlds)
	require.NoError(t, err)
	assert.Less(t, len(raw), len(blob))
	assert.True(t, bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}))

	got, err := store.Get(ctx, storage.KeyWorlds)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestCompressedReadsUncompressedBlobs(t *testing.T) {
	ctx := context.Background()
	inner := memory.New()
	require.NoError(t, inner.Set(ctx, storage.KeyLogins, []byte(`[]`)))

	store, err := storage.NewCompressed(inner)
	require.NoError(t, err)

	got, err := store.Get(ctx, storage.KeyLogins)
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(got))
}

func TestCompressedPassesThroughNotFound(t *testing.T) {
	store, err := storage.NewCompressed(memory.New())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), storage.KeyWorlds)
	assert.ErrorIs(t, err, model.ErrBlobNotFound)
}
