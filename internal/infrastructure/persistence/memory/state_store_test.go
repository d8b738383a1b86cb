package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/insights/internal/ports/outbound"
)

func TestSaveAndLoad(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", []byte("v1")))
	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Last writer wins
	require.NoError(t, store.Save(ctx, "k", []byte("v2")))
	got, err = store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestLoadMissingKey(t *testing.T) {
	store := NewStateStore()
	_, err := store.Load(context.Background(), "missing")
	require.Error(t, err)

	var notFound outbound.ErrKeyNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Key)
}

func TestDelete(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", []byte("v")))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err := store.Load(ctx, "k")
	assert.Error(t, err)

	// Deleting a missing key is a no-op
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestValuesAreCopied(t *testing.T) {
	store := NewStateStore()
	ctx := context.Background()

	original := []byte("abc")
	require.NoError(t, store.Save(ctx, "k", original))
	original[0] = 'x'

	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	// Mutating a loaded value must not corrupt the store
	got[0] = 'y'
	again, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
