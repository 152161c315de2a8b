package securestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, ok, err := store.Read(ctx, TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, TokenKey, "first"))
	require.NoError(t, store.Save(ctx, TokenKey, "second"))
	v, ok, err := store.Read(ctx, TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	_, ok, _ = store.Read(ctx, UserIDKey)
	assert.False(t, ok, "namespaces are independent")

	require.NoError(t, store.Delete(ctx, TokenKey))
	require.NoError(t, store.Delete(ctx, TokenKey))
	_, ok, _ = store.Read(ctx, TokenKey)
	assert.False(t, ok)
}
