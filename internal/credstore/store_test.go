package credstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shsh-labs/chatgw/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	bundle := domain.CredentialBundle{TenantID: "acme", Data: []byte("opaque-creds")}
	require.NoError(t, store.Save(ctx, "acme", bundle))

	loaded, err := store.Load(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, bundle.Data, loaded.Data)
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load(context.Background(), "nobody")
	require.NoError(t, err)
	require.True(t, loaded.Empty())
}

func TestRejectsPathSeparators(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "../escape")
	require.ErrorIs(t, err, ErrInvalidTenantID)

	err = store.Save(context.Background(), "a/b", domain.CredentialBundle{Data: []byte("x")})
	require.ErrorIs(t, err, ErrInvalidTenantID)
}

func TestPurgeIsRecursiveAndIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "acme", domain.CredentialBundle{Data: []byte("x")}))

	require.NoError(t, store.Purge(ctx, "acme"))
	_, err = os.Stat(filepath.Join(dir, "acme"))
	require.True(t, os.IsNotExist(err))

	// Purging again must not error.
	require.NoError(t, store.Purge(ctx, "acme"))
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "acme", domain.CredentialBundle{Data: []byte("x")}))

	entries, err := os.ReadDir(filepath.Join(dir, "acme"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, bundleFileName, entries[0].Name())
}
