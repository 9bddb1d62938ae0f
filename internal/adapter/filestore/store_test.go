package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pscheid92/wastepoints/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_GetMissing(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "authTokens")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestStore_SetGetDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "user", `{"id":1}`))
	require.NoError(t, s.Set(ctx, "authTokens", "sealed"))

	v, err := s.Get(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, `{"id":1}`, v)

	// A second store on the same dir sees the persisted values.
	reopened, err := New(dir)
	require.NoError(t, err)
	v, err = reopened.Get(ctx, "authTokens")
	require.NoError(t, err)
	assert.Equal(t, "sealed", v)

	require.NoError(t, s.Delete(ctx, "user"))
	_, err = reopened.Get(ctx, "user")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, s.Delete(ctx, "never-set"))
}

func TestStore_FilePermissions(t *testing.T) {
	s, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Set(context.Background(), "k", "v"))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must be cleaned up")
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, fileName), []byte("{broken"), 0o600))

	s, err := New(dir)
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "user")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrKeyNotFound)
}
