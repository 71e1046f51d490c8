package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateSigningKey_WhenNoFile_CreatesKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	key, err := LoadOrCreateSigningKey(dir)
	require.NoError(t, err)
	assert.Len(t, key, 64, "key should be 64 hex chars (32 bytes)")

	info, err := os.Stat(filepath.Join(dir, signingKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOrCreateSigningKey_CalledTwice_ReturnsSameKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	first, err := LoadOrCreateSigningKey(dir)
	require.NoError(t, err)
	second, err := LoadOrCreateSigningKey(dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestLoadOrCreateSigningKey_TrimsTrailingNewline(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, signingKeyFile), []byte("abc123\n"), 0600))

	key, err := LoadOrCreateSigningKey(dir)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc123"), key)
}

func TestLoadOrCreateSigningKey_WhenEmptyFile_GeneratesNew(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, signingKeyFile), nil, 0600))

	key, err := LoadOrCreateSigningKey(dir)
	require.NoError(t, err)
	assert.Len(t, key, 64)
}

func TestRotateSigningKey_ChangesKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	original, err := LoadOrCreateSigningKey(dir)
	require.NoError(t, err)
	rotated, err := RotateSigningKey(dir)
	require.NoError(t, err)

	assert.NotEqual(t, original, rotated)
}
