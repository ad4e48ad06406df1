package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileStore_ReadAndExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.entr")
	fs := NewOSFileStore()

	ok, err := fs.Exists(path)
	require.NoError(t, err)
	assert.False(t, ok)

	data, found, err := fs.ReadIfExists(path)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)

	_, err = fs.ReadRequired(path)
	assert.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, fs.AtomicWrite(path, []byte("first")))

	ok, err = fs.Exists(path)
	require.NoError(t, err)
	assert.True(t, ok)

	data, err = fs.ReadRequired(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)
}

func TestOSFileStore_AtomicWriteReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.entr")
	fs := NewOSFileStore()

	require.NoError(t, fs.AtomicWrite(path, []byte("first")))
	require.NoError(t, fs.AtomicWrite(path, []byte("second version")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second version"), data)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp.")
	}
}

func TestOSFileStore_WriteWaitsForLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.entr")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o600))

	held := NewFileLock(path)
	require.NoError(t, held.Lock(time.Second))

	fs := NewOSFileStore(WithLockTimeout(150*time.Millisecond), WithLogger(zerolog.Nop()))
	err := fs.AtomicWrite(path, []byte("clobbered"))
	assert.ErrorIs(t, err, ErrVaultLocked)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data, "a failed write leaves the file untouched")

	require.NoError(t, held.Unlock())
	require.NoError(t, fs.AtomicWrite(path, []byte("after unlock")))
}

func TestAtomicWriter_AbortKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.entr")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o600))

	w, err := NewAtomicWriter(path, zerolog.Nop())
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), data)

	_, err = w.Write([]byte("more"))
	assert.Error(t, err)
	assert.Error(t, w.Commit())
}

func TestNewAtomicWriter_RejectsBadPaths(t *testing.T) {
	dir := t.TempDir()
	sep := string(filepath.Separator)

	tests := []struct {
		name string
		path string
	}{
		{"empty", ""},
		{"parent", dir + sep + ".."},
		{"current", dir + sep + "."},
		{"dot segment", dir + sep + "." + sep + "vault.entr"},
		{"double separator", dir + sep + sep + "vault.entr"},
		{"trailing separator", dir + sep + "vault.entr" + sep},
		{"dotted name", filepath.Join(dir, "vault..entr")},
		{"root", sep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewAtomicWriter(tt.path, zerolog.Nop())
			if w != nil {
				_ = w.Abort()
			}
			assert.Error(t, err)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "rejected paths must not leave temp files")
}

func TestFileLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.entr")

	first := NewFileLock(path)
	assert.Equal(t, path+".lock", first.Path())
	assert.False(t, first.IsLocked())
	assert.ErrorIs(t, first.Unlock(), ErrLockNotHeld)

	require.NoError(t, first.Lock(time.Second))
	assert.True(t, first.IsLocked())

	second := NewFileLock(path)
	start := time.Now()
	err := second.Lock(100 * time.Millisecond)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	require.NoError(t, first.Unlock())
	assert.False(t, first.IsLocked())

	require.NoError(t, second.Lock(time.Second))
	require.NoError(t, second.Unlock())
}

func TestEnsureFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loose")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Chmod(path, 0o644))

	require.NoError(t, EnsureFilePermissions(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	assert.Error(t, EnsureFilePermissions(filepath.Join(t.TempDir(), "missing")))
}
