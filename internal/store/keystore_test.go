package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/vault"
)

func testKeyBundle(t *testing.T) *vault.KeyBundle {
	t.Helper()
	params := vault.KDFParams{
		Algorithm:    vault.AlgorithmArgon2id,
		MemoryKiB:    vault.MinArgon2Memory,
		Iterations:   vault.MinArgon2Iterations,
		Parallelism:  1,
		SaltLength:   16,
		OutputLength: vault.OutputLength,
	}
	w := vault.NewKeyWrapper(vault.NewEngine(), vault.StubDeriver{})
	kb, key, err := w.CreateBundle([]byte("correct horse battery"), params)
	require.NoError(t, err)
	key.Wipe()
	return kb
}

func openTestKeyStore(t *testing.T) *KeyStore {
	t.Helper()
	ks, err := OpenKeyStore(filepath.Join(t.TempDir(), "keys", "keys.db"), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ks.Close() })
	return ks
}

func TestOpenKeyStore_Permissions(t *testing.T) {
	ks := openTestKeyStore(t)

	info, err := os.Stat(ks.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dir, err := os.Stat(filepath.Dir(ks.Path()))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dir.Mode().Perm())

	require.NoError(t, ks.VerifyIntegrity())
}

func TestOpenKeyStore_Locked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.db")
	first, err := OpenKeyStore(path, time.Second)
	require.NoError(t, err)
	defer first.Close()

	_, err = OpenKeyStore(path, 100*time.Millisecond)
	assert.ErrorIs(t, err, ErrVaultLocked)
}

func TestKeyStore_Bundles(t *testing.T) {
	ks := openTestKeyStore(t)
	kb := testKeyBundle(t)

	_, err := ks.GetBundle("/tmp/a.entr")
	assert.ErrorIs(t, err, ErrBundleNotFound)
	assert.False(t, ks.HasBundle("/tmp/a.entr"))

	require.NoError(t, ks.PutBundle("/tmp/a.entr", kb))
	assert.True(t, ks.HasBundle("/tmp/a.entr"))

	got, err := ks.GetBundle("/tmp/a.entr")
	require.NoError(t, err)
	assert.Equal(t, kb.KDF, got.KDF)
	assert.Equal(t, kb.Salt, got.Salt)
	assert.Equal(t, kb.WrappedKey.Ciphertext, got.WrappedKey.Ciphertext)
	assert.Equal(t, kb.WrappedKey.AssociatedData, got.WrappedKey.AssociatedData)

	require.NoError(t, ks.DeleteBundle("/tmp/a.entr"))
	assert.False(t, ks.HasBundle("/tmp/a.entr"))
	require.NoError(t, ks.DeleteBundle("/tmp/a.entr"))
}

func TestKeyStore_StagedBundles(t *testing.T) {
	ks := openTestKeyStore(t)
	prev := testKeyBundle(t)
	next := testKeyBundle(t)
	next.KDF.Iterations++
	const id = "/tmp/a.entr"

	_, err := ks.GetPendingBundle(id)
	assert.ErrorIs(t, err, ErrBundleNotFound)
	require.NoError(t, ks.RollbackBundle(id), "rollback without a pending bundle is a no-op")

	require.NoError(t, ks.PutBundle(id, prev))
	require.NoError(t, ks.StageBundle(id, next, prev))

	current, err := ks.GetBundle(id)
	require.NoError(t, err)
	assert.Equal(t, next.KDF, current.KDF)
	pending, err := ks.GetPendingBundle(id)
	require.NoError(t, err)
	assert.Equal(t, prev.KDF, pending.KDF)
	require.NoError(t, ks.VerifyIntegrity())

	require.NoError(t, ks.RollbackBundle(id))
	current, err = ks.GetBundle(id)
	require.NoError(t, err)
	assert.Equal(t, prev.KDF, current.KDF)
	assert.Equal(t, prev.Salt, current.Salt)
	_, err = ks.GetPendingBundle(id)
	assert.ErrorIs(t, err, ErrBundleNotFound)

	require.NoError(t, ks.StageBundle(id, next, prev))
	require.NoError(t, ks.CommitBundle(id))
	current, err = ks.GetBundle(id)
	require.NoError(t, err)
	assert.Equal(t, next.KDF, current.KDF)
	_, err = ks.GetPendingBundle(id)
	assert.ErrorIs(t, err, ErrBundleNotFound)

	require.NoError(t, ks.StageBundle(id, next, prev))
	require.NoError(t, ks.DeleteBundle(id))
	assert.False(t, ks.HasBundle(id))
	_, err = ks.GetPendingBundle(id)
	assert.ErrorIs(t, err, ErrBundleNotFound)
}

func TestKeyStore_CorruptedBundle(t *testing.T) {
	ks := openTestKeyStore(t)
	require.NoError(t, ks.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BundlesBucket).Put([]byte("bad"), []byte{0x01, 0x02})
	}))

	_, err := ks.GetBundle("bad")
	assert.ErrorIs(t, err, vault.ErrInvalidKeyBundle)
	assert.Error(t, ks.VerifyIntegrity())
}

func TestKeyStore_AuditLog(t *testing.T) {
	ks := openTestKeyStore(t)

	ops := []*domain.Operation{
		{Type: "create", VaultID: "v1", Success: true},
		{Type: "unlock", VaultID: "v2", Success: false},
		{Type: "add_entry", VaultID: "v1", EntryID: "e1", Success: true},
	}
	for _, op := range ops {
		require.NoError(t, ks.LogOperation(op))
	}
	assert.Error(t, ks.LogOperation(nil))

	all, err := ks.AuditLog("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "create", all[0].Type)
	assert.False(t, all[0].Timestamp.IsZero())

	v1, err := ks.AuditLog("v1")
	require.NoError(t, err)
	require.Len(t, v1, 2)
	assert.Equal(t, "add_entry", v1[1].Type)
	assert.Equal(t, "e1", v1[1].EntryID)

	require.NoError(t, ks.VerifyIntegrity())
}

func TestKeyStore_Closed(t *testing.T) {
	ks, err := OpenKeyStore(filepath.Join(t.TempDir(), "keys.db"), time.Second)
	require.NoError(t, err)
	require.NoError(t, ks.Close())
	require.NoError(t, ks.Close())

	assert.ErrorIs(t, ks.PutBundle("v", testKeyBundle(t)), ErrStoreClosed)
	_, err = ks.GetBundle("v")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = ks.AuditLog("")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestVaultID(t *testing.T) {
	dir := t.TempDir()
	id, err := VaultID(filepath.Join(dir, "sub", "..", "v.entr"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "v.entr"), id)
}
