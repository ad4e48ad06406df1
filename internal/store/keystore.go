package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/vault"
)

// Bucket names
var (
	BundlesBucket = []byte("key_bundles")
	PendingBucket = []byte("pending_bundles")
	AuditBucket   = []byte("audit")
)

// KeyStore persists wrapped key bundles, keyed by vault id, and the audit
// log. It never holds unwrapped key material.
type KeyStore struct {
	db   *bbolt.DB
	path string
}

// VaultID derives the key-store id of a container from its absolute path.
func VaultID(containerPath string) (string, error) {
	abs, err := filepath.Abs(containerPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve vault path: %w", err)
	}
	return filepath.Clean(abs), nil
}

// OpenKeyStore opens or creates the key store database at path.
func OpenKeyStore(path string, timeout time.Duration) (*KeyStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key store directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		if errors.Is(err, bbolt.ErrTimeout) {
			return nil, ErrVaultLocked
		}
		return nil, fmt.Errorf("failed to open key store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{BundlesBucket, PendingBucket, AuditBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := EnsureFilePermissions(path); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to secure key store permissions: %w", err)
	}

	return &KeyStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (ks *KeyStore) Path() string {
	return ks.path
}

// Close releases the database.
func (ks *KeyStore) Close() error {
	if ks.db == nil {
		return nil
	}
	err := ks.db.Close()
	ks.db = nil
	return err
}

func (ks *KeyStore) update(fn func(tx *bbolt.Tx) error) error {
	if ks.db == nil {
		return ErrStoreClosed
	}
	return ks.db.Update(fn)
}

func (ks *KeyStore) view(fn func(tx *bbolt.Tx) error) error {
	if ks.db == nil {
		return ErrStoreClosed
	}
	return ks.db.View(fn)
}

// PutBundle stores or replaces the key bundle for vaultID.
func (ks *KeyStore) PutBundle(vaultID string, kb *vault.KeyBundle) error {
	data, err := vault.MarshalKeyBundle(kb)
	if err != nil {
		return err
	}
	return ks.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(BundlesBucket).Put([]byte(vaultID), data)
	})
}

// GetBundle loads and structurally validates the key bundle for vaultID.
func (ks *KeyStore) GetBundle(vaultID string) (*vault.KeyBundle, error) {
	return ks.getFrom(BundlesBucket, vaultID)
}

// GetPendingBundle returns the bundle that was current before an unfinished
// password change, or ErrBundleNotFound when no change is in flight.
func (ks *KeyStore) GetPendingBundle(vaultID string) (*vault.KeyBundle, error) {
	return ks.getFrom(PendingBucket, vaultID)
}

func (ks *KeyStore) getFrom(bucket []byte, vaultID string) (*vault.KeyBundle, error) {
	var data []byte
	err := ks.view(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(vaultID))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrBundleNotFound, vaultID)
		}
		data = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vault.UnmarshalKeyBundle(data)
}

// StageBundle makes next the current bundle and keeps prev as pending, in
// one transaction. The change is finished with CommitBundle or undone with
// RollbackBundle.
func (ks *KeyStore) StageBundle(vaultID string, next, prev *vault.KeyBundle) error {
	nextData, err := vault.MarshalKeyBundle(next)
	if err != nil {
		return err
	}
	prevData, err := vault.MarshalKeyBundle(prev)
	if err != nil {
		return err
	}
	return ks.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(PendingBucket).Put([]byte(vaultID), prevData); err != nil {
			return err
		}
		return tx.Bucket(BundlesBucket).Put([]byte(vaultID), nextData)
	})
}

// CommitBundle drops the pending bundle for vaultID.
func (ks *KeyStore) CommitBundle(vaultID string) error {
	return ks.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(PendingBucket).Delete([]byte(vaultID))
	})
}

// RollbackBundle restores the pending bundle as current. Without a pending
// bundle it does nothing.
func (ks *KeyStore) RollbackBundle(vaultID string) error {
	return ks.update(func(tx *bbolt.Tx) error {
		pending := tx.Bucket(PendingBucket)
		v := pending.Get([]byte(vaultID))
		if v == nil {
			return nil
		}
		if err := tx.Bucket(BundlesBucket).Put([]byte(vaultID), append([]byte(nil), v...)); err != nil {
			return err
		}
		return pending.Delete([]byte(vaultID))
	})
}

// HasBundle reports whether a bundle is stored for vaultID.
func (ks *KeyStore) HasBundle(vaultID string) bool {
	found := false
	_ = ks.view(func(tx *bbolt.Tx) error {
		found = tx.Bucket(BundlesBucket).Get([]byte(vaultID)) != nil
		return nil
	})
	return found
}

// DeleteBundle removes the bundle for vaultID. Deleting a missing bundle is
// not an error.
func (ks *KeyStore) DeleteBundle(vaultID string) error {
	return ks.update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(PendingBucket).Delete([]byte(vaultID)); err != nil {
			return err
		}
		return tx.Bucket(BundlesBucket).Delete([]byte(vaultID))
	})
}

// LogOperation persists an audit entry in the audit bucket.
func (ks *KeyStore) LogOperation(op *domain.Operation) error {
	if op == nil {
		return fmt.Errorf("operation cannot be nil")
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	return ks.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(AuditBucket)
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate audit sequence: %w", err)
		}

		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, payload)
	})
}

// AuditLog returns audit operations in chronological order, limited to
// vaultID unless it is empty.
func (ks *KeyStore) AuditLog(vaultID string) ([]*domain.Operation, error) {
	var ops []*domain.Operation
	err := ks.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(AuditBucket).ForEach(func(k, v []byte) error {
			var op domain.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("failed to decode audit entry %x: %w", k, err)
			}
			if vaultID != "" && op.VaultID != vaultID {
				return nil
			}
			op.Timestamp = op.Timestamp.UTC()
			ops = append(ops, &op)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return ops, nil
}

// VerifyIntegrity checks that every stored bundle and audit entry decodes.
func (ks *KeyStore) VerifyIntegrity() error {
	return ks.view(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{BundlesBucket, PendingBucket, AuditBucket} {
			if tx.Bucket(name) == nil {
				return fmt.Errorf("missing required bucket: %s", name)
			}
		}

		for _, name := range [][]byte{BundlesBucket, PendingBucket} {
			err := tx.Bucket(name).ForEach(func(k, v []byte) error {
				if _, err := vault.UnmarshalKeyBundle(v); err != nil {
					return fmt.Errorf("%s entry for %s: %w", name, k, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}

		return tx.Bucket(AuditBucket).ForEach(func(k, v []byte) error {
			var op domain.Operation
			if err := json.Unmarshal(v, &op); err != nil {
				return fmt.Errorf("corrupted audit entry %x: %w", k, err)
			}
			if op.Type == "" {
				return fmt.Errorf("audit entry %x missing operation type", k)
			}
			return nil
		})
	})
}
