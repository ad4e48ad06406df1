// Package store persists vault bytes: the container file through FileStore
// and key bundles plus the audit log through a bbolt-backed KeyStore.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Error variables for store operations
var (
	// ErrFileNotFound is returned by ReadRequired when the file does not exist
	ErrFileNotFound = errors.New("file not found")
	// ErrVaultLocked is returned when another process holds the write lock
	ErrVaultLocked = errors.New("vault is locked by another process")
	// ErrBundleNotFound is returned when no key bundle is stored for a vault
	ErrBundleNotFound = errors.New("key bundle not found")
	// ErrStoreClosed is returned when using a closed KeyStore
	ErrStoreClosed = errors.New("key store is closed")
)

// DefaultLockTimeout bounds how long AtomicWrite waits for the file lock.
const DefaultLockTimeout = 5 * time.Second

// FileStore is the byte-level file access the vault engine consumes.
type FileStore interface {
	Exists(path string) (bool, error)
	ReadIfExists(path string) ([]byte, bool, error)
	ReadRequired(path string) ([]byte, error)
	AtomicWrite(path string, data []byte) error
}

// OSFileStore implements FileStore on the local file system. Writes go
// through a temp file in the target directory and are serialized by an
// advisory lock next to the target.
type OSFileStore struct {
	lockTimeout time.Duration
	logger      zerolog.Logger
}

// FileStoreOption configures an OSFileStore.
type FileStoreOption func(*OSFileStore)

// WithLockTimeout sets how long writes wait for the lock.
func WithLockTimeout(d time.Duration) FileStoreOption {
	return func(s *OSFileStore) { s.lockTimeout = d }
}

// WithLogger sets the logger used for cleanup warnings.
func WithLogger(l zerolog.Logger) FileStoreOption {
	return func(s *OSFileStore) { s.logger = l }
}

// NewOSFileStore creates a file store.
func NewOSFileStore(opts ...FileStoreOption) *OSFileStore {
	s := &OSFileStore{lockTimeout: DefaultLockTimeout, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exists reports whether path exists.
func (s *OSFileStore) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// ReadIfExists returns the file contents and true, or nil and false when the
// file does not exist.
func (s *OSFileStore) ReadIfExists(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}

// ReadRequired returns the file contents or ErrFileNotFound.
func (s *OSFileStore) ReadRequired(path string) ([]byte, error) {
	data, ok, err := s.ReadIfExists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
	}
	return data, nil
}

// AtomicWrite replaces path with data under the write lock.
func (s *OSFileStore) AtomicWrite(path string, data []byte) error {
	lock := NewFileLock(path)
	if err := lock.Lock(s.lockTimeout); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return ErrVaultLocked
		}
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn().Err(err).Str("path", path).Msg("failed to release write lock")
		}
	}()

	return AtomicWriteFile(path, data, s.logger)
}
