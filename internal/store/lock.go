package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Error variables for file locking operations
var (
	// ErrLockTimeout is returned when a lock cannot be acquired within the specified timeout
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrLockNotHeld is returned when attempting to release a lock that isn't held
	ErrLockNotHeld = errors.New("lock not held")
)

const lockRetryInterval = 50 * time.Millisecond

// FileLock is an advisory, exclusive lock on "<path>.lock". The lock file is
// left in place on release; only the OS lock on it matters, so a crashed
// holder never leaves a stale lock behind.
type FileLock struct {
	path     string
	lockFile *os.File
}

// NewFileLock creates a new file lock for the given path
func NewFileLock(targetPath string) *FileLock {
	return &FileLock{path: targetPath + ".lock"}
}

// Path returns the lock file path.
func (fl *FileLock) Path() string {
	return fl.path
}

// Lock acquires the lock, retrying until timeout elapses.
func (fl *FileLock) Lock(timeout time.Duration) error {
	if fl.lockFile != nil {
		return errors.New("lock already held")
	}

	if err := os.MkdirAll(filepath.Dir(fl.path), 0o700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Clean(fl.path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		err := platformLock(file)
		if err == nil {
			fl.lockFile = file
			return nil
		}
		if !isLockContended(err) {
			_ = file.Close()
			return fmt.Errorf("failed to lock %s: %w", fl.path, err)
		}
		if time.Now().After(deadline) {
			_ = file.Close()
			return ErrLockTimeout
		}
		time.Sleep(lockRetryInterval)
	}
}

// Unlock releases the file lock
func (fl *FileLock) Unlock() error {
	if fl.lockFile == nil {
		return ErrLockNotHeld
	}

	err := platformUnlock(fl.lockFile)
	if closeErr := fl.lockFile.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	fl.lockFile = nil
	return err
}

// IsLocked returns true if the lock is currently held
func (fl *FileLock) IsLocked() bool {
	return fl.lockFile != nil
}
