package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AtomicWriter handles atomic file operations using temp file + rename
type AtomicWriter struct {
	targetPath string
	tempPath   string
	tempFile   *os.File
	logger     zerolog.Logger
}

// NewAtomicWriter creates a new atomic writer for the target path
func NewAtomicWriter(targetPath string, logger zerolog.Logger) (*AtomicWriter, error) {
	if targetPath == "" || filepath.Clean(targetPath) != targetPath {
		return nil, fmt.Errorf("invalid path: %q", targetPath)
	}

	cleanDir := filepath.Dir(targetPath)
	base := filepath.Base(targetPath)
	if base == "." || base == string(filepath.Separator) || strings.Contains(base, "..") {
		return nil, fmt.Errorf("invalid filename: %s", base)
	}

	if err := os.MkdirAll(cleanDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Same directory as the target so the rename stays on one file system.
	tempPath := filepath.Join(cleanDir, fmt.Sprintf(".%s.tmp.%d.%d", base, os.Getpid(), time.Now().UnixNano()))
	tempFile, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	// umask can only narrow the mode; force it in case the file system ignored it
	if err := tempFile.Chmod(0o600); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tempPath)
		return nil, fmt.Errorf("failed to restrict temp file permissions: %w", err)
	}

	return &AtomicWriter{
		targetPath: targetPath,
		tempPath:   tempPath,
		tempFile:   tempFile,
		logger:     logger,
	}, nil
}

// Write writes data to the temporary file
func (aw *AtomicWriter) Write(data []byte) (int, error) {
	if aw.tempFile == nil {
		return 0, fmt.Errorf("writer is closed")
	}
	n, err := aw.tempFile.Write(data)
	if err != nil {
		aw.abortQuietly("write")
	}
	return n, err
}

// Commit finalizes the write by syncing and atomically renaming
func (aw *AtomicWriter) Commit() error {
	if aw.tempFile == nil {
		return fmt.Errorf("writer is closed")
	}

	if err := aw.tempFile.Sync(); err != nil {
		aw.abortQuietly("sync")
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := aw.tempFile.Close(); err != nil {
		aw.tempFile = nil
		aw.abortQuietly("close")
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	aw.tempFile = nil

	if err := os.Rename(aw.tempPath, aw.targetPath); err != nil {
		_ = os.Remove(aw.tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	syncDir(filepath.Dir(aw.targetPath), aw.logger)
	return nil
}

// Abort cancels the write and cleans up the temporary file
func (aw *AtomicWriter) Abort() error {
	var err error

	if aw.tempFile != nil {
		if closeErr := aw.tempFile.Close(); closeErr != nil {
			err = closeErr
		}
		aw.tempFile = nil
	}

	if removeErr := os.Remove(aw.tempPath); removeErr != nil && !os.IsNotExist(removeErr) && err == nil {
		err = removeErr
	}

	return err
}

func (aw *AtomicWriter) abortQuietly(stage string) {
	if err := aw.Abort(); err != nil {
		aw.logger.Warn().Err(err).Str("stage", stage).Msg("failed to abort atomic write")
	}
}

// AtomicWriteFile writes data to a file atomically. On any failure the
// original file is left untouched.
func AtomicWriteFile(path string, data []byte, logger zerolog.Logger) error {
	writer, err := NewAtomicWriter(path, logger)
	if err != nil {
		return err
	}

	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	return writer.Commit()
}

// syncDir flushes the directory entry for a completed rename.
func syncDir(dir string, logger zerolog.Logger) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		logger.Debug().Err(err).Str("dir", dir).Msg("directory sync not supported")
	}
}

// EnsureFilePermissions ensures the file has secure permissions (0600)
func EnsureFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if info.Mode().Perm()&0o077 != 0 {
		return os.Chmod(path, 0o600)
	}

	return nil
}
