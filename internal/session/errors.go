package session

import (
	"errors"
)

// Public unlock failures. Internal causes are collapsed into these four so a
// probing caller learns nothing about why a file was rejected.
var (
	ErrMissingVaultFile  = errors.New("vault file not found")
	ErrCorruptedVault    = errors.New("vault is corrupted")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrModelDecodeFailed = errors.New("vault data could not be decoded")
)

// Session errors
var (
	ErrVaultExists   = errors.New("vault already exists")
	ErrSessionClosed = errors.New("session is closed")
)

// UnlockError is returned by every failed unlock. It carries only the
// public kind; the stage that failed is logged at debug level.
type UnlockError struct {
	Kind error
}

func (e *UnlockError) Error() string {
	return e.Kind.Error()
}

func (e *UnlockError) Unwrap() error {
	return e.Kind
}

func unlockErr(kind error) error {
	return &UnlockError{Kind: kind}
}
