package vault

import (
	"errors"
	"fmt"
)

// AEAD errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrEncryptionFailure = errors.New("encryption failed")
	// ErrDecryptionFailure covers tag mismatch, wrong key and modified
	// associated data alike.
	ErrDecryptionFailure = errors.New("decryption failed")
)

// KDF and key-wrap errors
var (
	ErrInvalidPassword   = errors.New("password does not meet policy")
	ErrInvalidKDFParams  = errors.New("invalid KDF parameters")
	ErrRandomnessFailure = errors.New("random source failure")
	ErrInvalidKeyBundle  = errors.New("invalid key bundle")
	// ErrUnwrapFailed is the single outcome of a failed vault key recovery.
	ErrUnwrapFailed = errors.New("invalid password or corrupted key bundle")
)

// Container errors
var (
	ErrBadMagic                    = errors.New("bad container magic")
	ErrUnsupportedFormatVersion    = errors.New("unsupported header format version")
	ErrHeaderTruncated             = errors.New("container header truncated")
	ErrHeaderBodyTruncated         = errors.New("header body shorter than declared length")
	ErrMalformedHeader             = errors.New("malformed header body")
	ErrVaultVersionMismatch        = errors.New("unsupported vault version")
	ErrSchemaVersionMismatch       = errors.New("unsupported schema version")
	ErrUnsupportedEncryptionMethod = errors.New("unsupported encryption method")
	ErrInvalidHashLength           = errors.New("invalid integrity hash length")
	ErrMissingPayload              = errors.New("container payload missing")
	ErrPayloadTruncated            = errors.New("container payload truncated")
	ErrTrailingData                = errors.New("unexpected trailing data")
	ErrHashMismatch                = errors.New("integrity hash mismatch")
)

// LengthError reports a wire-level field whose length is out of bounds.
// It carries lengths only, never content.
type LengthError struct {
	Field string
	Want  string
	Got   int
	Err   error
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("%v: %s length %d, want %s", e.Err, e.Field, e.Got, e.Want)
}

func (e *LengthError) Unwrap() error {
	return e.Err
}

func lengthErr(base error, field, want string, got int) error {
	return &LengthError{Field: field, Want: want, Got: got, Err: base}
}
