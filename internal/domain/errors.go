package domain

import (
	"errors"
	"fmt"
)

// Graph mutation and lookup errors
var (
	ErrEntryNotFound     = errors.New("entry not found")
	ErrEntryExists       = errors.New("entry already exists")
	ErrAmbiguousTitle    = errors.New("more than one entry has this title")
	ErrFolderNotFound    = errors.New("folder not found")
	ErrFolderExists      = errors.New("folder already exists")
	ErrInvalidName       = errors.New("name must not be empty")
	ErrInvalidOTPBlock   = errors.New("invalid OTP block")
	ErrUnknownField      = errors.New("unknown field kind")
	ErrMissingCiphertext = errors.New("field has no ciphertext")
	ErrFieldReadOnly     = errors.New("field cannot be set directly")
	ErrGraphDecode       = errors.New("data graph decode failed")
)

// Hardening violations. GraphError unwraps to exactly one of these.
var (
	ErrEntryKeyMismatch             = errors.New("entry_key_mismatch")
	ErrOTPBlockKeyMismatch          = errors.New("otp_block_key_mismatch")
	ErrNullFolder                   = errors.New("null_folder")
	ErrDuplicateFolderID            = errors.New("duplicate_folder_id")
	ErrFolderReferencesMissingEntry = errors.New("folder_references_missing_entry")
	ErrOrphanedEntry                = errors.New("orphaned_entry")
	ErrMissingUnfiledFolder         = errors.New("missing_unfiled_folder")
	ErrDuplicateUnfiledFolder       = errors.New("duplicate_unfiled_folder")
	ErrEntryTimestampOrder          = errors.New("entry_updated_before_created")
	ErrEntryReferencesMissingOTP    = errors.New("entry_references_missing_otp_block")
)

// GraphError identifies a hardening violation and the ids involved. It never
// carries field contents.
type GraphError struct {
	Violation error
	Key       string
	FolderID  string
	EntryID   string
	BlockID   string
}

func (e *GraphError) Error() string {
	msg := e.Violation.Error()
	if e.Key != "" {
		msg += fmt.Sprintf(" key=%s", e.Key)
	}
	if e.FolderID != "" {
		msg += fmt.Sprintf(" folder=%s", e.FolderID)
	}
	if e.EntryID != "" {
		msg += fmt.Sprintf(" entry=%s", e.EntryID)
	}
	if e.BlockID != "" {
		msg += fmt.Sprintf(" block=%s", e.BlockID)
	}
	return msg
}

func (e *GraphError) Unwrap() error {
	return e.Violation
}
