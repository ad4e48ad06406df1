// Package domain defines the decrypted data graph held by an unlocked vault:
// entries, folders and OTP blocks, plus the invariants that bind them.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vault-cli/entr/internal/vault"
)

// UnfiledFolderName is the folder every vault carries and new entries land in.
const UnfiledFolderName = "Unfiled"

// Graph is the logical model serialized into the container payload.
type Graph struct {
	SchemaVersion uint16               `json:"schema_version"`
	Entries       map[string]*Entry    `json:"entries"`
	Folders       []*Folder            `json:"folders"`
	OTPBlocks     map[string]*OTPBlock `json:"otp_blocks"`
}

// Entry represents a credential record. Every sensitive field is an AEAD
// bundle; only the title, domain hint and tags are plaintext inside the
// (encrypted) payload.
type Entry struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	DomainHint string         `json:"domain_hint,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Username   *vault.Bundle  `json:"username,omitempty"`
	Password   *vault.Bundle  `json:"password,omitempty"`
	Notes      *vault.Bundle  `json:"notes,omitempty"`
	Metadata   *vault.Bundle  `json:"metadata,omitempty"`
	OTPBlockID string         `json:"otp_block_id,omitempty"`
	Security   *SecurityScore `json:"security,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SecurityScore is the strength assessment recorded when a password is set.
// The fingerprint is a SHA-256 of the password, itself stored encrypted.
type SecurityScore struct {
	Strength    string        `json:"strength"`
	Score       int           `json:"score"`
	EntropyBits float64       `json:"entropy_bits"`
	Fingerprint *vault.Bundle `json:"fingerprint,omitempty"`
}

// Folder groups entries. An entry may appear in several folders.
type Folder struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	EntryIDs []string `json:"entry_ids"`
}

// OTPAlgorithm selects the HMAC hash used for TOTP codes.
type OTPAlgorithm string

const (
	OTPSHA1   OTPAlgorithm = "SHA1"
	OTPSHA256 OTPAlgorithm = "SHA256"
	OTPSHA512 OTPAlgorithm = "SHA512"
)

// OTP parameter ranges
const (
	MinOTPDigits = 4
	MaxOTPDigits = 10
	MinOTPPeriod = 5
	MaxOTPPeriod = 300
)

// OTPBlock holds an encrypted TOTP secret and its generation parameters.
type OTPBlock struct {
	ID        string        `json:"id"`
	Algorithm OTPAlgorithm  `json:"algorithm"`
	Digits    int           `json:"digits"`
	Period    int           `json:"period"`
	Secret    *vault.Bundle `json:"secret"`
	Metadata  *vault.Bundle `json:"metadata,omitempty"`
}

// Validate checks the block's algorithm and ranges.
func (b *OTPBlock) Validate() error {
	switch b.Algorithm {
	case OTPSHA1, OTPSHA256, OTPSHA512:
	default:
		return fmt.Errorf("%w: algorithm %q", ErrInvalidOTPBlock, b.Algorithm)
	}
	if b.Digits < MinOTPDigits || b.Digits > MaxOTPDigits {
		return fmt.Errorf("%w: digits %d outside [%d,%d]", ErrInvalidOTPBlock, b.Digits, MinOTPDigits, MaxOTPDigits)
	}
	if b.Period < MinOTPPeriod || b.Period > MaxOTPPeriod {
		return fmt.Errorf("%w: period %d outside [%d,%d]", ErrInvalidOTPBlock, b.Period, MinOTPPeriod, MaxOTPPeriod)
	}
	return nil
}

// Operation represents an audit log operation
type Operation struct {
	Type      string    `json:"type"`
	VaultID   string    `json:"vault_id"`
	EntryID   string    `json:"entry_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// NewID returns a fresh random identifier for entries, folders and blocks.
func NewID() string {
	return uuid.NewString()
}

// NewGraph returns an empty graph holding only the Unfiled folder.
func NewGraph() *Graph {
	return &Graph{
		SchemaVersion: vault.SchemaVersion,
		Entries:       make(map[string]*Entry),
		Folders:       []*Folder{{ID: NewID(), Name: UnfiledFolderName, EntryIDs: []string{}}},
		OTPBlocks:     make(map[string]*OTPBlock),
	}
}

// NewEntry creates an entry with a fresh id and matching timestamps.
func NewEntry(title string, now time.Time) *Entry {
	now = now.UTC()
	return &Entry{
		ID:        NewID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch advances UpdatedAt, never moving it before CreatedAt.
func (e *Entry) Touch(now time.Time) {
	now = now.UTC()
	if now.Before(e.CreatedAt) {
		now = e.CreatedAt
	}
	e.UpdatedAt = now
}
