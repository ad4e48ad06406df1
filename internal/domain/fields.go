package domain

import (
	"fmt"
	"strings"

	"github.com/vault-cli/entr/internal/secure"
	"github.com/vault-cli/entr/internal/vault"
)

// FieldKind names an encrypted field reachable from an entry.
type FieldKind int

const (
	FieldUsername FieldKind = iota
	FieldPassword
	FieldNotes
	FieldMetadata
	FieldOTPSecret
	FieldFingerprint
)

var fieldNames = [...]string{
	FieldUsername:    "username",
	FieldPassword:    "password",
	FieldNotes:       "notes",
	FieldMetadata:    "metadata",
	FieldOTPSecret:   "otp",
	FieldFingerprint: "fingerprint",
}

type fieldSpec struct {
	// get returns the bundle and the associated data it must carry.
	get func(g *Graph, e *Entry) (*vault.Bundle, []byte)
	// set is nil for kinds owned by another structure.
	set func(e *Entry, b *vault.Bundle)
}

var fieldTable = [...]fieldSpec{
	FieldUsername: {
		get: func(_ *Graph, e *Entry) (*vault.Bundle, []byte) {
			return e.Username, FieldAD(e.ID, FieldUsername)
		},
		set: func(e *Entry, b *vault.Bundle) { e.Username = b },
	},
	FieldPassword: {
		get: func(_ *Graph, e *Entry) (*vault.Bundle, []byte) {
			return e.Password, FieldAD(e.ID, FieldPassword)
		},
		set: func(e *Entry, b *vault.Bundle) { e.Password = b },
	},
	FieldNotes: {
		get: func(_ *Graph, e *Entry) (*vault.Bundle, []byte) {
			return e.Notes, FieldAD(e.ID, FieldNotes)
		},
		set: func(e *Entry, b *vault.Bundle) { e.Notes = b },
	},
	FieldMetadata: {
		get: func(_ *Graph, e *Entry) (*vault.Bundle, []byte) {
			return e.Metadata, FieldAD(e.ID, FieldMetadata)
		},
		set: func(e *Entry, b *vault.Bundle) { e.Metadata = b },
	},
	FieldOTPSecret: {
		get: func(g *Graph, e *Entry) (*vault.Bundle, []byte) {
			if e.OTPBlockID == "" {
				return nil, nil
			}
			block, ok := g.OTPBlocks[e.OTPBlockID]
			if !ok || block == nil {
				return nil, nil
			}
			return block.Secret, OTPSecretAD(block.ID)
		},
	},
	FieldFingerprint: {
		get: func(_ *Graph, e *Entry) (*vault.Bundle, []byte) {
			if e.Security == nil {
				return nil, nil
			}
			return e.Security.Fingerprint, FieldAD(e.ID, FieldFingerprint)
		},
	},
}

func (k FieldKind) spec() (fieldSpec, error) {
	if k < 0 || int(k) >= len(fieldTable) {
		return fieldSpec{}, fmt.Errorf("%w: %d", ErrUnknownField, int(k))
	}
	return fieldTable[k], nil
}

// Settable reports whether the kind is an entry field callers may write and
// read directly. OTP secrets and fingerprints are owned by other structures.
func (k FieldKind) Settable() bool {
	spec, err := k.spec()
	return err == nil && spec.set != nil
}

func (k FieldKind) String() string {
	if k < 0 || int(k) >= len(fieldNames) {
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
	return fieldNames[k]
}

// ParseFieldKind maps a field name such as "password" to its kind.
func ParseFieldKind(name string) (FieldKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range fieldNames {
		if n == name {
			return FieldKind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownField, name)
}

// FieldAD is the associated data bound to an entry field.
func FieldAD(entryID string, kind FieldKind) []byte {
	return []byte("ENTR:field:" + entryID + ":" + kind.String())
}

// OTPSecretAD is the associated data bound to an OTP block secret.
func OTPSecretAD(blockID string) []byte {
	return []byte("ENTR:otp:" + blockID)
}

// FieldBundle resolves the bundle for an entry field together with the
// associated data it must have been sealed with.
func (g *Graph) FieldBundle(entryID string, kind FieldKind) (*vault.Bundle, []byte, error) {
	spec, err := kind.spec()
	if err != nil {
		return nil, nil, err
	}
	e, ok := g.Entries[entryID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	bundle, ad := spec.get(g, e)
	if bundle == nil {
		return nil, nil, fmt.Errorf("%w: %s of entry %s", ErrMissingCiphertext, kind, entryID)
	}
	return bundle, ad, nil
}

// HasField reports whether the entry carries ciphertext for kind. It never
// fails; unknown entries and kinds report false.
func (g *Graph) HasField(entryID string, kind FieldKind) bool {
	_, _, err := g.FieldBundle(entryID, kind)
	return err == nil
}

// DecryptField checks the field bundle's shape and associated data, then
// decrypts it. The caller owns the returned buffer.
func (g *Graph) DecryptField(engine *vault.Engine, key *secure.Buffer, entryID string, kind FieldKind) (*secure.Buffer, error) {
	bundle, ad, err := g.FieldBundle(entryID, kind)
	if err != nil {
		return nil, err
	}
	if err := vault.ValidateAEADBundle(bundle); err != nil {
		return nil, err
	}
	if !vault.ConstantTimeEqual(bundle.AssociatedData, ad) {
		return nil, vault.ErrDecryptionFailure
	}
	return engine.Decrypt(bundle, key)
}

// SealField encrypts plaintext for an entry field bound to the field's
// associated data and stores the bundle on the entry.
func SealField(engine *vault.Engine, key *secure.Buffer, e *Entry, kind FieldKind, plaintext []byte) error {
	spec, err := kind.spec()
	if err != nil {
		return err
	}
	if spec.set == nil {
		return fmt.Errorf("%w: %s", ErrFieldReadOnly, kind)
	}
	bundle, err := engine.Encrypt(plaintext, key, FieldAD(e.ID, kind))
	if err != nil {
		return err
	}
	spec.set(e, bundle)
	return nil
}

// ClearField drops the ciphertext for a settable field.
func ClearField(e *Entry, kind FieldKind) error {
	spec, err := kind.spec()
	if err != nil {
		return err
	}
	if spec.set == nil {
		return fmt.Errorf("%w: %s", ErrFieldReadOnly, kind)
	}
	spec.set(e, nil)
	return nil
}
