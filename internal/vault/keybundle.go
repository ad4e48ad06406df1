package vault

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/vault-cli/entr/internal/secure"
)

// DefaultMinPasswordLength is the password policy floor for new bundles.
const DefaultMinPasswordLength = 12

var keyWrapAD = []byte("ENTR:keywrap")

// KeyBundle is the only durable form of vault key material: the vault key
// wrapped under a password-derived master key.
type KeyBundle struct {
	KDF        KDFParams `json:"kdf"`
	Salt       []byte    `json:"salt"`
	WrappedKey *Bundle   `json:"wrapped_key"`
}

// KeyWrapper creates key bundles and recovers vault keys from them.
type KeyWrapper struct {
	engine            *Engine
	deriver           KeyDeriver
	rand              io.Reader
	minPasswordLength int
}

// WrapperOption configures a KeyWrapper.
type WrapperOption func(*KeyWrapper)

// WithMinPasswordLength overrides the password length policy.
func WithMinPasswordLength(n int) WrapperOption {
	return func(w *KeyWrapper) { w.minPasswordLength = n }
}

// WithRandom sets the source for salts and vault keys.
func WithRandom(r io.Reader) WrapperOption {
	return func(w *KeyWrapper) { w.rand = r }
}

// NewKeyWrapper creates a KeyWrapper using engine for wrapping and deriver
// for master key derivation.
func NewKeyWrapper(engine *Engine, deriver KeyDeriver, opts ...WrapperOption) *KeyWrapper {
	w := &KeyWrapper{
		engine:            engine,
		deriver:           deriver,
		rand:              rand.Reader,
		minPasswordLength: DefaultMinPasswordLength,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Deriver returns the configured derivation strategy.
func (w *KeyWrapper) Deriver() KeyDeriver {
	return w.deriver
}

// CreateBundle derives a master key from password with a fresh salt,
// generates a random vault key and wraps it. The caller owns the returned
// vault key and must release it.
func (w *KeyWrapper) CreateBundle(password []byte, params KDFParams) (*KeyBundle, *secure.Buffer, error) {
	if len(password) < w.minPasswordLength {
		return nil, nil, fmt.Errorf("%w: minimum %d characters", ErrInvalidPassword, w.minPasswordLength)
	}
	if err := ValidateKDFParams(params); err != nil {
		return nil, nil, err
	}

	salt := make([]byte, params.SaltLength)
	if _, err := io.ReadFull(w.rand, salt); err != nil {
		return nil, nil, fmt.Errorf("%w: salt: %v", ErrRandomnessFailure, err)
	}

	master, err := w.deriver.DeriveKey(password, salt, params)
	if err != nil {
		return nil, nil, err
	}
	defer master.Wipe()

	vaultKey, err := secure.NewRandom(w.rand, KeySize, secure.WipeOnRelease)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: vault key: %v", ErrRandomnessFailure, err)
	}

	wrapped, err := w.engine.EncryptBuffer(vaultKey, master, keyWrapAD)
	if err != nil {
		vaultKey.Wipe()
		return nil, nil, err
	}

	return &KeyBundle{KDF: params, Salt: salt, WrappedKey: wrapped}, vaultKey, nil
}

// RecoverVaultKey re-derives the master key from the bundle's salt and
// parameters and unwraps the vault key. A structurally invalid bundle fails
// with ErrInvalidKeyBundle; every other failure is ErrUnwrapFailed.
func (w *KeyWrapper) RecoverVaultKey(bundle *KeyBundle, password []byte) (*secure.Buffer, error) {
	if err := ValidateKeyBundle(bundle); err != nil {
		return nil, err
	}

	master, err := w.deriver.DeriveKey(password, bundle.Salt, bundle.KDF)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	defer master.Wipe()

	if !ConstantTimeEqual(bundle.WrappedKey.AssociatedData, keyWrapAD) {
		return nil, ErrUnwrapFailed
	}

	vaultKey, err := w.engine.Decrypt(bundle.WrappedKey, master)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	if vaultKey.Len() != KeySize {
		vaultKey.Wipe()
		return nil, ErrUnwrapFailed
	}
	return vaultKey, nil
}

// Rewrap recovers the vault key with oldPassword and wraps the same key
// under newPassword with a fresh salt and params.
func (w *KeyWrapper) Rewrap(bundle *KeyBundle, oldPassword, newPassword []byte, params KDFParams) (*KeyBundle, error) {
	if len(newPassword) < w.minPasswordLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrInvalidPassword, w.minPasswordLength)
	}
	if err := ValidateKDFParams(params); err != nil {
		return nil, err
	}

	vaultKey, err := w.RecoverVaultKey(bundle, oldPassword)
	if err != nil {
		return nil, err
	}
	defer vaultKey.Wipe()

	return w.WrapVaultKey(vaultKey, newPassword, params)
}

// WrapVaultKey wraps an existing vault key under password with a new salt.
func (w *KeyWrapper) WrapVaultKey(vaultKey *secure.Buffer, password []byte, params KDFParams) (*KeyBundle, error) {
	if vaultKey == nil {
		return nil, errors.New("vault key is nil")
	}

	salt := make([]byte, params.SaltLength)
	if _, err := io.ReadFull(w.rand, salt); err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrRandomnessFailure, err)
	}

	master, err := w.deriver.DeriveKey(password, salt, params)
	if err != nil {
		return nil, err
	}
	defer master.Wipe()

	wrapped, err := w.engine.EncryptBuffer(vaultKey, master, keyWrapAD)
	if err != nil {
		return nil, err
	}
	return &KeyBundle{KDF: params, Salt: salt, WrappedKey: wrapped}, nil
}
