package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/vault-cli/entr/internal/secure"
)

const (
	// Crypto constants
	KeySize   = 32 // AES-256 key size
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM tag size

	// EncryptionMethod is the only cipher this engine writes or accepts.
	EncryptionMethod = "AES-256-GCM"
)

// Bundle is the output of one AEAD encryption: ciphertext with the tag
// appended, the nonce, and the optional associated data it was bound to.
type Bundle struct {
	Ciphertext     []byte `json:"ciphertext"`
	Nonce          []byte `json:"nonce"`
	AssociatedData []byte `json:"associated_data,omitempty"`
}

// Clone returns a deep copy of the bundle.
func (b *Bundle) Clone() *Bundle {
	if b == nil {
		return nil
	}
	return &Bundle{
		Ciphertext:     append([]byte(nil), b.Ciphertext...),
		Nonce:          append([]byte(nil), b.Nonce...),
		AssociatedData: cloneOptional(b.AssociatedData),
	}
}

func cloneOptional(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}

// Engine handles AES-256-GCM operations. It holds no key material and is safe
// for concurrent use.
type Engine struct {
	rand io.Reader
}

// NewEngine creates an engine that draws nonces from crypto/rand.
func NewEngine() *Engine {
	return &Engine{rand: rand.Reader}
}

// NewEngineWithRand creates an engine with an explicit nonce source.
func NewEngineWithRand(r io.Reader) *Engine {
	if r == nil {
		r = rand.Reader
	}
	return &Engine{rand: r}
}

// GenerateNonce creates a fresh random nonce
func (e *Engine) GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(e.rand, nonce); err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrRandomnessFailure, err)
	}
	return nonce, nil
}

// Encrypt seals plaintext under key, binding the optional associated data.
// Every call draws a new random nonce.
func (e *Engine) Encrypt(plaintext []byte, key *secure.Buffer, ad []byte) (*Bundle, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrInvalidInput)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrInvalidInput)
	}

	nonce, err := e.GenerateNonce()
	if err != nil {
		return nil, err
	}

	var sealed []byte
	err = key.WithRead(func(k []byte) error {
		gcm, err := newGCM(k)
		if err != nil {
			return err
		}
		sealed = gcm.Seal(nil, nonce, plaintext, ad)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(sealed) < TagSize {
		return nil, ErrEncryptionFailure
	}

	return &Bundle{
		Ciphertext:     sealed,
		Nonce:          nonce,
		AssociatedData: cloneOptional(ad),
	}, nil
}

// EncryptBuffer seals the contents of a secure buffer without copying them
// outside the callback.
func (e *Engine) EncryptBuffer(src *secure.Buffer, key *secure.Buffer, ad []byte) (*Bundle, error) {
	var bundle *Bundle
	err := src.WithRead(func(p []byte) error {
		var err error
		bundle, err = e.Encrypt(p, key, ad)
		return err
	})
	if err != nil {
		return nil, err
	}
	return bundle, nil
}

// Decrypt opens a bundle with key and returns the plaintext in a buffer the
// caller owns. Shape is validated before the key is touched; all
// authentication failures surface as ErrDecryptionFailure.
func (e *Engine) Decrypt(bundle *Bundle, key *secure.Buffer) (*secure.Buffer, error) {
	return e.DecryptWithPolicy(bundle, key, secure.WipeOnRelease)
}

// DecryptWithPolicy is Decrypt with an explicit wipe policy for the result.
func (e *Engine) DecryptWithPolicy(bundle *Bundle, key *secure.Buffer, policy secure.Policy) (*secure.Buffer, error) {
	if err := ValidateAEADBundle(bundle); err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("%w: nil key", ErrInvalidInput)
	}

	var out *secure.Buffer
	err := key.WithRead(func(k []byte) error {
		gcm, err := newGCM(k)
		if err != nil {
			return err
		}
		plaintext, err := gcm.Open(nil, bundle.Nonce, bundle.Ciphertext, bundle.AssociatedData)
		if err != nil {
			return ErrDecryptionFailure
		}
		defer secure.Zeroize(plaintext)
		if len(plaintext) == 0 {
			return ErrDecryptionFailure
		}
		out = secure.New(plaintext, policy)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, lengthErr(ErrInvalidInput, "key", "32", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
