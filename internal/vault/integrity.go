package vault

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
)

// HashSize is the length of the container integrity hash.
const HashSize = sha256.Size

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// ConstantTimeEqual compares a and b without short-circuiting. It always walks
// the full length of the longer input, so timing depends only on lengths.
func ConstantTimeEqual(a, b []byte) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	var diff byte
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		diff |= x ^ y
	}

	sameLen := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	return subtle.ConstantTimeByteEq(diff, 0)&sameLen == 1
}

// HMACSHA256 computes HMAC-SHA256(key, data).
func HMACSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMACSHA256 checks tag against HMAC-SHA256(key, data) in constant time.
func VerifyHMACSHA256(key, data, tag []byte) bool {
	return ConstantTimeEqual(HMACSHA256(key, data), tag)
}

// ValidateAEADBundle checks the shape of a bundle before any key material is
// involved.
func ValidateAEADBundle(b *Bundle) error {
	if b == nil {
		return fmt.Errorf("%w: nil bundle", ErrInvalidInput)
	}
	if len(b.Nonce) != NonceSize {
		return lengthErr(ErrInvalidInput, "nonce", "12", len(b.Nonce))
	}
	if len(b.Ciphertext) < TagSize {
		return lengthErr(ErrInvalidInput, "ciphertext", ">= 16", len(b.Ciphertext))
	}
	return nil
}

// ValidateKeyBundle checks parameters, salt length and wrapped key shape.
func ValidateKeyBundle(kb *KeyBundle) error {
	if kb == nil {
		return fmt.Errorf("%w: nil bundle", ErrInvalidKeyBundle)
	}
	if err := ValidateKDFParams(kb.KDF); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyBundle, err)
	}
	if len(kb.Salt) != int(kb.KDF.SaltLength) {
		return lengthErr(ErrInvalidKeyBundle, "salt", fmt.Sprintf("%d", kb.KDF.SaltLength), len(kb.Salt))
	}
	if err := ValidateAEADBundle(kb.WrappedKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKeyBundle, err)
	}
	if len(kb.WrappedKey.Ciphertext) != KeySize+TagSize {
		return lengthErr(ErrInvalidKeyBundle, "wrapped key", fmt.Sprintf("%d", KeySize+TagSize), len(kb.WrappedKey.Ciphertext))
	}
	return nil
}
