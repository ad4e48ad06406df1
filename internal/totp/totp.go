// Package totp derives RFC 6238 time-based one-time codes from OTP blocks
// whose secrets are stored encrypted in the vault.
package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/secure"
	"github.com/vault-cli/entr/internal/vault"
)

// MinSecretLength is the shortest accepted raw secret (80 bits).
const MinSecretLength = 10

var (
	ErrInvalidSecret = errors.New("invalid OTP secret")
	ErrInvalidTime   = errors.New("time before unix epoch")
)

var pow10 = [...]uint64{1, 10, 100, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10}

func hashFor(alg domain.OTPAlgorithm) (func() hash.Hash, error) {
	switch alg {
	case domain.OTPSHA1:
		return sha1.New, nil
	case domain.OTPSHA256:
		return sha256.New, nil
	case domain.OTPSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("%w: algorithm %q", domain.ErrInvalidOTPBlock, alg)
	}
}

// ParseAlgorithm accepts "sha1", "SHA-256" and similar spellings.
func ParseAlgorithm(s string) (domain.OTPAlgorithm, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	switch alg := domain.OTPAlgorithm(norm); alg {
	case domain.OTPSHA1, domain.OTPSHA256, domain.OTPSHA512:
		return alg, nil
	case "":
		return domain.OTPSHA1, nil
	}
	return "", fmt.Errorf("%w: algorithm %q", domain.ErrInvalidOTPBlock, s)
}

// ParseBase32Secret decodes the base32 secret users copy from enrolment
// pages. Spaces, dashes, lower case and missing padding are tolerated.
func ParseBase32Secret(s string) ([]byte, error) {
	clean := strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(s))
	clean = strings.TrimRight(clean, "=")
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: not base32", ErrInvalidSecret)
	}
	if len(raw) < MinSecretLength {
		secure.Zeroize(raw)
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrInvalidSecret, len(raw), MinSecretLength)
	}
	return raw, nil
}

// Counter returns floor(unix(at) / period).
func Counter(at time.Time, period int) (uint64, error) {
	unix := at.Unix()
	if unix < 0 {
		return 0, ErrInvalidTime
	}
	return uint64(unix) / uint64(period), nil
}

// Remaining returns the time left before the code for at rolls over.
func Remaining(block *domain.OTPBlock, at time.Time) time.Duration {
	period := time.Duration(block.Period) * time.Second
	elapsed := time.Duration(at.UnixNano()) % period
	if elapsed < 0 {
		elapsed += period
	}
	return period - elapsed
}

// HOTP computes the RFC 4226 code for counter.
func HOTP(secret []byte, counter uint64, digits int, alg domain.OTPAlgorithm) (string, error) {
	newHash, err := hashFor(alg)
	if err != nil {
		return "", err
	}
	if digits < domain.MinOTPDigits || digits > domain.MaxOTPDigits {
		return "", fmt.Errorf("%w: digits %d", domain.ErrInvalidOTPBlock, digits)
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(newHash, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)
	defer secure.Zeroize(sum)

	return truncate(sum, digits), nil
}

// truncate applies RFC 4226 dynamic truncation. An offset that would read
// past the MAC can only come from a broken hash selection and panics.
func truncate(mac []byte, digits int) string {
	offset := int(mac[len(mac)-1] & 0x0f)
	if offset+4 > len(mac) {
		panic(fmt.Sprintf("totp: truncation offset %d out of range for %d-byte MAC", offset, len(mac)))
	}
	value := binary.BigEndian.Uint32(mac[offset:offset+4]) & 0x7fffffff
	return fmt.Sprintf("%0*d", digits, uint64(value)%pow10[digits])
}

// SealSecret encrypts a raw OTP secret for the block with the given id.
func SealSecret(engine *vault.Engine, key *secure.Buffer, blockID string, secret []byte) (*vault.Bundle, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: %d bytes, want at least %d", ErrInvalidSecret, len(secret), MinSecretLength)
	}
	return engine.Encrypt(secret, key, domain.OTPSecretAD(blockID))
}

// NewBlock validates the parameters and builds an OTP block holding secret
// encrypted under key.
func NewBlock(engine *vault.Engine, key *secure.Buffer, secret []byte, alg domain.OTPAlgorithm, digits, period int) (*domain.OTPBlock, error) {
	block := &domain.OTPBlock{
		ID:        domain.NewID(),
		Algorithm: alg,
		Digits:    digits,
		Period:    period,
	}
	if err := block.Validate(); err != nil {
		return nil, err
	}

	sealed, err := SealSecret(engine, key, block.ID, secret)
	if err != nil {
		return nil, err
	}
	block.Secret = sealed
	return block, nil
}

// openSecret validates the block and decrypts its secret.
func openSecret(engine *vault.Engine, block *domain.OTPBlock, key *secure.Buffer) (*secure.Buffer, error) {
	if err := block.Validate(); err != nil {
		return nil, err
	}
	if err := vault.ValidateAEADBundle(block.Secret); err != nil {
		return nil, err
	}
	if !vault.ConstantTimeEqual(block.Secret.AssociatedData, domain.OTPSecretAD(block.ID)) {
		return nil, vault.ErrDecryptionFailure
	}
	return engine.DecryptWithPolicy(block.Secret, key, secure.WipeAfterFirstRead)
}

// Generate returns the code for block at the given time.
func Generate(engine *vault.Engine, block *domain.OTPBlock, at time.Time, key *secure.Buffer) (string, error) {
	if err := block.Validate(); err != nil {
		return "", err
	}
	counter, err := Counter(at, block.Period)
	if err != nil {
		return "", err
	}

	secret, err := openSecret(engine, block, key)
	if err != nil {
		return "", err
	}
	defer secret.Wipe()

	var code string
	err = secret.WithRead(func(s []byte) error {
		var herr error
		code, herr = HOTP(s, counter, block.Digits, block.Algorithm)
		return herr
	})
	return code, err
}

// Validate reports whether code matches the block within skew periods on
// either side of at. Codes are compared in constant time.
func Validate(engine *vault.Engine, block *domain.OTPBlock, code string, at time.Time, key *secure.Buffer, skew int) (bool, error) {
	if skew < 0 {
		skew = 0
	}
	if err := block.Validate(); err != nil {
		return false, err
	}
	if len(code) != block.Digits {
		return false, nil
	}
	counter, err := Counter(at, block.Period)
	if err != nil {
		return false, err
	}

	secret, err := openSecret(engine, block, key)
	if err != nil {
		return false, err
	}
	defer secret.Wipe()

	matched := false
	err = secret.WithRead(func(s []byte) error {
		for delta := -skew; delta <= skew; delta++ {
			if delta < 0 && uint64(-delta) > counter {
				continue
			}
			candidate, herr := HOTP(s, counter+uint64(delta), block.Digits, block.Algorithm)
			if herr != nil {
				return herr
			}
			if vault.ConstantTimeEqual([]byte(candidate), []byte(code)) {
				matched = true
			}
		}
		return nil
	})
	return matched, err
}
