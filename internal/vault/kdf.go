package vault

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"

	"github.com/vault-cli/entr/internal/secure"
)

const (
	// AlgorithmArgon2id is the only KDF algorithm a vault may declare.
	AlgorithmArgon2id = "argon2id"

	// Default Argon2id parameters (tuned for ~300ms on modern hardware)
	DefaultArgon2Memory      = 64 * 1024 // 64 MB
	DefaultArgon2Iterations  = 3
	DefaultArgon2Parallelism = 4
	DefaultSaltLength        = 32

	// Parameter floors and ceilings
	MinArgon2Memory     = 19 * 1024
	MaxArgon2Memory     = 4 * 1024 * 1024
	MinArgon2Iterations = 2
	MaxArgon2Iterations = 100
	MinSaltLength       = 16
	MaxSaltLength       = 32
	OutputLength        = KeySize
)

// KDFParams holds the key derivation parameters. They are frozen per vault at
// creation and never upgraded in place.
type KDFParams struct {
	Algorithm    string `json:"algorithm" yaml:"algorithm"`
	MemoryKiB    uint32 `json:"memory_kib" yaml:"memory_kib"`
	Iterations   uint32 `json:"iterations" yaml:"iterations"`
	Parallelism  uint8  `json:"parallelism" yaml:"parallelism"`
	SaltLength   uint8  `json:"salt_length" yaml:"salt_length"`
	OutputLength uint32 `json:"output_length" yaml:"output_length"`
}

// DefaultKDFParams returns the default Argon2id parameters
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Algorithm:    AlgorithmArgon2id,
		MemoryKiB:    DefaultArgon2Memory,
		Iterations:   DefaultArgon2Iterations,
		Parallelism:  DefaultArgon2Parallelism,
		SaltLength:   DefaultSaltLength,
		OutputLength: OutputLength,
	}
}

// ValidateKDFParams checks parameters against the floors before any
// derivation work is done.
func ValidateKDFParams(p KDFParams) error {
	switch {
	case p.Algorithm != AlgorithmArgon2id:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidKDFParams, p.Algorithm)
	case p.MemoryKiB < MinArgon2Memory:
		return fmt.Errorf("%w: memory too low (minimum %d KiB)", ErrInvalidKDFParams, MinArgon2Memory)
	case p.MemoryKiB > MaxArgon2Memory:
		return fmt.Errorf("%w: memory too high (maximum %d KiB)", ErrInvalidKDFParams, MaxArgon2Memory)
	case p.Iterations < MinArgon2Iterations:
		return fmt.Errorf("%w: iterations too low (minimum %d)", ErrInvalidKDFParams, MinArgon2Iterations)
	case p.Iterations > MaxArgon2Iterations:
		return fmt.Errorf("%w: iterations too high (maximum %d)", ErrInvalidKDFParams, MaxArgon2Iterations)
	case p.Parallelism < 1:
		return fmt.Errorf("%w: parallelism too low (minimum 1)", ErrInvalidKDFParams)
	case p.SaltLength < MinSaltLength || p.SaltLength > MaxSaltLength:
		return fmt.Errorf("%w: salt length %d outside %d-%d", ErrInvalidKDFParams, p.SaltLength, MinSaltLength, MaxSaltLength)
	case p.OutputLength != OutputLength:
		return fmt.Errorf("%w: output length must be %d", ErrInvalidKDFParams, OutputLength)
	}
	return nil
}

// KeyDeriver turns a password and salt into a 32-byte master key.
type KeyDeriver interface {
	Name() string
	DeriveKey(password, salt []byte, params KDFParams) (*secure.Buffer, error)
}

// Argon2idDeriver is the production KeyDeriver.
type Argon2idDeriver struct {
	logger zerolog.Logger
}

// NewArgon2idDeriver creates an Argon2id deriver that reports unusual
// derivation times through logger.
func NewArgon2idDeriver(logger zerolog.Logger) *Argon2idDeriver {
	return &Argon2idDeriver{logger: logger}
}

// Name returns the strategy name.
func (d *Argon2idDeriver) Name() string { return AlgorithmArgon2id }

// DeriveKey derives a key from a password using Argon2id
func (d *Argon2idDeriver) DeriveKey(password, salt []byte, params KDFParams) (*secure.Buffer, error) {
	if err := checkDeriveInput(salt, params); err != nil {
		return nil, err
	}

	start := time.Now()
	key := argon2.IDKey(password, salt, params.Iterations, params.MemoryKiB, params.Parallelism, params.OutputLength)
	defer secure.Zeroize(key)
	duration := time.Since(start)

	// Should be 200-500ms
	if duration < 100*time.Millisecond {
		d.logger.Warn().Dur("duration", duration).Msg("key derivation was fast, consider increasing parameters")
	} else if duration > time.Second {
		d.logger.Warn().Dur("duration", duration).Msg("key derivation was slow, consider decreasing parameters")
	}

	return secure.New(key, secure.WipeOnRelease), nil
}

// StubDeriver is a cheap deterministic deriver (HKDF-SHA256) for tests and
// tooling. It honours the same parameter validation as Argon2id but does no
// password hardening, so it must never protect real data.
type StubDeriver struct{}

// Name returns the strategy name.
func (StubDeriver) Name() string { return "stub" }

// DeriveKey expands password and salt with HKDF, binding the parameters.
func (StubDeriver) DeriveKey(password, salt []byte, params KDFParams) (*secure.Buffer, error) {
	if err := checkDeriveInput(salt, params); err != nil {
		return nil, err
	}

	info := make([]byte, 0, 32)
	info = append(info, "ENTR:stub-kdf:"...)
	info = binary.BigEndian.AppendUint32(info, params.MemoryKiB)
	info = binary.BigEndian.AppendUint32(info, params.Iterations)
	info = append(info, params.Parallelism)

	key := make([]byte, params.OutputLength)
	defer secure.Zeroize(key)
	if _, err := io.ReadFull(hkdf.New(sha256.New, password, salt, info), key); err != nil {
		return nil, fmt.Errorf("stub derivation failed: %w", err)
	}

	return secure.New(key, secure.WipeOnRelease), nil
}

func checkDeriveInput(salt []byte, params KDFParams) error {
	if err := ValidateKDFParams(params); err != nil {
		return err
	}
	if len(salt) != int(params.SaltLength) {
		return lengthErr(ErrInvalidKDFParams, "salt", fmt.Sprintf("%d", params.SaltLength), len(salt))
	}
	return nil
}

// BenchmarkKDF measures the time taken for key derivation with given parameters
func BenchmarkKDF(params KDFParams, password, salt []byte) time.Duration {
	start := time.Now()
	key := argon2.IDKey(password, salt, params.Iterations, params.MemoryKiB, params.Parallelism, OutputLength)
	secure.Zeroize(key)
	return time.Since(start)
}

// DeriverByName returns the KeyDeriver for a configured strategy name.
func DeriverByName(name string, logger zerolog.Logger) (KeyDeriver, error) {
	switch name {
	case "", AlgorithmArgon2id:
		return NewArgon2idDeriver(logger), nil
	case "stub":
		return StubDeriver{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown KDF strategy %q", ErrInvalidKDFParams, name)
	}
}

// TuneKDFParams starts from the defaults and adjusts iterations, then memory,
// until one derivation takes roughly target. The result always passes
// ValidateKDFParams.
func TuneKDFParams(target time.Duration) KDFParams {
	params := DefaultKDFParams()
	password := []byte("entr-kdf-calibration")
	salt := make([]byte, params.SaltLength)

	duration := BenchmarkKDF(params, password, salt)
	if duration < target {
		for duration < target && params.Iterations < 10 {
			params.Iterations++
			duration = BenchmarkKDF(params, password, salt)
		}
		for duration < target && params.MemoryKiB < 256*1024 {
			params.MemoryKiB += 16 * 1024
			duration = BenchmarkKDF(params, password, salt)
		}
	} else if duration > target*2 {
		for duration > target*2 && params.Iterations > MinArgon2Iterations {
			params.Iterations--
			duration = BenchmarkKDF(params, password, salt)
		}
		for duration > target*2 && params.MemoryKiB-8*1024 >= MinArgon2Memory {
			params.MemoryKiB -= 8 * 1024
			duration = BenchmarkKDF(params, password, salt)
		}
	}
	return params
}
