// Package security scores and generates passwords. Scores are computed from
// the plaintext once, when a password is set, and only the result is kept.
package security

import (
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/vault-cli/entr/internal/vault"
)

// Strength buckets an entropy estimate.
type Strength string

const (
	StrengthWeak   Strength = "weak"
	StrengthFair   Strength = "fair"
	StrengthGood   Strength = "good"
	StrengthStrong Strength = "strong"
)

// Bucket thresholds in bits
const (
	fairBits   = 40
	goodBits   = 60
	strongBits = 80
	maxBits    = 128
)

// Assessment is the outcome of Assess.
type Assessment struct {
	Strength    Strength
	Score       int
	EntropyBits float64
}

// Assess estimates the entropy of password as effective length times
// log2(pool size), where the pool is the union of the character classes
// present. Immediate repeats do not add length.
func Assess(password []byte) Assessment {
	var lower, upper, digit, symbol, other bool
	var prev rune = -1
	effective := 0

	for i := 0; i < len(password); {
		r, size := utf8.DecodeRune(password[i:])
		i += size

		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case r < utf8.RuneSelf && unicode.IsPrint(r):
			symbol = true
		default:
			other = true
		}

		if r != prev {
			effective++
		}
		prev = r
	}

	pool := 0
	if lower {
		pool += 26
	}
	if upper {
		pool += 26
	}
	if digit {
		pool += 10
	}
	if symbol {
		pool += 33
	}
	if other {
		pool += 100
	}

	var bits float64
	if pool > 1 {
		bits = float64(effective) * math.Log2(float64(pool))
	}
	return AssessEntropy(bits)
}

// AssessEntropy buckets a known entropy, such as that of a generated password.
func AssessEntropy(bits float64) Assessment {
	a := Assessment{EntropyBits: math.Round(bits*100) / 100}
	a.Score = int(math.Min(bits, maxBits) * 100 / maxBits)

	switch {
	case bits >= strongBits:
		a.Strength = StrengthStrong
	case bits >= goodBits:
		a.Strength = StrengthGood
	case bits >= fairBits:
		a.Strength = StrengthFair
	default:
		a.Strength = StrengthWeak
	}
	return a
}

// Fingerprint is the SHA-256 of a password, used to detect reuse across
// entries. It is sealed like any other field before it is stored.
func Fingerprint(password []byte) []byte {
	return vault.SHA256(password)
}
