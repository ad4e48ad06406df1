package security

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
)

// Charset defines the character set to use for password generation
type Charset string

const (
	// CharsetAlpha uses only alphabetic characters (a-z, A-Z)
	CharsetAlpha Charset = "alpha"
	// CharsetAlnum uses alphanumeric characters (a-z, A-Z, 0-9)
	CharsetAlnum Charset = "alnum"
	// CharsetAlnumSym adds punctuation to CharsetAlnum
	CharsetAlnumSym Charset = "alnumsym"
)

var (
	ErrInvalidLength  = errors.New("length must be positive")
	ErrUnknownCharset = errors.New("unknown charset")
)

var charsetLookup = map[Charset][]byte{
	CharsetAlpha:    []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"),
	CharsetAlnum:    []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"),
	CharsetAlnumSym: []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%^&*()-_=+[]{}<>?,.:;/'\"|\\~"),
}

var dicewareAdjectives = []string{
	"able", "amber", "brave", "calm", "clever", "crisp", "daring", "eager", "early", "fancy", "gentle", "happy", "ideal", "jolly", "keen", "lively", "magic", "noble", "oaken", "pearl", "quick", "ready", "solar", "tidy", "urban", "vivid", "warm", "young", "zesty", "bright", "candid", "dazzle", "elegant", "friendly", "glossy", "humble",
}

var dicewareNouns = []string{
	"anchor", "beacon", "canyon", "dream", "ember", "forest", "galaxy", "harbor", "island", "jungle", "kingdom", "lantern", "meadow", "nebula", "ocean", "prairie", "quartz", "river", "summit", "temple", "unicorn", "valley", "willow", "xenon", "yonder", "zephyr", "apple", "bridge", "comet", "dragon", "feather", "garden", "horizon", "idol", "jade", "keeper", "legend",
}

var (
	dicewareList []string
	dicewareOnce sync.Once
)

// Generator produces random passwords and passphrases. The zero value is not
// usable; construct with NewGenerator.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading from r, or crypto/rand when r is nil.
func NewGenerator(r io.Reader) *Generator {
	if r == nil {
		r = rand.Reader
	}
	return &Generator{rand: r}
}

// Password returns length characters drawn uniformly from charset. The result
// is a byte slice so callers can zero it once it has been sealed.
func (g *Generator) Password(length int, charset Charset) ([]byte, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	chars, ok := charsetLookup[charset]
	if !ok {
		return nil, ErrUnknownCharset
	}

	out := make([]byte, length)
	for i := range out {
		idx, err := randomIndex(g.rand, len(chars))
		if err != nil {
			return nil, err
		}
		out[i] = chars[idx]
	}
	return out, nil
}

// Passphrase joins wordCount random adjective-noun pairs with sep.
func (g *Generator) Passphrase(wordCount int, sep string) ([]byte, error) {
	if wordCount <= 0 {
		return nil, ErrInvalidLength
	}

	words := dicewareWords()
	parts := make([]string, wordCount)
	for i := range parts {
		idx, err := randomIndex(g.rand, len(words))
		if err != nil {
			return nil, err
		}
		parts[i] = words[idx]
	}
	return []byte(strings.Join(parts, sep)), nil
}

// GeneratedEntropy is the exact entropy in bits of a Password result.
func GeneratedEntropy(length int, charset Charset) float64 {
	chars, ok := charsetLookup[charset]
	if !ok || length <= 0 {
		return 0
	}
	return float64(length) * math.Log2(float64(len(chars)))
}

// PassphraseEntropy is the exact entropy in bits of a Passphrase result.
func PassphraseEntropy(wordCount int) float64 {
	if wordCount <= 0 {
		return 0
	}
	return float64(wordCount) * math.Log2(float64(len(dicewareWords())))
}

func dicewareWords() []string {
	dicewareOnce.Do(func() {
		merged := make([]string, 0, len(dicewareAdjectives)*len(dicewareNouns))
		for _, adj := range dicewareAdjectives {
			for _, noun := range dicewareNouns {
				merged = append(merged, adj+"-"+noun)
			}
		}
		dicewareList = merged
	})
	return dicewareList
}

// randomIndex returns a uniform value in [0, max) using rejection sampling.
func randomIndex(r io.Reader, max int) (int, error) {
	if max <= 0 || max > 65536 {
		return 0, ErrInvalidLength
	}

	if max <= 256 {
		var buf [1]byte
		usable := 256 - (256 % max)
		for {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, err
			}
			if int(buf[0]) < usable {
				return int(buf[0]) % max, nil
			}
		}
	}

	var buf [2]byte
	usable := 65536 - (65536 % max)
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		val := int(binary.BigEndian.Uint16(buf[:]))
		if val < usable {
			return val % max, nil
		}
	}
}
