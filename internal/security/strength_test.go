package security

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssess(t *testing.T) {
	tests := []struct {
		password string
		want     Strength
	}{
		{"", StrengthWeak},
		{"aaaaaaaaaaaaaaaa", StrengthWeak},
		{"password1", StrengthFair},
		{"Tr0ub4dor&3", StrengthGood},
		{"Correct-Horse-Battery-Staple", StrengthStrong},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			a := Assess([]byte(tt.password))
			assert.Equal(t, tt.want, a.Strength, "entropy %.2f", a.EntropyBits)
			assert.GreaterOrEqual(t, a.Score, 0)
			assert.LessOrEqual(t, a.Score, 100)
		})
	}
}

func TestAssess_RepeatsDoNotCount(t *testing.T) {
	assert.Equal(t, Assess([]byte("ab")).EntropyBits, Assess([]byte("aaabbb")).EntropyBits)
}

func TestAssess_NonASCII(t *testing.T) {
	a := Assess([]byte("пароль-пароль"))
	assert.Greater(t, a.EntropyBits, 0.0)
}

func TestAssessEntropy(t *testing.T) {
	assert.Equal(t, StrengthWeak, AssessEntropy(39.9).Strength)
	assert.Equal(t, StrengthFair, AssessEntropy(40).Strength)
	assert.Equal(t, StrengthGood, AssessEntropy(60).Strength)
	assert.Equal(t, StrengthStrong, AssessEntropy(80).Strength)
	assert.Equal(t, 100, AssessEntropy(500).Score)
	assert.Equal(t, 50, AssessEntropy(64).Score)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t,
		"5e884898da28047151d0e56f8dc6292773603d0d6aabbdd62a11ef721d1542d8",
		hex.EncodeToString(Fingerprint([]byte("password"))))
}
