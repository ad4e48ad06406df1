package vault

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstantTimeEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b []byte
		want bool
	}{
		{"both empty", nil, []byte{}, true},
		{"equal", []byte("abc"), []byte("abc"), true},
		{"differ last byte", []byte("abc"), []byte("abd"), false},
		{"prefix", []byte("abc"), []byte("abcd"), false},
		{"longer first", []byte("abcd"), []byte("abc"), false},
		{"zero padded", []byte{1, 0}, []byte{1}, false},
		{"one empty", []byte{}, []byte{0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConstantTimeEqual(tt.a, tt.b))
		})
	}
}

func TestSHA256(t *testing.T) {
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		hex.EncodeToString(SHA256([]byte("abc"))))
	assert.Len(t, SHA256(nil), HashSize)
}

func TestHMACSHA256(t *testing.T) {
	// RFC 4231 test case 2
	mac := HMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"))
	assert.Equal(t,
		"5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843",
		hex.EncodeToString(mac))

	assert.True(t, VerifyHMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"), mac))
	assert.False(t, VerifyHMACSHA256([]byte("Jefe"), []byte("what do ya want for something?"), mac))
	assert.False(t, VerifyHMACSHA256([]byte("Jefe"), []byte("what do ya want for nothing?"), mac[:31]))
}

func TestValidateAEADBundle(t *testing.T) {
	tests := []struct {
		name    string
		bundle  *Bundle
		wantErr bool
	}{
		{"valid", &Bundle{Ciphertext: make([]byte, TagSize), Nonce: make([]byte, NonceSize)}, false},
		{"nil", nil, true},
		{"nonce 11", &Bundle{Ciphertext: make([]byte, 20), Nonce: make([]byte, 11)}, true},
		{"nonce 13", &Bundle{Ciphertext: make([]byte, 20), Nonce: make([]byte, 13)}, true},
		{"ciphertext 15", &Bundle{Ciphertext: make([]byte, 15), Nonce: make([]byte, NonceSize)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAEADBundle(tt.bundle)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLengthErrorMessage(t *testing.T) {
	err := lengthErr(ErrInvalidInput, "nonce", "12", 8)
	assert.Equal(t, "invalid input: nonce length 8, want 12", err.Error())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
