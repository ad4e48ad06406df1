package vault

import (
	"bytes"
	"testing"

	"github.com/vault-cli/entr/internal/secure"
)

func secureKey(fill byte) *secure.Buffer {
	return secure.New(bytes.Repeat([]byte{fill}, KeySize), secure.WipeOnRelease)
}

func FuzzDecodeContainer(f *testing.F) {
	h := NewHeader(testParams(), testNow)
	key := secureKey(0x11)
	defer key.Wipe()
	sealed, err := NewEngine().SealContainer(h, []byte(`{"entries":{}}`), key, testNow)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(sealed)
	f.Add([]byte(Magic))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		h, bundle, err := DecodeContainer(data)
		if err != nil {
			return
		}
		if h == nil || bundle == nil {
			t.Fatal("nil header or bundle without error")
		}
		if !ConstantTimeEqual(SHA256(bundle.Ciphertext), h.IntegrityHash) {
			t.Fatal("accepted container with mismatching hash")
		}
	})
}

func FuzzUnmarshalKeyBundle(f *testing.F) {
	kb, vk, err := NewKeyWrapper(NewEngine(), StubDeriver{}).CreateBundle([]byte("fuzzing-password"), testParams())
	if err != nil {
		f.Fatal(err)
	}
	vk.Wipe()
	data, err := MarshalKeyBundle(kb)
	if err != nil {
		f.Fatal(err)
	}
	f.Add(data)
	f.Add([]byte{KeyBundleVersion})

	f.Fuzz(func(t *testing.T, data []byte) {
		kb, err := UnmarshalKeyBundle(data)
		if err != nil {
			return
		}
		if _, err := MarshalKeyBundle(kb); err != nil {
			t.Fatalf("decoded bundle does not re-encode: %v", err)
		}
	})
}

func FuzzEngineRoundTrip(f *testing.F) {
	f.Add([]byte("secret"), []byte("ENTR:field:e:password"))
	f.Add([]byte{0}, []byte(nil))

	engine := NewEngine()
	f.Fuzz(func(t *testing.T, plaintext, ad []byte) {
		if len(plaintext) == 0 {
			return
		}
		key := secureKey(0x42)
		defer key.Wipe()

		b, err := engine.Encrypt(plaintext, key, ad)
		if err != nil {
			t.Fatal(err)
		}
		out, err := engine.Decrypt(b, key)
		if err != nil {
			t.Fatal(err)
		}
		defer out.Wipe()
		err = out.WithRead(func(p []byte) error {
			if !bytes.Equal(p, plaintext) {
				t.Fatal("round trip changed plaintext")
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})
}
