package vault

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// KeyBundleVersion is the leading byte of a serialized key bundle.
const KeyBundleVersion = 1

var errShortRead = errors.New("short read")

// wireReader walks a big-endian byte slice and remembers the first failure.
type wireReader struct {
	data []byte
	off  int
}

func (r *wireReader) remaining() int { return len(r.data) - r.off }

func (r *wireReader) next(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, errShortRead
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *wireReader) u8() (uint8, error) {
	b, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *wireReader) u16() (uint16, error) {
	b, err := r.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *wireReader) u32() (uint32, error) {
	b, err := r.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *wireReader) i64() (int64, error) {
	b, err := r.next(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// shortBytes reads a u8 length prefix followed by that many bytes.
func (r *wireReader) shortBytes() ([]byte, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	b, err := r.next(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// longBytes reads a u32 length prefix followed by that many bytes.
func (r *wireReader) longBytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(r.remaining()) {
		return nil, errShortRead
	}
	b, err := r.next(int(n))
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func appendShortBytes(buf, b []byte) []byte {
	buf = append(buf, uint8(len(b)))
	return append(buf, b...)
}

func appendLongBytes(buf, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func appendKDFParams(buf []byte, p KDFParams) []byte {
	buf = appendShortBytes(buf, []byte(p.Algorithm))
	buf = binary.BigEndian.AppendUint32(buf, p.MemoryKiB)
	buf = binary.BigEndian.AppendUint32(buf, p.Iterations)
	buf = append(buf, p.Parallelism, p.SaltLength)
	return buf
}

func readKDFParams(r *wireReader) (KDFParams, error) {
	var p KDFParams
	alg, err := r.shortBytes()
	if err != nil {
		return p, err
	}
	if p.MemoryKiB, err = r.u32(); err != nil {
		return p, err
	}
	if p.Iterations, err = r.u32(); err != nil {
		return p, err
	}
	if p.Parallelism, err = r.u8(); err != nil {
		return p, err
	}
	if p.SaltLength, err = r.u8(); err != nil {
		return p, err
	}
	p.Algorithm = string(alg)
	p.OutputLength = OutputLength
	return p, nil
}

// MarshalBundle serializes an AEAD bundle:
// ct_len u32 | ct | nonce_len u8 | nonce | has_ad u8 | [ad_len u32 | ad]
func MarshalBundle(b *Bundle) []byte {
	size := 4 + len(b.Ciphertext) + 1 + len(b.Nonce) + 1
	if b.AssociatedData != nil {
		size += 4 + len(b.AssociatedData)
	}

	buf := make([]byte, 0, size)
	buf = appendLongBytes(buf, b.Ciphertext)
	buf = appendShortBytes(buf, b.Nonce)
	if b.AssociatedData == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	return appendLongBytes(buf, b.AssociatedData)
}

// UnmarshalBundle parses a bundle that must occupy all of data.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	r := &wireReader{data: data}
	b, err := readBundle(r)
	if err != nil {
		return nil, err
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d bytes after bundle", ErrTrailingData, r.remaining())
	}
	return b, nil
}

func readBundle(r *wireReader) (*Bundle, error) {
	ct, err := r.longBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext", ErrPayloadTruncated)
	}
	nonce, err := r.shortBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: nonce", ErrPayloadTruncated)
	}
	flag, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("%w: associated data flag", ErrPayloadTruncated)
	}

	b := &Bundle{Ciphertext: ct, Nonce: nonce}
	switch flag {
	case 0:
	case 1:
		ad, err := r.longBytes()
		if err != nil {
			return nil, fmt.Errorf("%w: associated data", ErrPayloadTruncated)
		}
		if ad == nil {
			ad = []byte{}
		}
		b.AssociatedData = ad
	default:
		return nil, fmt.Errorf("%w: associated data flag %d", ErrInvalidInput, flag)
	}
	return b, nil
}

// MarshalKeyBundle serializes a key bundle:
// version u8 | kdf params | salt (u8 len) | AEAD bundle
func MarshalKeyBundle(kb *KeyBundle) ([]byte, error) {
	if err := ValidateKeyBundle(kb); err != nil {
		return nil, err
	}
	buf := []byte{KeyBundleVersion}
	buf = appendKDFParams(buf, kb.KDF)
	buf = appendShortBytes(buf, kb.Salt)
	return append(buf, MarshalBundle(kb.WrappedKey)...), nil
}

// UnmarshalKeyBundle parses and validates a serialized key bundle.
func UnmarshalKeyBundle(data []byte) (*KeyBundle, error) {
	r := &wireReader{data: data}

	version, err := r.u8()
	if err != nil {
		return nil, fmt.Errorf("%w: empty", ErrInvalidKeyBundle)
	}
	if version != KeyBundleVersion {
		return nil, fmt.Errorf("%w: version %d", ErrInvalidKeyBundle, version)
	}

	params, err := readKDFParams(r)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated KDF params", ErrInvalidKeyBundle)
	}
	salt, err := r.shortBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: truncated salt", ErrInvalidKeyBundle)
	}
	wrapped, err := readBundle(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBundle, err)
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyBundle, ErrTrailingData)
	}

	kb := &KeyBundle{KDF: params, Salt: salt, WrappedKey: wrapped}
	if err := ValidateKeyBundle(kb); err != nil {
		return nil, err
	}
	return kb, nil
}
