package vault

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vault-cli/entr/internal/secure"
)

const (
	// Magic tags every container file.
	Magic = "ENTR"
	// HeaderFormatVersion is the version of the header framing.
	HeaderFormatVersion = 1
	// VaultVersion is the single vault version this build reads and writes.
	VaultVersion uint16 = 1
	// SchemaVersion is the data graph schema this build reads and writes.
	SchemaVersion uint16 = 1

	preambleSize = len(Magic) + 1 + 4
)

// Header is the plaintext container header. IntegrityHash is the SHA-256 of
// the payload ciphertext (ciphertext and tag, without nonce).
type Header struct {
	VaultVersion     uint16
	SchemaVersion    uint16
	CreatedAt        time.Time
	ModifiedAt       time.Time
	EncryptionMethod string
	KDF              KDFParams
	IntegrityHash    []byte
}

// NewHeader creates a header for a new vault.
func NewHeader(params KDFParams, now time.Time) *Header {
	now = stamp(now)
	return &Header{
		VaultVersion:     VaultVersion,
		SchemaVersion:    SchemaVersion,
		CreatedAt:        now,
		ModifiedAt:       now,
		EncryptionMethod: EncryptionMethod,
		KDF:              params,
	}
}

// Clone returns a deep copy of the header.
func (h *Header) Clone() *Header {
	c := *h
	c.IntegrityHash = append([]byte(nil), h.IntegrityHash...)
	return &c
}

// stamp truncates to the millisecond precision stored on disk.
func stamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// PayloadAD is the associated data bound to the container payload.
func PayloadAD(vaultVersion uint16) []byte {
	return []byte(fmt.Sprintf("ENTR:payload:v%d", vaultVersion))
}

// MarshalBinary encodes magic, format version, body length and body.
func (h *Header) MarshalBinary() ([]byte, error) {
	if len(h.IntegrityHash) != HashSize {
		return nil, lengthErr(ErrInvalidHashLength, "integrity hash", "32", len(h.IntegrityHash))
	}

	body := make([]byte, 0, 96)
	body = binary.BigEndian.AppendUint16(body, h.VaultVersion)
	body = binary.BigEndian.AppendUint16(body, h.SchemaVersion)
	body = binary.BigEndian.AppendUint64(body, uint64(h.CreatedAt.UnixMilli()))
	body = binary.BigEndian.AppendUint64(body, uint64(h.ModifiedAt.UnixMilli()))
	body = appendShortBytes(body, []byte(h.EncryptionMethod))
	body = appendKDFParams(body, h.KDF)
	body = appendShortBytes(body, h.IntegrityHash)

	out := make([]byte, 0, preambleSize+len(body))
	out = append(out, Magic...)
	out = append(out, HeaderFormatVersion)
	out = binary.BigEndian.AppendUint32(out, uint32(len(body)))
	return append(out, body...), nil
}

// ParseHeader validates the preamble and header body without any key
// material. It returns the header and the offset where the payload begins.
func ParseHeader(data []byte) (*Header, int, error) {
	if len(data) < len(Magic) {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrHeaderTruncated, len(data))
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, 0, ErrBadMagic
	}
	if len(data) < preambleSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrHeaderTruncated, len(data))
	}
	if v := data[len(Magic)]; v != HeaderFormatVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedFormatVersion, v)
	}

	bodyLen := binary.BigEndian.Uint32(data[len(Magic)+1 : preambleSize])
	if uint64(bodyLen) > uint64(len(data)-preambleSize) {
		return nil, 0, fmt.Errorf("%w: declared %d, have %d", ErrHeaderBodyTruncated, bodyLen, len(data)-preambleSize)
	}
	end := preambleSize + int(bodyLen)

	h, err := parseHeaderBody(data[preambleSize:end])
	if err != nil {
		return nil, 0, err
	}
	return h, end, nil
}

func parseHeaderBody(body []byte) (*Header, error) {
	r := &wireReader{data: body}
	h := &Header{}
	var err error

	if h.VaultVersion, err = r.u16(); err != nil {
		return nil, fmt.Errorf("%w: vault version", ErrMalformedHeader)
	}
	if h.VaultVersion != VaultVersion {
		return nil, fmt.Errorf("%w: %d", ErrVaultVersionMismatch, h.VaultVersion)
	}
	if h.SchemaVersion, err = r.u16(); err != nil {
		return nil, fmt.Errorf("%w: schema version", ErrMalformedHeader)
	}
	if h.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrSchemaVersionMismatch, h.SchemaVersion)
	}

	created, err := r.i64()
	if err != nil {
		return nil, fmt.Errorf("%w: created_at", ErrMalformedHeader)
	}
	modified, err := r.i64()
	if err != nil {
		return nil, fmt.Errorf("%w: modified_at", ErrMalformedHeader)
	}
	h.CreatedAt, h.ModifiedAt = fromMillis(created), fromMillis(modified)

	method, err := r.shortBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encryption method", ErrMalformedHeader)
	}
	h.EncryptionMethod = string(method)
	if h.EncryptionMethod != EncryptionMethod {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncryptionMethod, h.EncryptionMethod)
	}

	if h.KDF, err = readKDFParams(r); err != nil {
		return nil, fmt.Errorf("%w: kdf params", ErrMalformedHeader)
	}
	if err := ValidateKDFParams(h.KDF); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHeader, err)
	}

	if h.IntegrityHash, err = r.shortBytes(); err != nil {
		return nil, fmt.Errorf("%w: integrity hash", ErrMalformedHeader)
	}
	if len(h.IntegrityHash) != HashSize {
		return nil, lengthErr(ErrInvalidHashLength, "integrity hash", "32", len(h.IntegrityHash))
	}

	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d unread body bytes", ErrMalformedHeader, r.remaining())
	}
	return h, nil
}

// SealContainer encrypts payload under vaultKey, stamps the header's
// integrity hash and ModifiedAt, and returns the complete container bytes.
// The header is updated in place.
func (e *Engine) SealContainer(h *Header, payload []byte, vaultKey *secure.Buffer, now time.Time) ([]byte, error) {
	if h.VaultVersion != VaultVersion || h.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: cannot write version %d/%d", ErrVaultVersionMismatch, h.VaultVersion, h.SchemaVersion)
	}
	if h.EncryptionMethod != EncryptionMethod {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncryptionMethod, h.EncryptionMethod)
	}
	if err := ValidateKDFParams(h.KDF); err != nil {
		return nil, err
	}

	bundle, err := e.Encrypt(payload, vaultKey, PayloadAD(h.VaultVersion))
	if err != nil {
		return nil, err
	}

	h.IntegrityHash = SHA256(bundle.Ciphertext)
	h.ModifiedAt = stamp(now)
	if h.ModifiedAt.Before(h.CreatedAt) {
		h.ModifiedAt = h.CreatedAt
	}

	head, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(head, MarshalBundle(bundle)...), nil
}

// DecodeContainer parses the header, parses the payload bundle and verifies
// the integrity hash. No decryption is attempted.
func DecodeContainer(data []byte) (*Header, *Bundle, error) {
	h, off, err := ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	if off == len(data) {
		return nil, nil, ErrMissingPayload
	}

	bundle, err := UnmarshalBundle(data[off:])
	if err != nil {
		return nil, nil, err
	}
	if err := ValidateAEADBundle(bundle); err != nil {
		return nil, nil, err
	}

	if !ConstantTimeEqual(SHA256(bundle.Ciphertext), h.IntegrityHash) {
		return nil, nil, ErrHashMismatch
	}
	return h, bundle, nil
}

// OpenContainer decrypts a decoded payload bundle. The bundle must carry the
// payload associated data for the header's vault version.
func (e *Engine) OpenContainer(h *Header, bundle *Bundle, vaultKey *secure.Buffer) (*secure.Buffer, error) {
	if err := ValidateAEADBundle(bundle); err != nil {
		return nil, err
	}
	if !ConstantTimeEqual(bundle.AssociatedData, PayloadAD(h.VaultVersion)) {
		return nil, ErrDecryptionFailure
	}
	return e.Decrypt(bundle, vaultKey)
}
