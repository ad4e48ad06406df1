package vault

import (
	"encoding/hex"
	"time"
)

// HeaderInfo is the printable, key-free view of a container header.
type HeaderInfo struct {
	FormatVersion    int       `json:"format_version"`
	VaultVersion     uint16    `json:"vault_version"`
	SchemaVersion    uint16    `json:"schema_version"`
	EncryptionMethod string    `json:"encryption_method"`
	KDF              KDFParams `json:"kdf"`
	CreatedAt        string    `json:"created_at"`
	ModifiedAt       string    `json:"modified_at"`
	IntegrityHash    string    `json:"integrity_hash"`
	PayloadBytes     int       `json:"payload_bytes"`
}

// Describe derives diagnostic details from a decoded header and its payload
// bundle. bundle may be nil when only the header parsed.
func Describe(h *Header, bundle *Bundle) *HeaderInfo {
	info := &HeaderInfo{
		FormatVersion:    HeaderFormatVersion,
		VaultVersion:     h.VaultVersion,
		SchemaVersion:    h.SchemaVersion,
		EncryptionMethod: h.EncryptionMethod,
		KDF:              h.KDF,
		CreatedAt:        h.CreatedAt.Format(time.RFC3339),
		ModifiedAt:       h.ModifiedAt.Format(time.RFC3339),
		IntegrityHash:    hex.EncodeToString(h.IntegrityHash),
	}
	if bundle != nil {
		info.PayloadBytes = len(bundle.Ciphertext)
	}
	return info
}
