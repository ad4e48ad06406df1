package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/vault-cli/entr/internal/vault"
)

// MarshalGraph serializes the graph into the container payload form.
func MarshalGraph(g *Graph) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal data graph: %w", err)
	}
	return data, nil
}

// UnmarshalGraph strictly decodes a payload: unknown fields, trailing values,
// null entries and a foreign schema version are all rejected. The graph is
// not hardened.
func UnmarshalGraph(data []byte) (*Graph, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var g Graph
	if err := dec.Decode(&g); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGraphDecode, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after graph", ErrGraphDecode)
	}
	if g.SchemaVersion != vault.SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrGraphDecode, g.SchemaVersion)
	}
	if g.Entries == nil || g.OTPBlocks == nil || g.Folders == nil {
		return nil, fmt.Errorf("%w: missing entries, folders or otp_blocks", ErrGraphDecode)
	}
	for _, f := range g.Folders {
		if f == nil {
			return nil, fmt.Errorf("%w: null folder", ErrGraphDecode)
		}
		if f.EntryIDs == nil {
			f.EntryIDs = []string{}
		}
	}
	return &g, nil
}
