package session

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/secure"
	"github.com/vault-cli/entr/internal/vault"
)

type sealedVault struct {
	pipeline *Pipeline
	bundle   *vault.KeyBundle
	key      *secure.Buffer
	engine   *vault.Engine
}

func newSealedVault(t *testing.T) *sealedVault {
	t.Helper()
	engine := vault.NewEngine()
	w := vault.NewKeyWrapper(engine, vault.StubDeriver{})
	kb, key, err := w.CreateBundle(testPassword, testParams())
	require.NoError(t, err)
	t.Cleanup(key.Wipe)
	return &sealedVault{pipeline: NewPipeline(engine, w, zerolog.Nop()), bundle: kb, key: key, engine: engine}
}

func (sv *sealedVault) seal(t *testing.T, payload []byte) []byte {
	t.Helper()
	h := vault.NewHeader(testParams(), testNow)
	data, err := sv.engine.SealContainer(h, payload, sv.key, testNow)
	require.NoError(t, err)
	return data
}

func (sv *sealedVault) sealGraph(t *testing.T, g *domain.Graph) []byte {
	t.Helper()
	payload, err := domain.MarshalGraph(g)
	require.NoError(t, err)
	return sv.seal(t, payload)
}

func TestPipeline_Run(t *testing.T) {
	sv := newSealedVault(t)
	data := sv.sealGraph(t, domain.NewGraph())

	u, err := sv.pipeline.Run(data, testPassword, sv.bundle)
	require.NoError(t, err)
	defer u.VaultKey.Wipe()

	assert.Len(t, u.Graph.Folders, 1)
	assert.Equal(t, testParams(), u.Header.KDF)
	eq, err := u.VaultKey.Equal(sv.key)
	require.NoError(t, err)
	assert.True(t, eq)
}

func TestPipeline_Deterministic(t *testing.T) {
	sv := newSealedVault(t)
	g := domain.NewGraph()
	e := domain.NewEntry("one", testNow)
	require.NoError(t, g.AddEntry(e))
	data := sv.sealGraph(t, g)

	var first []byte
	for i := 0; i < 3; i++ {
		u, err := sv.pipeline.Run(data, testPassword, sv.bundle)
		require.NoError(t, err)
		out, err := domain.MarshalGraph(u.Graph)
		require.NoError(t, err)
		u.VaultKey.Wipe()
		if first == nil {
			first = out
			continue
		}
		assert.Equal(t, first, out)
	}

	for i := 0; i < 3; i++ {
		_, err := sv.pipeline.Run(data, []byte("wrong password!!"), sv.bundle)
		assertUnlockKind(t, err, ErrInvalidPassword)
	}
}

func TestPipeline_FailureMapping(t *testing.T) {
	sv := newSealedVault(t)
	valid := sv.sealGraph(t, domain.NewGraph())

	unfiledless := domain.NewGraph()
	unfiledless.Folders = []*domain.Folder{{ID: "f1", Name: "Personal", EntryIDs: []string{}}}

	mismatched := *sv.bundle
	mismatched.KDF.Iterations++

	truncatedBundle := *sv.bundle
	truncatedBundle.Salt = truncatedBundle.Salt[:8]

	tests := []struct {
		name   string
		data   []byte
		bundle *vault.KeyBundle
		want   error
	}{
		{"empty file", nil, sv.bundle, ErrCorruptedVault},
		{"bad magic", append([]byte("XNTR"), valid[4:]...), sv.bundle, ErrCorruptedVault},
		{"trailing data", append(append([]byte(nil), valid...), 0x00), sv.bundle, ErrCorruptedVault},
		{"no key bundle", valid, nil, ErrCorruptedVault},
		{"kdf snapshot differs", valid, &mismatched, ErrCorruptedVault},
		{"malformed key bundle", valid, &truncatedBundle, ErrCorruptedVault},
		{"payload not json", sv.seal(t, []byte("not json")), sv.bundle, ErrModelDecodeFailed},
		{"payload wrong schema", sv.seal(t, []byte(`{"schema_version":9,"entries":{},"folders":[],"otp_blocks":{}}`)), sv.bundle, ErrModelDecodeFailed},
		{"graph fails hardening", sv.sealGraph(t, unfiledless), sv.bundle, ErrCorruptedVault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sv.pipeline.Run(tt.data, testPassword, tt.bundle)
			assertUnlockKind(t, err, tt.want)
		})
	}
}

func TestPipeline_WrongPasswords(t *testing.T) {
	sv := newSealedVault(t)
	data := sv.sealGraph(t, domain.NewGraph())

	n := 1000
	if testing.Short() {
		n = 100
	}
	for i := 0; i < n; i++ {
		pw := append(append([]byte(nil), testPassword...), byte(i), byte(i>>8))
		_, err := sv.pipeline.Run(data, pw, sv.bundle)
		require.ErrorIs(t, err, ErrInvalidPassword)
	}
}

func TestStage_String(t *testing.T) {
	want := []string{"start", "read_bytes", "parse_container", "recover_key", "decrypt_payload", "deserialize_graph", "harden_graph", "unlocked"}
	for i, name := range want {
		assert.Equal(t, name, Stage(i).String())
	}
	assert.Equal(t, "unknown", Stage(99).String())
}

func TestCauseCategory(t *testing.T) {
	assert.Equal(t, "hash_mismatch", causeCategory(vault.ErrHashMismatch))
	assert.Equal(t, "missing_unfiled_folder", causeCategory(&domain.GraphError{Violation: domain.ErrMissingUnfiledFolder}))
	assert.Equal(t, "structural", causeCategory(assert.AnError))
}
