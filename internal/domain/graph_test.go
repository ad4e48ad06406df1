package domain

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vault-cli/entr/internal/secure"
	"github.com/vault-cli/entr/internal/vault"
)

func TestNewGraph(t *testing.T) {
	g := NewGraph()
	assert.Empty(t, g.Entries)
	assert.Empty(t, g.OTPBlocks)
	require.Len(t, g.Folders, 1)
	assert.Equal(t, UnfiledFolderName, g.Folders[0].Name)
	assert.NotEmpty(t, g.Folders[0].ID)
	assert.Equal(t, vault.SchemaVersion, g.SchemaVersion)
}

func TestGraph_AddAndRemoveEntry(t *testing.T) {
	g := fixtureGraph(t)

	assert.Equal(t, []string{"entry-a"}, g.Unfiled().EntryIDs)
	assert.Len(t, g.FoldersOf("entry-b"), 1)
	assert.Equal(t, "Work", g.FoldersOf("entry-b")[0].Name)

	err := g.AddEntry(g.Entries["entry-a"])
	assert.ErrorIs(t, err, ErrEntryExists)

	err = g.AddEntry(NewEntry("x", t0), "Nowhere")
	assert.ErrorIs(t, err, ErrFolderNotFound)

	err = g.AddEntry(NewEntry("  ", t0))
	assert.ErrorIs(t, err, ErrInvalidName)

	require.NoError(t, g.RemoveEntry("entry-a"))
	assert.NotContains(t, g.Entries, "entry-a")
	assert.Empty(t, g.Unfiled().EntryIDs)
	assert.Empty(t, g.OTPBlocks, "removing an entry drops its OTP block")
	assert.NoError(t, Harden(g))

	assert.ErrorIs(t, g.RemoveEntry("entry-a"), ErrEntryNotFound)
}

func TestGraph_Folders(t *testing.T) {
	g := NewGraph()

	_, err := g.AddFolder("")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = g.AddFolder(UnfiledFolderName)
	assert.ErrorIs(t, err, ErrFolderExists)

	f, err := g.AddFolder("Banking")
	require.NoError(t, err)

	byID, err := g.Folder(f.ID)
	require.NoError(t, err)
	byName, err := g.Folder("Banking")
	require.NoError(t, err)
	assert.Same(t, byID, byName)
}

func TestGraph_MoveEntry(t *testing.T) {
	g := fixtureGraph(t)

	require.NoError(t, g.MoveEntry("entry-a", "Work"))
	assert.Empty(t, g.Unfiled().EntryIDs)
	work, _ := g.Folder("Work")
	assert.ElementsMatch(t, []string{"entry-a", "entry-b"}, work.EntryIDs)
	assert.NoError(t, Harden(g))

	assert.ErrorIs(t, g.MoveEntry("nope", "Work"), ErrEntryNotFound)
	assert.ErrorIs(t, g.MoveEntry("entry-a", "nope"), ErrFolderNotFound)
}

func TestGraph_AttachOTPBlock(t *testing.T) {
	g := fixtureGraph(t)

	replacement := &OTPBlock{ID: "block-2", Algorithm: OTPSHA256, Digits: 8, Period: 60}
	require.NoError(t, g.AttachOTPBlock("entry-a", replacement))
	assert.NotContains(t, g.OTPBlocks, "block-1")

	got, err := g.OTPBlockFor("entry-a")
	require.NoError(t, err)
	assert.Same(t, replacement, got)

	_, err = g.OTPBlockFor("entry-b")
	assert.ErrorIs(t, err, ErrMissingCiphertext)

	bad := &OTPBlock{ID: "block-9", Algorithm: "MD5", Digits: 6, Period: 30}
	assert.ErrorIs(t, g.AttachOTPBlock("entry-a", bad), ErrInvalidOTPBlock)
}

func TestOTPBlock_Validate(t *testing.T) {
	tests := []struct {
		name    string
		block   OTPBlock
		wantErr bool
	}{
		{"sha1 defaults", OTPBlock{Algorithm: OTPSHA1, Digits: 6, Period: 30}, false},
		{"min", OTPBlock{Algorithm: OTPSHA512, Digits: 4, Period: 5}, false},
		{"max", OTPBlock{Algorithm: OTPSHA256, Digits: 10, Period: 300}, false},
		{"digits 3", OTPBlock{Algorithm: OTPSHA1, Digits: 3, Period: 30}, true},
		{"digits 11", OTPBlock{Algorithm: OTPSHA1, Digits: 11, Period: 30}, true},
		{"period 4", OTPBlock{Algorithm: OTPSHA1, Digits: 6, Period: 4}, true},
		{"period 301", OTPBlock{Algorithm: OTPSHA1, Digits: 6, Period: 301}, true},
		{"lowercase algorithm", OTPBlock{Algorithm: "sha1", Digits: 6, Period: 30}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOTPBlock)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGraph_FindEntry(t *testing.T) {
	g := fixtureGraph(t)

	e, err := g.FindEntry("ALPHA")
	require.NoError(t, err)
	assert.Equal(t, "entry-a", e.ID)

	e, err = g.FindEntry("entry-b")
	require.NoError(t, err)
	assert.Equal(t, "bravo", e.Title)

	_, err = g.FindEntry("zulu")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	twin := NewEntry("Alpha", t0)
	require.NoError(t, g.AddEntry(twin))
	_, err = g.FindEntry("alpha")
	assert.ErrorIs(t, err, ErrAmbiguousTitle)
}

func TestEntry_Touch(t *testing.T) {
	e := NewEntry("x", t0)
	e.Touch(t0.Add(-time.Hour))
	assert.Equal(t, e.CreatedAt, e.UpdatedAt)

	e.Touch(t0.Add(time.Hour))
	assert.Equal(t, t0.Add(time.Hour), e.UpdatedAt)
}

func TestSearch(t *testing.T) {
	g := NewGraph()
	bank := NewEntry("Bank Login", t0)
	bank.DomainHint = "bank.example.com"
	bank.Tags = []string{"finance", "Important"}
	mail := NewEntry("Mail", t0)
	mail.DomainHint = "mail.example.org"
	require.NoError(t, g.AddEntry(bank))
	require.NoError(t, g.AddEntry(mail))

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Bank Login", "Mail"}},
		{"bank", []string{"Bank Login"}},
		{"example", []string{"Bank Login", "Mail"}},
		{"example+org", []string{"Mail"}},
		{"important  finance", []string{"Bank Login"}},
		{"nothing", nil},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			var titles []string
			for _, e := range g.Search(tt.query) {
				titles = append(titles, e.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}

	assert.Equal(t, []string{"a", "b"}, ParseSearchTokens(" A + b "))
	assert.Nil(t, ParseSearchTokens(" + "))
}

func TestFields(t *testing.T) {
	engine := vault.NewEngine()
	key := secure.New(bytes.Repeat([]byte{0x5a}, vault.KeySize), secure.WipeOnRelease)
	defer key.Wipe()

	g := fixtureGraph(t)
	e := g.Entries["entry-b"]

	assert.False(t, g.HasField(e.ID, FieldPassword))
	_, err := g.DecryptField(engine, key, e.ID, FieldPassword)
	assert.ErrorIs(t, err, ErrMissingCiphertext)

	require.NoError(t, SealField(engine, key, e, FieldPassword, []byte("hunter2hunter2")))
	assert.True(t, g.HasField(e.ID, FieldPassword))
	assert.Equal(t, FieldAD(e.ID, FieldPassword), e.Password.AssociatedData)

	out, err := g.DecryptField(engine, key, e.ID, FieldPassword)
	require.NoError(t, err)
	require.NoError(t, out.WithRead(func(p []byte) error {
		assert.Equal(t, []byte("hunter2hunter2"), p)
		return nil
	}))
	out.Wipe()

	t.Run("bundle moved to another field fails", func(t *testing.T) {
		e.Notes = e.Password.Clone()
		_, err := g.DecryptField(engine, key, e.ID, FieldNotes)
		assert.Equal(t, vault.ErrDecryptionFailure, err)
		require.NoError(t, ClearField(e, FieldNotes))
		assert.False(t, g.HasField(e.ID, FieldNotes))
	})

	t.Run("bundle moved to another entry fails", func(t *testing.T) {
		other := g.Entries["entry-a"]
		other.Password = e.Password.Clone()
		_, err := g.DecryptField(engine, key, other.ID, FieldPassword)
		assert.Equal(t, vault.ErrDecryptionFailure, err)
	})

	t.Run("presence queries never fail", func(t *testing.T) {
		assert.False(t, g.HasField("missing-entry", FieldPassword))
		assert.False(t, g.HasField(e.ID, FieldKind(42)))
		assert.False(t, g.HasField(e.ID, FieldOTPSecret))
		assert.False(t, g.HasField(e.ID, FieldFingerprint))
	})

	t.Run("otp and fingerprint are not settable", func(t *testing.T) {
		assert.ErrorIs(t, SealField(engine, key, e, FieldOTPSecret, []byte("x")), ErrFieldReadOnly)
		assert.ErrorIs(t, ClearField(e, FieldFingerprint), ErrFieldReadOnly)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := g.DecryptField(engine, key, e.ID, FieldKind(-1))
		assert.ErrorIs(t, err, ErrUnknownField)
	})
}

func TestParseFieldKind(t *testing.T) {
	for _, k := range []FieldKind{FieldUsername, FieldPassword, FieldNotes, FieldMetadata, FieldOTPSecret, FieldFingerprint} {
		got, err := ParseFieldKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	for _, k := range []FieldKind{FieldUsername, FieldPassword, FieldNotes, FieldMetadata} {
		assert.True(t, k.Settable(), k.String())
	}
	assert.False(t, FieldOTPSecret.Settable())
	assert.False(t, FieldFingerprint.Settable())
	assert.False(t, FieldKind(9).Settable())

	_, err := ParseFieldKind("ssn")
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, "FieldKind(9)", FieldKind(9).String())
	assert.Equal(t, "ENTR:otp:b1", string(OTPSecretAD("b1")))
	assert.Equal(t, "ENTR:field:e1:notes", string(FieldAD("e1", FieldNotes)))
}

func TestGraphCodec(t *testing.T) {
	g := fixtureGraph(t)
	data, err := MarshalGraph(g)
	require.NoError(t, err)

	got, err := UnmarshalGraph(data)
	require.NoError(t, err)
	require.NoError(t, Harden(got))
	assert.Len(t, got.Entries, 2)
	assert.Len(t, got.Folders, 2)
	assert.Contains(t, got.OTPBlocks, "block-1")
	assert.True(t, got.Entries["entry-a"].CreatedAt.Equal(t0))

	tests := []struct {
		name string
		data string
	}{
		{"not json", "ENTR"},
		{"unknown field", `{"schema_version":1,"entries":{},"folders":[],"otp_blocks":{},"extra":true}`},
		{"trailing value", `{"schema_version":1,"entries":{},"folders":[],"otp_blocks":{}} {}`},
		{"schema version", `{"schema_version":2,"entries":{},"folders":[],"otp_blocks":{}}`},
		{"missing entries", `{"schema_version":1,"folders":[],"otp_blocks":{}}`},
		{"null folder", `{"schema_version":1,"entries":{},"folders":[null],"otp_blocks":{}}`},
		{"wrong type", `{"schema_version":1,"entries":[],"folders":[],"otp_blocks":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalGraph([]byte(tt.data))
			assert.ErrorIs(t, err, ErrGraphDecode)
		})
	}
}
