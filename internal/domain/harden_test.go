package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// fixtureGraph builds a valid graph with two entries and a second folder.
func fixtureGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph()
	work, err := g.AddFolder("Work")
	require.NoError(t, err)

	a := NewEntry("alpha", t0)
	a.ID = "entry-a"
	b := NewEntry("bravo", t0)
	b.ID = "entry-b"
	require.NoError(t, g.AddEntry(a))
	require.NoError(t, g.AddEntry(b, work.ID))

	block := &OTPBlock{ID: "block-1", Algorithm: OTPSHA1, Digits: 6, Period: 30}
	require.NoError(t, g.AttachOTPBlock(a.ID, block))

	require.NoError(t, Harden(g))
	return g
}

func assertViolation(t *testing.T, err error, want error) *GraphError {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, want)

	var ge *GraphError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, want, ge.Violation)
	return ge
}

func TestHarden_EmptyGraph(t *testing.T) {
	assert.NoError(t, Harden(NewGraph()))
}

func TestHarden_MissingUnfiledFolder(t *testing.T) {
	g := NewGraph()
	g.Folders = []*Folder{{ID: "f1", Name: "Personal", EntryIDs: []string{}}}

	assertViolation(t, Harden(g), ErrMissingUnfiledFolder)
}

func TestHarden_OrphanedEntry(t *testing.T) {
	g := fixtureGraph(t)
	orphan := NewEntry("charlie", t0)
	orphan.ID = "entry-c"
	g.Entries[orphan.ID] = orphan

	ge := assertViolation(t, Harden(g), ErrOrphanedEntry)
	assert.Equal(t, "entry-c", ge.EntryID)
}

func TestHarden_FolderReferencesMissingEntry(t *testing.T) {
	g := fixtureGraph(t)
	work, err := g.Folder("Work")
	require.NoError(t, err)
	work.EntryIDs = append(work.EntryIDs, "ghost")

	ge := assertViolation(t, Harden(g), ErrFolderReferencesMissingEntry)
	assert.Equal(t, work.ID, ge.FolderID)
	assert.Equal(t, "ghost", ge.EntryID)
	assert.Contains(t, ge.Error(), "folder_references_missing_entry")
	assert.Contains(t, ge.Error(), "entry=ghost")
}

func TestHarden_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Graph)
		want   error
		check  func(t *testing.T, ge *GraphError)
	}{
		{
			name: "entry key differs from id",
			mutate: func(g *Graph) {
				e := g.Entries["entry-b"]
				delete(g.Entries, "entry-b")
				g.Entries["entry-x"] = e
			},
			want: ErrEntryKeyMismatch,
			check: func(t *testing.T, ge *GraphError) {
				assert.Equal(t, "entry-x", ge.Key)
				assert.Equal(t, "entry-b", ge.EntryID)
			},
		},
		{
			name:   "null entry",
			mutate: func(g *Graph) { g.Entries["entry-n"] = nil },
			want:   ErrEntryKeyMismatch,
		},
		{
			name: "otp block key differs from id",
			mutate: func(g *Graph) {
				g.OTPBlocks["block-2"] = &OTPBlock{ID: "block-3", Algorithm: OTPSHA1, Digits: 6, Period: 30}
			},
			want:  ErrOTPBlockKeyMismatch,
			check: func(t *testing.T, ge *GraphError) { assert.Equal(t, "block-3", ge.BlockID) },
		},
		{
			name: "duplicate folder id",
			mutate: func(g *Graph) {
				g.Folders = append(g.Folders, &Folder{ID: g.Folders[0].ID, Name: "Copy", EntryIDs: []string{}})
			},
			want: ErrDuplicateFolderID,
		},
		{
			name:   "null folder",
			mutate: func(g *Graph) { g.Folders = append(g.Folders, nil) },
			want:   ErrNullFolder,
		},
		{
			name: "second unfiled folder",
			mutate: func(g *Graph) {
				g.Folders = append(g.Folders, &Folder{ID: "dup", Name: UnfiledFolderName, EntryIDs: []string{}})
			},
			want:  ErrDuplicateUnfiledFolder,
			check: func(t *testing.T, ge *GraphError) { assert.Equal(t, "dup", ge.FolderID) },
		},
		{
			name:   "updated before created",
			mutate: func(g *Graph) { g.Entries["entry-b"].UpdatedAt = t0.Add(-time.Second) },
			want:   ErrEntryTimestampOrder,
			check:  func(t *testing.T, ge *GraphError) { assert.Equal(t, "entry-b", ge.EntryID) },
		},
		{
			name:   "dangling otp reference",
			mutate: func(g *Graph) { delete(g.OTPBlocks, "block-1") },
			want:   ErrEntryReferencesMissingOTP,
			check:  func(t *testing.T, ge *GraphError) { assert.Equal(t, "block-1", ge.BlockID) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := fixtureGraph(t)
			tt.mutate(g)
			ge := assertViolation(t, Harden(g), tt.want)
			if tt.check != nil {
				tt.check(t, ge)
			}
		})
	}
}

func TestHarden_OrderIsFixed(t *testing.T) {
	// Both an orphan and a missing Unfiled folder: the orphan check runs first.
	g := NewGraph()
	g.Folders = []*Folder{{ID: "f1", Name: "Personal", EntryIDs: []string{}}}
	e := NewEntry("lonely", t0)
	g.Entries[e.ID] = e

	assertViolation(t, Harden(g), ErrOrphanedEntry)
}

func TestHarden_Deterministic(t *testing.T) {
	g := NewGraph()
	for _, id := range []string{"d", "b", "a", "c"} {
		e := NewEntry(id, t0)
		e.ID = id
		g.Entries[id] = e
	}

	for i := 0; i < 20; i++ {
		ge := assertViolation(t, Harden(g), ErrOrphanedEntry)
		require.Equal(t, "a", ge.EntryID)
	}
}
