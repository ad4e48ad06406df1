package domain

import (
	"sort"
)

// Harden checks the referential integrity of a decoded graph. Checks run in a
// fixed order and map iteration is sorted, so the same graph always yields the
// same first violation:
//
//  1. entry map key equals entry id
//  2. OTP block map key equals block id
//  3. folder ids are unique
//  4. every folder reference resolves to an entry
//  5. every entry is referenced by at least one folder
//  6. exactly one Unfiled folder exists
//  7. every entry has CreatedAt <= UpdatedAt
//  8. every entry's OTP block reference resolves
func Harden(g *Graph) error {
	entryKeys := sortedKeys(g.Entries)
	blockKeys := sortedKeys(g.OTPBlocks)

	for _, key := range entryKeys {
		e := g.Entries[key]
		if e == nil || e.ID != key {
			ge := &GraphError{Violation: ErrEntryKeyMismatch, Key: key}
			if e != nil {
				ge.EntryID = e.ID
			}
			return ge
		}
	}

	for _, key := range blockKeys {
		b := g.OTPBlocks[key]
		if b == nil || b.ID != key {
			ge := &GraphError{Violation: ErrOTPBlockKeyMismatch, Key: key}
			if b != nil {
				ge.BlockID = b.ID
			}
			return ge
		}
	}

	seen := make(map[string]struct{}, len(g.Folders))
	for _, f := range g.Folders {
		if f == nil {
			return &GraphError{Violation: ErrNullFolder}
		}
		if _, dup := seen[f.ID]; dup {
			return &GraphError{Violation: ErrDuplicateFolderID, FolderID: f.ID}
		}
		seen[f.ID] = struct{}{}
	}

	referenced := make(map[string]struct{}, len(g.Entries))
	for _, f := range g.Folders {
		for _, id := range f.EntryIDs {
			if _, ok := g.Entries[id]; !ok {
				return &GraphError{Violation: ErrFolderReferencesMissingEntry, FolderID: f.ID, EntryID: id}
			}
			referenced[id] = struct{}{}
		}
	}

	for _, id := range entryKeys {
		if _, ok := referenced[id]; !ok {
			return &GraphError{Violation: ErrOrphanedEntry, EntryID: id}
		}
	}

	var unfiled []*Folder
	for _, f := range g.Folders {
		if f.Name == UnfiledFolderName {
			unfiled = append(unfiled, f)
		}
	}
	switch len(unfiled) {
	case 0:
		return &GraphError{Violation: ErrMissingUnfiledFolder}
	case 1:
	default:
		return &GraphError{Violation: ErrDuplicateUnfiledFolder, FolderID: unfiled[1].ID}
	}

	for _, id := range entryKeys {
		e := g.Entries[id]
		if e.UpdatedAt.Before(e.CreatedAt) {
			return &GraphError{Violation: ErrEntryTimestampOrder, EntryID: id}
		}
	}

	for _, id := range entryKeys {
		e := g.Entries[id]
		if e.OTPBlockID == "" {
			continue
		}
		if _, ok := g.OTPBlocks[e.OTPBlockID]; !ok {
			return &GraphError{Violation: ErrEntryReferencesMissingOTP, EntryID: id, BlockID: e.OTPBlockID}
		}
	}

	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
