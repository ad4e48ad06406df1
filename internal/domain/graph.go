package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Unfiled returns the Unfiled folder, or nil if the graph has none.
func (g *Graph) Unfiled() *Folder {
	for _, f := range g.Folders {
		if f != nil && f.Name == UnfiledFolderName {
			return f
		}
	}
	return nil
}

// Folder looks up a folder by id or, failing that, by name.
func (g *Graph) Folder(idOrName string) (*Folder, error) {
	for _, f := range g.Folders {
		if f.ID == idOrName {
			return f, nil
		}
	}
	for _, f := range g.Folders {
		if f.Name == idOrName {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, idOrName)
}

// AddFolder appends a new, empty folder.
func (g *Graph) AddFolder(name string) (*Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	for _, f := range g.Folders {
		if f.Name == name {
			return nil, fmt.Errorf("%w: %s", ErrFolderExists, name)
		}
	}
	f := &Folder{ID: NewID(), Name: name, EntryIDs: []string{}}
	g.Folders = append(g.Folders, f)
	return f, nil
}

// AddEntry inserts e and files it into the given folders, or into Unfiled
// when none are named.
func (g *Graph) AddEntry(e *Entry, folders ...string) error {
	if strings.TrimSpace(e.Title) == "" {
		return ErrInvalidName
	}
	if _, exists := g.Entries[e.ID]; exists {
		return fmt.Errorf("%w: %s", ErrEntryExists, e.ID)
	}

	targets := make([]*Folder, 0, len(folders))
	for _, name := range folders {
		f, err := g.Folder(name)
		if err != nil {
			return err
		}
		targets = append(targets, f)
	}
	if len(targets) == 0 {
		f := g.Unfiled()
		if f == nil {
			return &GraphError{Violation: ErrMissingUnfiledFolder}
		}
		targets = append(targets, f)
	}

	g.Entries[e.ID] = e
	for _, f := range targets {
		f.EntryIDs = appendUnique(f.EntryIDs, e.ID)
	}
	return nil
}

// RemoveEntry deletes an entry, its folder references and its OTP block.
func (g *Graph) RemoveEntry(id string) error {
	e, ok := g.Entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}
	for _, f := range g.Folders {
		f.EntryIDs = without(f.EntryIDs, id)
	}
	if e.OTPBlockID != "" {
		delete(g.OTPBlocks, e.OTPBlockID)
	}
	delete(g.Entries, id)
	return nil
}

// MoveEntry files an entry into exactly one folder.
func (g *Graph) MoveEntry(entryID, folder string) error {
	if _, ok := g.Entries[entryID]; !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	target, err := g.Folder(folder)
	if err != nil {
		return err
	}
	for _, f := range g.Folders {
		f.EntryIDs = without(f.EntryIDs, entryID)
	}
	target.EntryIDs = append(target.EntryIDs, entryID)
	return nil
}

// FoldersOf returns the folders referencing an entry, in graph order.
func (g *Graph) FoldersOf(entryID string) []*Folder {
	var out []*Folder
	for _, f := range g.Folders {
		for _, id := range f.EntryIDs {
			if id == entryID {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// AttachOTPBlock links block to an entry, replacing any block it had.
func (g *Graph) AttachOTPBlock(entryID string, block *OTPBlock) error {
	e, ok := g.Entries[entryID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if err := block.Validate(); err != nil {
		return err
	}
	if e.OTPBlockID != "" {
		delete(g.OTPBlocks, e.OTPBlockID)
	}
	g.OTPBlocks[block.ID] = block
	e.OTPBlockID = block.ID
	return nil
}

// OTPBlockFor returns the OTP block attached to an entry.
func (g *Graph) OTPBlockFor(entryID string) (*OTPBlock, error) {
	e, ok := g.Entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	block, ok := g.OTPBlocks[e.OTPBlockID]
	if e.OTPBlockID == "" || !ok {
		return nil, fmt.Errorf("%w: entry %s has no OTP block", ErrMissingCiphertext, entryID)
	}
	return block, nil
}

// FindEntry resolves an entry by id or by case-insensitive title.
func (g *Graph) FindEntry(ref string) (*Entry, error) {
	if e, ok := g.Entries[ref]; ok {
		return e, nil
	}

	var match *Entry
	for _, id := range sortedKeys(g.Entries) {
		e := g.Entries[id]
		if !strings.EqualFold(e.Title, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %q", ErrAmbiguousTitle, ref)
		}
		match = e
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %q", ErrEntryNotFound, ref)
	}
	return match, nil
}

// SortedEntries returns all entries ordered by title, then id.
func (g *Graph) SortedEntries() []*Entry {
	out := make([]*Entry, 0, len(g.Entries))
	for _, e := range g.Entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
