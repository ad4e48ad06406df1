package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/secure"
	"github.com/vault-cli/entr/internal/security"
	"github.com/vault-cli/entr/internal/totp"
	"github.com/vault-cli/entr/internal/vault"
)

// Session is an unlocked vault. It is not safe for concurrent use; callers
// serialize operations on one session.
type Session struct {
	mgr     *Manager
	path    string
	vaultID string
	header  *vault.Header
	graph   *domain.Graph
	key     *secure.Buffer
	bundle  *vault.KeyBundle
}

// EntryInput carries the plaintext for a new entry. Byte fields are copied
// into ciphertext and then zeroed by AddEntry.
type EntryInput struct {
	Title      string
	DomainHint string
	Tags       []string
	Folder     string
	Username   []byte
	Password   []byte
	Notes      []byte
	Metadata   []byte
}

// Path returns the container path.
func (s *Session) Path() string { return s.path }

// VaultID returns the key-store id of the vault.
func (s *Session) VaultID() string { return s.vaultID }

// Header returns a copy of the current container header.
func (s *Session) Header() *vault.Header { return s.header.Clone() }

// Graph returns the unlocked graph. Mutations go through Session methods so
// that they are sealed and audited.
func (s *Session) Graph() *domain.Graph { return s.graph }

func (s *Session) check() error {
	if s.key == nil || s.key.IsWiped() {
		return ErrSessionClosed
	}
	return nil
}

// Close wipes the vault key. The session is unusable afterwards.
func (s *Session) Close() {
	if s.key != nil {
		s.key.Wipe()
	}
	s.graph = nil
}

// HasField reports whether the entry carries ciphertext for kind.
func (s *Session) HasField(entryID string, kind domain.FieldKind) bool {
	if s.graph == nil {
		return false
	}
	return s.graph.HasField(entryID, kind)
}

// DecryptField decrypts one field of an entry. The caller owns the buffer.
func (s *Session) DecryptField(entryID string, kind domain.FieldKind) (buf *secure.Buffer, err error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	defer func() { s.mgr.audit(OpGetField, s.vaultID, entryID, err == nil) }()
	return s.graph.DecryptField(s.mgr.engine, s.key, entryID, kind)
}

// AddEntry seals the input fields into a new entry, scores its password and
// adds it to the graph. The change is in memory until Save.
func (s *Session) AddEntry(in EntryInput) (e *domain.Entry, err error) {
	defer wipeInput(&in)
	if err := s.check(); err != nil {
		return nil, err
	}
	defer func() {
		id := ""
		if e != nil {
			id = e.ID
		}
		s.mgr.audit(OpAddEntry, s.vaultID, id, err == nil)
	}()

	e = domain.NewEntry(strings.TrimSpace(in.Title), s.mgr.now())
	e.DomainHint = strings.TrimSpace(in.DomainHint)
	e.Tags = in.Tags

	fields := []struct {
		kind  domain.FieldKind
		value []byte
	}{
		{domain.FieldUsername, in.Username},
		{domain.FieldPassword, in.Password},
		{domain.FieldNotes, in.Notes},
		{domain.FieldMetadata, in.Metadata},
	}
	for _, f := range fields {
		if len(f.value) == 0 {
			continue
		}
		if err := domain.SealField(s.mgr.engine, s.key, e, f.kind, f.value); err != nil {
			return nil, fmt.Errorf("failed to seal %s: %w", f.kind, err)
		}
	}

	if len(in.Password) > 0 {
		score, err := s.scorePassword(e.ID, in.Password)
		if err != nil {
			return nil, err
		}
		e.Security = score
	}

	var folders []string
	if in.Folder != "" {
		folders = append(folders, in.Folder)
	}
	if err := s.graph.AddEntry(e, folders...); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Session) scorePassword(entryID string, password []byte) (*domain.SecurityScore, error) {
	a := security.Assess(password)
	fp := security.Fingerprint(password)
	defer secure.Zeroize(fp)

	sealed, err := s.mgr.engine.Encrypt(fp, s.key, domain.FieldAD(entryID, domain.FieldFingerprint))
	if err != nil {
		return nil, fmt.Errorf("failed to seal fingerprint: %w", err)
	}
	return &domain.SecurityScore{
		Strength:    string(a.Strength),
		Score:       a.Score,
		EntropyBits: a.EntropyBits,
		Fingerprint: sealed,
	}, nil
}

func wipeInput(in *EntryInput) {
	secure.Zeroize(in.Username)
	secure.Zeroize(in.Password)
	secure.Zeroize(in.Notes)
	secure.Zeroize(in.Metadata)
}

// RemoveEntry deletes an entry and its OTP block.
func (s *Session) RemoveEntry(entryID string) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	defer func() { s.mgr.audit(OpRemoveEntry, s.vaultID, entryID, err == nil) }()
	return s.graph.RemoveEntry(entryID)
}

// AddFolder creates a folder.
func (s *Session) AddFolder(name string) (*domain.Folder, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.graph.AddFolder(name)
}

// MoveEntry places an entry in exactly one folder.
func (s *Session) MoveEntry(entryID, folder string) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.graph.MoveEntry(entryID, folder); err != nil {
		return err
	}
	s.graph.Entries[entryID].Touch(s.mgr.now())
	return nil
}

// AddOTP encrypts secret into a new OTP block and attaches it to the entry,
// replacing any previous block. The secret is zeroed.
func (s *Session) AddOTP(entryID string, secret []byte, alg domain.OTPAlgorithm, digits, period int) (block *domain.OTPBlock, err error) {
	defer secure.Zeroize(secret)
	if err := s.check(); err != nil {
		return nil, err
	}
	defer func() { s.mgr.audit(OpAddOTP, s.vaultID, entryID, err == nil) }()

	e, ok := s.graph.Entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEntryNotFound, entryID)
	}
	block, err = totp.NewBlock(s.mgr.engine, s.key, secret, alg, digits, period)
	if err != nil {
		return nil, err
	}
	if err := s.graph.AttachOTPBlock(entryID, block); err != nil {
		return nil, err
	}
	e.Touch(s.mgr.now())
	return block, nil
}

// TOTP returns the current code for the entry's OTP block and the time left
// before it rolls over.
func (s *Session) TOTP(entryID string) (code string, remaining time.Duration, err error) {
	if err := s.check(); err != nil {
		return "", 0, err
	}
	defer func() { s.mgr.audit(OpGenerateTOTP, s.vaultID, entryID, err == nil) }()

	block, err := s.graph.OTPBlockFor(entryID)
	if err != nil {
		return "", 0, err
	}
	now := s.mgr.now()
	code, err = totp.Generate(s.mgr.engine, block, now, s.key)
	if err != nil {
		return "", 0, err
	}
	return code, totp.Remaining(block, now), nil
}

// VerifyTOTP checks a code against the entry's OTP block within skew periods.
func (s *Session) VerifyTOTP(entryID, code string, skew int) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	block, err := s.graph.OTPBlockFor(entryID)
	if err != nil {
		return false, err
	}
	return totp.Validate(s.mgr.engine, block, code, s.mgr.now(), s.key, skew)
}

// FindReused groups entries whose password fingerprints match. Each group
// has at least two entry ids; groups and ids are sorted.
func (s *Session) FindReused() ([][]string, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	byPrint := make(map[string][]string)
	for _, e := range s.graph.SortedEntries() {
		if !s.graph.HasField(e.ID, domain.FieldFingerprint) {
			continue
		}
		buf, err := s.graph.DecryptField(s.mgr.engine, s.key, e.ID, domain.FieldFingerprint)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		var fp string
		err = buf.WithRead(func(b []byte) error {
			fp = hex.EncodeToString(b)
			return nil
		})
		buf.Wipe()
		if err != nil {
			return nil, err
		}
		byPrint[fp] = append(byPrint[fp], e.ID)
	}

	var groups [][]string
	for _, ids := range byPrint {
		if len(ids) > 1 {
			sort.Strings(ids)
			groups = append(groups, ids)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups, nil
}

// Save hardens the graph and atomically rewrites the container. On failure
// the file on disk and the session header are unchanged.
func (s *Session) Save() (err error) {
	if err := s.check(); err != nil {
		return err
	}
	defer func() { s.mgr.audit(OpSave, s.vaultID, "", err == nil) }()
	return s.write()
}

func (s *Session) write() error {
	if err := domain.Harden(s.graph); err != nil {
		return fmt.Errorf("refusing to save inconsistent vault: %w", err)
	}

	payload, err := domain.MarshalGraph(s.graph)
	if err != nil {
		return err
	}
	defer secure.Zeroize(payload)

	next := s.header.Clone()
	data, err := s.mgr.engine.SealContainer(next, payload, s.key, s.mgr.now())
	if err != nil {
		return err
	}
	if err := s.mgr.files.AtomicWrite(s.path, data); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}

	s.header = next
	s.mgr.logger.Debug().Str("vault", s.vaultID).Int("bytes", len(data)).Msg("vault saved")
	return nil
}

// ChangePassword rewraps the vault key under newPassword with fresh KDF
// parameters and rewrites the container so its KDF snapshot matches. The
// vault key and every ciphertext in the graph stay the same. The previous
// bundle stays pending in the key store until the container is written; if
// writing fails it is restored, and if the process dies first the next
// unlock restores it.
func (s *Session) ChangePassword(oldPassword, newPassword []byte, params vault.KDFParams) (err error) {
	if err := s.check(); err != nil {
		return err
	}
	defer func() { s.mgr.audit(OpChangePassword, s.vaultID, "", err == nil) }()

	if s.bundle == nil {
		return ErrCorruptedVault
	}
	next, err := s.mgr.wrapper().Rewrap(s.bundle, oldPassword, newPassword, params)
	if err != nil {
		if errors.Is(err, vault.ErrUnwrapFailed) {
			return ErrInvalidPassword
		}
		return err
	}

	if err := s.mgr.keys.StageBundle(s.vaultID, next, s.bundle); err != nil {
		return fmt.Errorf("failed to store key bundle: %w", err)
	}

	prevHeader := s.header
	s.header = prevHeader.Clone()
	s.header.KDF = params
	if err := s.write(); err != nil {
		s.header = prevHeader
		if rerr := s.mgr.keys.RollbackBundle(s.vaultID); rerr != nil {
			s.mgr.logger.Error().Err(rerr).Str("vault", s.vaultID).Msg("failed to restore key bundle")
		}
		return err
	}

	s.bundle = next
	if err := s.mgr.keys.CommitBundle(s.vaultID); err != nil {
		s.mgr.logger.Warn().Err(err).Str("vault", s.vaultID).Msg("failed to drop pending key bundle")
	}
	return nil
}
