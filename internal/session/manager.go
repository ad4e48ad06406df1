// Package session composes the vault engine into user-level operations:
// creating a vault, unlocking it through the pipeline, editing the unlocked
// graph and writing it back.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vault-cli/entr/internal/domain"
	"github.com/vault-cli/entr/internal/store"
	"github.com/vault-cli/entr/internal/vault"
)

// KeyStore persists key bundles and audit entries for vaults.
type KeyStore interface {
	PutBundle(vaultID string, kb *vault.KeyBundle) error
	GetBundle(vaultID string) (*vault.KeyBundle, error)
	DeleteBundle(vaultID string) error
	StageBundle(vaultID string, next, prev *vault.KeyBundle) error
	GetPendingBundle(vaultID string) (*vault.KeyBundle, error)
	CommitBundle(vaultID string) error
	RollbackBundle(vaultID string) error
	LogOperation(op *domain.Operation) error
}

// Audit operation types
const (
	OpCreate         = "create"
	OpUnlock         = "unlock"
	OpSave           = "save"
	OpAddEntry       = "add_entry"
	OpRemoveEntry    = "remove_entry"
	OpGetField       = "get_field"
	OpAddOTP         = "add_otp"
	OpGenerateTOTP   = "generate_totp"
	OpChangePassword = "change_password"
)

// Manager opens and creates vaults. It is safe to use from several
// goroutines for different vault paths.
type Manager struct {
	files             store.FileStore
	keys              KeyStore
	engine            *vault.Engine
	deriver           vault.KeyDeriver
	clock             func() time.Time
	logger            zerolog.Logger
	minPasswordLength int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock sets the time source used for timestamps and TOTP.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithDeriver sets the KDF strategy.
func WithDeriver(d vault.KeyDeriver) Option {
	return func(m *Manager) { m.deriver = d }
}

// WithEngine sets the AEAD engine.
func WithEngine(e *vault.Engine) Option {
	return func(m *Manager) { m.engine = e }
}

// WithMinPasswordLength sets the password policy for new and rotated
// passwords.
func WithMinPasswordLength(n int) Option {
	return func(m *Manager) { m.minPasswordLength = n }
}

// NewManager creates a Manager over the given file and key stores.
func NewManager(files store.FileStore, keys KeyStore, opts ...Option) *Manager {
	m := &Manager{
		files:             files,
		keys:              keys,
		engine:            vault.NewEngine(),
		clock:             time.Now,
		logger:            zerolog.Nop(),
		minPasswordLength: vault.DefaultMinPasswordLength,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.deriver == nil {
		m.deriver = vault.NewArgon2idDeriver(m.logger)
	}
	return m
}

func (m *Manager) wrapper() *vault.KeyWrapper {
	return vault.NewKeyWrapper(m.engine, m.deriver, vault.WithMinPasswordLength(m.minPasswordLength))
}

// Pipeline returns an unlock pipeline bound to the manager's engine and
// KDF strategy.
func (m *Manager) Pipeline() *Pipeline {
	return NewPipeline(m.engine, m.wrapper(), m.logger)
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}

func (m *Manager) audit(opType, vaultID, entryID string, success bool) {
	if m.keys == nil {
		return
	}
	op := &domain.Operation{
		Type:      opType,
		VaultID:   vaultID,
		EntryID:   entryID,
		Timestamp: m.now(),
		Success:   success,
	}
	if err := m.keys.LogOperation(op); err != nil {
		m.logger.Warn().Err(err).Str("operation", opType).Msg("failed to write audit entry")
	}
}

// Create writes a new empty vault at path protected by password. It refuses
// to overwrite an existing file.
func (m *Manager) Create(path string, password []byte, params vault.KDFParams) (s *Session, err error) {
	vaultID, err := store.VaultID(path)
	if err != nil {
		return nil, err
	}
	defer func() { m.audit(OpCreate, vaultID, "", err == nil) }()

	exists, err := m.files.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("failed to check vault path: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrVaultExists, path)
	}

	bundle, vaultKey, err := m.wrapper().CreateBundle(password, params)
	if err != nil {
		return nil, err
	}

	s = &Session{
		mgr:     m,
		path:    path,
		vaultID: vaultID,
		header:  vault.NewHeader(params, m.now()),
		graph:   domain.NewGraph(),
		key:     vaultKey,
		bundle:  bundle,
	}

	if err := m.keys.PutBundle(vaultID, bundle); err != nil {
		vaultKey.Wipe()
		return nil, fmt.Errorf("failed to store key bundle: %w", err)
	}
	if err := s.write(); err != nil {
		if derr := m.keys.DeleteBundle(vaultID); derr != nil {
			m.logger.Warn().Err(derr).Str("vault", vaultID).Msg("failed to remove key bundle after failed create")
		}
		vaultKey.Wipe()
		return nil, err
	}

	m.logger.Info().Str("vault", vaultID).Str("kdf", m.deriver.Name()).Msg("vault created")
	return s, nil
}

// Unlock reads the vault at path and runs the unlock pipeline. Every failure
// is an *UnlockError wrapping one of the four public kinds.
func (m *Manager) Unlock(path string, password []byte) (s *Session, err error) {
	vaultID, err := store.VaultID(path)
	if err != nil {
		return nil, unlockErr(ErrMissingVaultFile)
	}
	defer func() { m.audit(OpUnlock, vaultID, "", err == nil) }()

	m.logger.Debug().Str("stage", StageReadBytes.String()).Str("vault", vaultID).Msg("unlock stage")
	data, found, err := m.files.ReadIfExists(path)
	if err != nil {
		m.logger.Debug().Str("stage", StageReadBytes.String()).Str("cause", "io").Msg("unlock failed")
		return nil, unlockErr(ErrCorruptedVault)
	}
	if !found {
		return nil, unlockErr(ErrMissingVaultFile)
	}

	bundle, err := m.keys.GetBundle(vaultID)
	if err != nil {
		cause := "key_store"
		if errors.Is(err, store.ErrBundleNotFound) {
			cause = "missing_key_bundle"
		}
		m.logger.Debug().Str("stage", StageReadBytes.String()).Str("cause", cause).Msg("unlock failed")
		bundle = nil
	}

	bundle, pending, usePending := m.pickBundle(vaultID, data, bundle)
	unlocked, err := m.Pipeline().Run(data, password, bundle)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		m.settleBundle(vaultID, usePending)
	}

	return &Session{
		mgr:     m,
		path:    path,
		vaultID: vaultID,
		header:  unlocked.Header,
		graph:   unlocked.Graph,
		key:     unlocked.VaultKey,
		bundle:  bundle,
	}, nil
}

// pickBundle chooses the bundle for an unlock. A pending bundle left by an
// interrupted password change is used only when it, and not the current
// bundle, matches the container's KDF snapshot.
func (m *Manager) pickBundle(vaultID string, data []byte, current *vault.KeyBundle) (bundle, pending *vault.KeyBundle, usePending bool) {
	pending, err := m.keys.GetPendingBundle(vaultID)
	if err != nil {
		if !errors.Is(err, store.ErrBundleNotFound) {
			m.logger.Debug().Str("vault", vaultID).Str("cause", "key_store").Msg("pending key bundle unreadable")
		}
		return current, nil, false
	}

	header, _, err := vault.ParseHeader(data)
	if err != nil {
		return current, pending, false
	}
	if (current == nil || current.KDF != header.KDF) && pending.KDF == header.KDF {
		return pending, pending, true
	}
	return current, pending, false
}

// settleBundle finishes an interrupted password change after a successful
// unlock: the container decides which bundle survives.
func (m *Manager) settleBundle(vaultID string, usedPending bool) {
	if usedPending {
		m.logger.Warn().Str("vault", vaultID).Msg("password change was interrupted; restoring previous key bundle")
		if err := m.keys.RollbackBundle(vaultID); err != nil {
			m.logger.Warn().Err(err).Str("vault", vaultID).Msg("failed to restore previous key bundle")
		}
		return
	}
	if err := m.keys.CommitBundle(vaultID); err != nil {
		m.logger.Warn().Err(err).Str("vault", vaultID).Msg("failed to drop pending key bundle")
	}
}
