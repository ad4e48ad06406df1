// Package cli implements the entr command line on top of internal/session.
package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/clipboard"
	"github.com/vault-cli/entr/internal/config"
	"github.com/vault-cli/entr/internal/logging"
	"github.com/vault-cli/entr/internal/session"
	"github.com/vault-cli/entr/internal/store"
)

// PasswordSource reads a secret after showing prompt. The returned slice is
// owned by the caller, which zeroes it.
type PasswordSource func(prompt string) ([]byte, error)

// app holds the state shared by every command of one invocation.
type app struct {
	cfgFile   string
	vaultPath string
	verbose   bool

	cfg    *config.Config
	logger zerolog.Logger

	passwords PasswordSource
	clip      *clipboard.Clipboard
	clock     func() time.Time
	rand      io.Reader
	stdin     io.Reader
}

// Option configures the command tree, mainly for tests.
type Option func(*app)

// WithPasswordSource replaces the terminal password prompt.
func WithPasswordSource(p PasswordSource) Option {
	return func(a *app) { a.passwords = p }
}

// WithClipboard replaces the system clipboard.
func WithClipboard(c *clipboard.Clipboard) Option {
	return func(a *app) { a.clip = c }
}

// WithClock replaces the wall clock used for timestamps and TOTP codes.
func WithClock(clock func() time.Time) Option {
	return func(a *app) { a.clock = clock }
}

// WithRandom replaces crypto/rand for generated passwords.
func WithRandom(r io.Reader) Option {
	return func(a *app) { a.rand = r }
}

// NewRootCommand builds the entr command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{
		logger: zerolog.Nop(),
		clip:   clipboard.New(),
		clock:  time.Now,
		stdin:  os.Stdin,
	}
	a.passwords = a.promptPassword
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:   "entr",
		Short: "A secure, local-only password manager",
		Long: `entr keeps credentials in a single encrypted container file.

- AES-256-GCM for every sensitive field and for the container payload
- Argon2id key derivation with a wrapped per-vault key
- Tamper-evident container header with an integrity hash
- TOTP codes from encrypted OTP secrets
- Audit log of every vault operation`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.config/entr/config.yaml)")
	root.PersistentFlags().StringVar(&a.vaultPath, "vault", "", "vault container path")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stderr")

	root.AddCommand(
		newInitCommand(a),
		newUnlockCommand(a),
		newAddCommand(a),
		newGetCommand(a),
		newListCommand(a),
		newDeleteCommand(a),
		newTOTPCommand(a),
		newOTPCommand(a),
		newPasswdCommand(a),
		newDoctorCommand(a),
		newAuditCommand(a),
		newConfigCommand(a),
		newPassgenCommand(a),
	)
	return root
}

// Execute runs the entr command line.
func Execute() error {
	return NewRootCommand().Execute()
}

func (a *app) load(cmd *cobra.Command) error {
	if a.cfgFile == "" {
		a.cfgFile = config.DefaultPath()
	}

	cfg, err := config.LoadConfig(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	logger, err := logging.NewStderr(cfg.LogLevel, a.verbose)
	if err != nil {
		return err
	}
	a.logger = logger

	if a.vaultPath == "" {
		a.vaultPath = cfg.VaultPath
	}
	a.vaultPath = filepath.Clean(a.vaultPath)
	a.stdin = cmd.InOrStdin()
	return nil
}

// manager opens the key store and builds a session manager. The returned
// func closes the key store.
func (a *app) manager() (*session.Manager, func(), error) {
	deriver, err := a.cfg.Deriver(a.logger)
	if err != nil {
		return nil, nil, err
	}

	keys, err := store.OpenKeyStore(a.cfg.KeyStorePath, store.DefaultLockTimeout)
	if err != nil {
		return nil, nil, err
	}
	closeKeys := func() {
		if err := keys.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("failed to close key store")
		}
	}

	files := store.NewOSFileStore(store.WithLogger(a.logger))
	mgr := session.NewManager(files, keys,
		session.WithLogger(a.logger),
		session.WithDeriver(deriver),
		session.WithClock(a.clock),
		session.WithMinPasswordLength(a.cfg.MinPasswordLength),
	)
	return mgr, closeKeys, nil
}

// unlock prompts for the master password and unlocks the vault. The returned
// func closes the session and the key store.
func (a *app) unlock() (*session.Session, func(), error) {
	mgr, closeKeys, err := a.manager()
	if err != nil {
		return nil, nil, err
	}

	password, err := a.readPassword("Master password: ")
	if err != nil {
		closeKeys()
		return nil, nil, err
	}
	defer zero(password)

	s, err := mgr.Unlock(a.vaultPath, password)
	if err != nil {
		closeKeys()
		return nil, nil, err
	}
	return s, func() {
		s.Close()
		closeKeys()
	}, nil
}
