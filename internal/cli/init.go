package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/vault"
)

type initOptions struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
	saltLength  uint8
	tune        time.Duration
}

func newInitCommand(a *app) *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a new vault",
		Long: `Initialize a new vault with a master password.

The vault is created with:
- Argon2id key derivation (parameters from config unless overridden)
- AES-256-GCM authenticated encryption
- Secure file permissions (0600)

Example:
  entr init
  entr init --kdf-memory 131072 --kdf-iterations 4
  entr init --tune 500ms`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, a, opts)
		},
	}

	cmd.Flags().Uint32Var(&opts.memory, "kdf-memory", 0, "Argon2id memory in KiB (default from config)")
	cmd.Flags().Uint32Var(&opts.iterations, "kdf-iterations", 0, "Argon2id iterations (default from config)")
	cmd.Flags().Uint8Var(&opts.parallelism, "kdf-parallelism", 0, "Argon2id parallelism (default from config)")
	cmd.Flags().Uint8Var(&opts.saltLength, "salt-length", 0, "salt length in bytes, 16-32 (default from config)")
	cmd.Flags().DurationVar(&opts.tune, "tune", 0, "benchmark Argon2id and pick parameters for this derivation time")

	return cmd
}

func (o *initOptions) params(a *app) vault.KDFParams {
	params := a.cfg.KDFParams()
	if o.tune > 0 {
		params = vault.TuneKDFParams(o.tune)
	}
	if o.memory != 0 {
		params.MemoryKiB = o.memory
	}
	if o.iterations != 0 {
		params.Iterations = o.iterations
	}
	if o.parallelism != 0 {
		params.Parallelism = o.parallelism
	}
	if o.saltLength != 0 {
		params.SaltLength = o.saltLength
	}
	return params
}

func runInit(cmd *cobra.Command, a *app, opts *initOptions) error {
	params := opts.params(a)
	if err := vault.ValidateKDFParams(params); err != nil {
		return err
	}

	mgr, closeKeys, err := a.manager()
	if err != nil {
		return err
	}
	defer closeKeys()

	password, err := a.readNewPassword("New master password: ")
	if err != nil {
		return err
	}
	defer zero(password)

	s, err := mgr.Create(a.vaultPath, password, params)
	if err != nil {
		return fmt.Errorf("failed to create vault: %w", err)
	}
	s.Close()

	out := cmd.OutOrStdout()
	return writeOutput(out, "Vault created at %s\nKDF: argon2id memory=%d KiB iterations=%d parallelism=%d salt=%d\n",
		a.vaultPath, params.MemoryKiB, params.Iterations, params.Parallelism, params.SaltLength)
}
