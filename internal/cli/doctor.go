package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/session"
	"github.com/vault-cli/entr/internal/store"
	"github.com/vault-cli/entr/internal/vault"
)

func newDoctorCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Perform security and health checks",
		Long: `Perform security and health checks without the master password.

This command checks:
- Container structure and integrity hash
- KDF parameter strength
- File and directory permissions
- Key bundle presence and key store consistency

Example:
  entr doctor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.OutOrStdout(), a)
		},
	}
}

type doctorReport struct {
	out      io.Writer
	issues   int
	warnings int
	corrupt  bool
}

func (r *doctorReport) ok(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   ✅ "+format+"\n", args...)
}

func (r *doctorReport) warn(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   ⚠️  "+format+"\n", args...)
	r.warnings++
}

func (r *doctorReport) fail(format string, args ...interface{}) {
	fmt.Fprintf(r.out, "   ❌ "+format+"\n", args...)
	r.issues++
}

func runDoctor(out io.Writer, a *app) error {
	r := &doctorReport{out: out}
	fmt.Fprintln(out, "Vault Security & Health Check")
	fmt.Fprintln(out, "=============================")

	fmt.Fprintln(out, "\n1. Container")
	data, err := os.ReadFile(a.vaultPath)
	switch {
	case os.IsNotExist(err):
		r.fail("Vault file not found: %s", a.vaultPath)
		return fmt.Errorf("%w: %s", session.ErrMissingVaultFile, a.vaultPath)
	case err != nil:
		r.fail("Cannot read vault file: %v", err)
	default:
		checkContainer(r, data)
	}

	fmt.Fprintln(out, "\n2. File Security")
	checkPerm(r, "Vault file", a.vaultPath, 0o600)
	checkPerm(r, "Vault directory", filepath.Dir(a.vaultPath), 0o700)
	checkPerm(r, "Key store", a.cfg.KeyStorePath, 0o600)

	fmt.Fprintln(out, "\n3. Key Store")
	checkKeyStore(r, a)

	fmt.Fprintf(out, "\nSummary: %d issue(s), %d warning(s)\n", r.issues, r.warnings)
	if r.corrupt {
		return fmt.Errorf("%w: container failed structural checks", session.ErrCorruptedVault)
	}
	if r.issues > 0 {
		return fmt.Errorf("doctor found %d issue(s)", r.issues)
	}
	return nil
}

func checkContainer(r *doctorReport, data []byte) {
	h, bundle, err := vault.DecodeContainer(data)
	if err != nil {
		r.fail("Container check failed: %v", err)
		r.corrupt = true
		return
	}

	info := vault.Describe(h, bundle)
	r.ok("Integrity hash verified (%s...)", info.IntegrityHash[:16])
	r.ok("Format %d, vault version %d, schema %d, %s", info.FormatVersion, info.VaultVersion, info.SchemaVersion, info.EncryptionMethod)
	r.ok("Payload: %d bytes, created %s, modified %s", info.PayloadBytes, info.CreatedAt, info.ModifiedAt)

	kdf := info.KDF
	if err := vault.ValidateKDFParams(kdf); err != nil {
		r.fail("KDF parameters rejected: %v", err)
		r.corrupt = true
		return
	}
	defaults := vault.DefaultKDFParams()
	if kdf.MemoryKiB < defaults.MemoryKiB || kdf.Iterations < defaults.Iterations {
		r.warn("KDF parameters below defaults: memory=%d KiB iterations=%d (run 'entr passwd' to upgrade)", kdf.MemoryKiB, kdf.Iterations)
	} else {
		r.ok("KDF: argon2id memory=%d KiB iterations=%d parallelism=%d", kdf.MemoryKiB, kdf.Iterations, kdf.Parallelism)
	}
}

func checkPerm(r *doctorReport, what, path string, want os.FileMode) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			r.warn("%s not found: %s", what, path)
		} else {
			r.fail("Cannot check %s: %v", what, err)
		}
		return
	}

	perm := info.Mode().Perm()
	switch {
	case perm == want:
		r.ok("%s permissions: %o (secure)", what, perm)
	case perm&0o077 != 0:
		r.fail("%s permissions: %o (too permissive, should be %o)", what, perm, want)
		fmt.Fprintf(r.out, "      Fix with: chmod %o %s\n", want, path)
	default:
		r.warn("%s permissions: %o (acceptable but %o recommended)", what, perm, want)
	}
}

func checkKeyStore(r *doctorReport, a *app) {
	id, err := store.VaultID(a.vaultPath)
	if err != nil {
		r.fail("Cannot resolve vault id: %v", err)
		return
	}

	keys, err := store.OpenKeyStore(a.cfg.KeyStorePath, store.DefaultLockTimeout)
	if err != nil {
		r.fail("Cannot open key store: %v", err)
		return
	}
	defer keys.Close()

	if err := keys.VerifyIntegrity(); err != nil {
		r.fail("Key store integrity check failed: %v", err)
	} else {
		r.ok("Key store structure is valid")
	}

	if keys.HasBundle(id) {
		r.ok("Key bundle present for %s", id)
	} else {
		r.fail("No key bundle for %s; the vault cannot be unlocked", id)
	}
}
