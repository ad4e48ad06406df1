package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPasswdCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change the master password",
		Long: `Change the master password.

The vault key is rewrapped under the new password with the KDF parameters
from the config file. Entry ciphertexts are not re-encrypted. If the
container cannot be rewritten the previous key bundle is restored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswd(cmd, a)
		},
	}
}

func runPasswd(cmd *cobra.Command, a *app) error {
	params := a.cfg.KDFParams()

	mgr, closeKeys, err := a.manager()
	if err != nil {
		return err
	}
	defer closeKeys()

	current, err := a.readPassword("Current master password: ")
	if err != nil {
		return err
	}
	defer zero(current)

	s, err := mgr.Unlock(a.vaultPath, current)
	if err != nil {
		return err
	}
	defer s.Close()

	next, err := a.readNewPassword("New master password: ")
	if err != nil {
		return err
	}
	defer zero(next)

	if err := s.ChangePassword(current, next, params); err != nil {
		return fmt.Errorf("failed to change master password: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), "Master password changed\n")
}
