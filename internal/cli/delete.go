package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type deleteOptions struct {
	yes bool
}

func newDeleteCommand(a *app) *cobra.Command {
	opts := &deleteOptions{}

	cmd := &cobra.Command{
		Use:     "rm <title|id>",
		Aliases: []string{"delete"},
		Short:   "Delete an entry from the vault",
		Long: `Delete an entry and its OTP block from the vault.

Example:
  entr rm github
  entr rm github --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(cmd, a, args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip confirmation")

	return cmd
}

func runDelete(cmd *cobra.Command, a *app, ref string, opts *deleteOptions) error {
	s, done, err := a.unlock()
	if err != nil {
		return err
	}
	defer done()

	e, err := s.Graph().FindEntry(ref)
	if err != nil {
		return err
	}

	if !opts.yes {
		ok, err := a.promptConfirm(fmt.Sprintf("Delete entry '%s'?", e.Title), false)
		if err != nil {
			return err
		}
		if !ok {
			return writeOutput(cmd.OutOrStdout(), "Cancelled\n")
		}
	}

	title := e.Title
	if err := s.RemoveEntry(e.ID); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), "Entry '%s' deleted\n", title)
}
