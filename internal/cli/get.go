package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/domain"
)

type getOptions struct {
	field string
	copy  bool
}

func newGetCommand(a *app) *cobra.Command {
	opts := &getOptions{}

	cmd := &cobra.Command{
		Use:   "get <title|id>",
		Short: "Decrypt one field of an entry",
		Long: `Decrypt one field of an entry and print it, or copy it to the clipboard.

Fields: username, password, notes, metadata.

Example:
  entr get github                     # print the password
  entr get github --field username
  entr get github --copy              # copy, then clear after the clipboard TTL`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, a, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.field, "field", "f", domain.FieldPassword.String(), "field to decrypt (username|password|notes|metadata)")
	cmd.Flags().BoolVarP(&opts.copy, "copy", "c", false, "copy to clipboard instead of printing")

	return cmd
}

func runGet(cmd *cobra.Command, a *app, ref string, opts *getOptions) error {
	kind, err := domain.ParseFieldKind(opts.field)
	if err != nil {
		return err
	}
	if !kind.Settable() {
		return fmt.Errorf("field %s cannot be read with get (use 'entr totp' for one-time codes)", kind)
	}

	s, done, err := a.unlock()
	if err != nil {
		return err
	}
	defer done()

	e, err := s.Graph().FindEntry(ref)
	if err != nil {
		return err
	}
	if !s.HasField(e.ID, kind) {
		return fmt.Errorf("entry '%s' has no %s", e.Title, kind)
	}

	buf, err := s.DecryptField(e.ID, kind)
	if err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", kind, err)
	}
	defer buf.Wipe()

	return buf.WithRead(func(value []byte) error {
		if opts.copy {
			return a.copySecret(cmd, string(value), kind.String())
		}
		return writeOutput(cmd.OutOrStdout(), "%s\n", value)
	})
}
