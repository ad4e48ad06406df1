package cli

import (
	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/store"
)

type auditOptions struct {
	all bool
}

func newAuditCommand(a *app) *cobra.Command {
	opts := &auditOptions{}

	cmd := &cobra.Command{
		Use:     "audit-log",
		Aliases: []string{"audit"},
		Short:   "Show the audit log",
		Long: `Show recorded vault operations, oldest first.

Only operation types, entry ids, outcomes and timestamps are logged; no
secret material ever reaches the audit log. The master password is not
required.

Example:
  entr audit-log
  entr audit-log --all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if !opts.all {
				var err error
				if id, err = store.VaultID(a.vaultPath); err != nil {
					return err
				}
			}

			keys, err := store.OpenKeyStore(a.cfg.KeyStorePath, store.DefaultLockTimeout)
			if err != nil {
				return err
			}
			defer keys.Close()

			ops, err := keys.AuditLog(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(ops) == 0 {
				return writeOutput(out, "No audit entries\n")
			}
			rows := make([][]string, 0, len(ops))
			for _, op := range ops {
				result := "ok"
				if !op.Success {
					result = "failed"
				}
				row := []string{formatTime(op.Timestamp), op.Type, dash(op.EntryID), result}
				if opts.all {
					row = append(row, op.VaultID)
				}
				rows = append(rows, row)
			}
			header := []string{"TIME", "OPERATION", "ENTRY", "RESULT"}
			if opts.all {
				header = append(header, "VAULT")
			}
			return writeTable(out, header, rows)
		},
	}

	cmd.Flags().BoolVar(&opts.all, "all", false, "show entries for every vault in the key store")

	return cmd
}
