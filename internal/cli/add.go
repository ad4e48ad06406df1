package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/security"
	"github.com/vault-cli/entr/internal/session"
)

type addOptions struct {
	username string
	domain   string
	tags     []string
	folder   string
	notes    string
	generate bool
	length   int
	charset  string
}

func newAddCommand(a *app) *cobra.Command {
	opts := &addOptions{}

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a new entry to the vault",
		Long: `Add a new entry to the vault.

The password is prompted for unless --generate is set. Username, notes and
password are each encrypted with their own binding to the entry.

Example:
  entr add github --username alice --domain github.com
  entr add bank --generate --length 32 --folder Finance
  entr add wifi --tags home,network --notes "guest network"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, a, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "username")
	cmd.Flags().StringVar(&opts.domain, "domain", "", "domain hint used by search")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "comma separated tags")
	cmd.Flags().StringVar(&opts.folder, "folder", "", "folder name, created if missing")
	cmd.Flags().StringVar(&opts.notes, "notes", "", "notes")
	cmd.Flags().BoolVarP(&opts.generate, "generate", "g", false, "generate a random password")
	cmd.Flags().IntVar(&opts.length, "length", 24, "generated password length")
	cmd.Flags().StringVar(&opts.charset, "charset", string(security.CharsetAlnumSym), "generated password charset (alpha|alnum|alnumsym)")

	return cmd
}

func runAdd(cmd *cobra.Command, a *app, title string, opts *addOptions) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("title must not be empty")
	}

	s, done, err := a.unlock()
	if err != nil {
		return err
	}
	defer done()

	var password []byte
	if opts.generate {
		password, err = security.NewGenerator(a.rand).Password(opts.length, security.Charset(opts.charset))
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
	} else {
		password, err = a.readPassword("Entry password (empty for none): ")
		if err != nil {
			return err
		}
	}

	if opts.folder != "" {
		if _, err := s.Graph().Folder(opts.folder); err != nil {
			if _, err := s.AddFolder(opts.folder); err != nil {
				zero(password)
				return err
			}
		}
	}

	e, err := s.AddEntry(session.EntryInput{
		Title:      title,
		DomainHint: opts.domain,
		Tags:       opts.tags,
		Folder:     opts.folder,
		Username:   []byte(opts.username),
		Password:   password,
		Notes:      []byte(opts.notes),
	})
	if err != nil {
		return fmt.Errorf("failed to add entry: %w", err)
	}

	if err := s.Save(); err != nil {
		return fmt.Errorf("failed to save vault: %w", err)
	}

	out := cmd.OutOrStdout()
	if e.Security != nil {
		return writeOutput(out, "Entry '%s' added (%s, password strength: %s)\n", e.Title, e.ID, e.Security.Strength)
	}
	return writeOutput(out, "Entry '%s' added (%s)\n", e.Title, e.ID)
}
