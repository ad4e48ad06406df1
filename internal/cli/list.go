package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vault-cli/entr/internal/domain"
)

type listOptions struct {
	reused bool
}

func newListCommand(a *app) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:     "list [query]",
		Aliases: []string{"ls"},
		Short:   "List entries",
		Long: `List entries, optionally filtered by a search query.

The query is split on spaces and '+'; every token must match the title,
domain hint or a tag. Matching is case-insensitive.

Example:
  entr list
  entr list bank
  entr list "example+org"
  entr list --reused`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return runList(cmd, a, query, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.reused, "reused", false, "show groups of entries sharing a password")

	return cmd
}

func runList(cmd *cobra.Command, a *app, query string, opts *listOptions) error {
	s, done, err := a.unlock()
	if err != nil {
		return err
	}
	defer done()

	out := cmd.OutOrStdout()
	g := s.Graph()

	if opts.reused {
		groups, err := s.FindReused()
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			return writeOutput(out, "No reused passwords\n")
		}
		rows := make([][]string, 0, len(groups))
		for i, group := range groups {
			titles := make([]string, 0, len(group))
			for _, id := range group {
				titles = append(titles, g.Entries[id].Title)
			}
			rows = append(rows, []string{strconv.Itoa(i + 1), strings.Join(titles, ", ")})
		}
		return writeTable(out, []string{"GROUP", "ENTRIES"}, rows)
	}

	entries := g.Search(query)
	if len(entries) == 0 {
		return writeOutput(out, "No entries found\n")
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Title, dash(e.DomainHint), folderNames(g, e.ID), strength(e), otpMark(e)})
	}
	return writeTable(out, []string{"TITLE", "DOMAIN", "FOLDERS", "STRENGTH", "OTP"}, rows)
}

func folderNames(g *domain.Graph, entryID string) string {
	var names []string
	for _, f := range g.FoldersOf(entryID) {
		names = append(names, f.Name)
	}
	return dash(strings.Join(names, ","))
}

func strength(e *domain.Entry) string {
	if e.Security == nil {
		return "-"
	}
	return e.Security.Strength
}

func otpMark(e *domain.Entry) string {
	if e.OTPBlockID == "" {
		return "-"
	}
	return "yes"
}
