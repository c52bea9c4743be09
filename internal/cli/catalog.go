package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ai-novel-orchestrator/internal/workflow/prompt"
)

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "列出可用的题材与文风",
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog := prompt.DefaultCatalog()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintln(w, "GENRE\tLABEL\tDESCRIPTION")
			for _, g := range catalog.Genres {
				fmt.Fprintf(w, "%s\t%s\t%s\n", g.Name, g.Label, g.Description)
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, "STYLE\tLABEL\tTRAITS")
			for _, s := range catalog.Styles {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Label, strings.Join(s.Traits, "、"))
			}
			return w.Flush()
		},
	}
}
