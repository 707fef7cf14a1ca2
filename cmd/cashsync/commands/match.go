package commands

import (
	"cashsync/internal/domain"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newMatchCmd(root *rootOptions) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "match <name>...",
		Short: "Rank the stored customers against the given names, to tune the match threshold.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			err = cfg.ValidateStore()
			if err != nil {
				return err
			}

			store, closeStore, err := cfg.NewStore()
			if err != nil {
				return fmt.Errorf("open customer store: %w", err)
			}
			defer closeStore()

			customers, err := store.FetchAll(cmd.Context())
			if err != nil {
				return err
			}

			m := cfg.NewMatcher()
			out := cmd.OutOrStdout()
			for _, name := range args {
				decision := m.Match(domain.ScrapedRow{RawName: name}, customers)
				fmt.Fprintf(out, "%s: %s (threshold %.2f, margin %.2f)\n", name, decision.Kind, m.Threshold(), m.Margin())

				t := newTable(out)
				t.AppendHeader(table.Row{"Rank", "ID", "Name", "Score"})
				for i, c := range m.Rank(name, customers, top) {
					t.AppendRow(table.Row{i + 1, c.Customer.ID, c.Customer.Name, fmt.Sprintf("%.3f", c.Score)})
				}
				t.Render()
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 5, "How many candidates to show per name.")
	return cmd
}
