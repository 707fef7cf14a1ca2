package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newScrapeCmd(root *rootOptions) *cobra.Command {
	var asJson bool

	cmd := &cobra.Command{
		Use:   "scrape [--json]",
		Short: "Scrape the subscriber report and print it, without touching the customer table.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			err = cfg.ValidateScraper()
			if err != nil {
				return err
			}

			scraper, err := cfg.NewScraper()
			if err != nil {
				return fmt.Errorf("create scraper: %w", err)
			}
			rows, err := scraper.FetchRows(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJson {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(rows)
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"#", "Name", "Plan", "Status", "Created"})
			for i, r := range rows {
				t.AppendRow(table.Row{i + 1, r.RawName, r.RawPlan, r.RawStatus, r.CreatedAt})
			}
			t.Render()

			stats := scraper.Stats()
			counts := newTable(out)
			counts.AppendHeader(table.Row{"Status", "Count"})
			for _, c := range stats.ByStatus {
				counts.AppendRow(table.Row{c.Label, c.Count})
			}
			counts.AppendSeparator()
			counts.AppendRow(table.Row{"Plan", "Count"})
			counts.AppendSeparator()
			for _, c := range stats.ByPlan {
				counts.AppendRow(table.Row{c.Label, c.Count})
			}
			counts.AppendFooter(table.Row{"Total", stats.Total})
			counts.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJson, "json", false, "Print the rows as JSON.")
	return cmd
}
