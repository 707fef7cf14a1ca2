package commands

import (
	"cashsync/internal/reconcile"
	"cashsync/lib/runstore"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "runs [--limit n] [--id run]",
		Short: "List the recorded sync runs, or the rows of one run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			history, ok, err := cfg.OpenHistory(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return errors.New("no run history configured, set history.file or history.url")
			}
			defer history.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				outcomes, err := history.Outcomes(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if len(outcomes) == 0 {
					return fmt.Errorf("run %q has no recorded rows", runID)
				}

				t := newTable(out)
				t.AppendHeader(table.Row{"#", "Name", "State", "Customer", "Score", "Note"})
				for _, o := range outcomes {
					customer, score := "", ""
					if hasCustomer(o.State) {
						customer = o.CustomerID
						score = fmt.Sprintf("%.3f", o.Score)
					}
					t.AppendRow(table.Row{o.Index + 1, o.RawName, o.State, customer, score, storedNote(o)})
				}
				t.Render()
				return nil
			}

			runs, err := history.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			t := newTable(out)
			t.AppendHeader(table.Row{"Run", "Started", "Took", "Mode", "Total", "Applied", "Planned", "Skipped", "Failed", "Ambiguous", "No match"})
			for _, r := range runs {
				mode := "write"
				if r.DryRun {
					mode = "dry-run"
				}
				s := r.Summary
				t.AppendRow(table.Row{
					r.ID,
					r.StartedAt.Format(time.DateTime),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
					mode,
					s.Total, s.Applied, s.Planned, s.Skipped, s.Failed, s.Ambiguous, s.NoMatch,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "How many runs to list.")
	cmd.Flags().StringVar(&runID, "id", "", "Show the rows of this run.")
	return cmd
}

// hasCustomer reports whether a stored row was tied to a customer. No match
// and ambiguous rows keep a best candidate for scoring, which is not theirs.
func hasCustomer(state reconcile.State) bool {
	switch state {
	case reconcile.StateMatched, reconcile.StatePlanned, reconcile.StateApplied,
		reconcile.StateSkipped, reconcile.StateFailed:
		return true
	}
	return false
}

func storedNote(o runstore.Outcome) string {
	notes := []string{}
	if o.Reason != "" {
		notes = append(notes, o.Reason)
	}
	if o.Error != "" {
		notes = append(notes, o.Error)
	}
	notes = append(notes, o.Flags...)
	return strings.Join(notes, "; ")
}
