package commands

import (
	"cashsync/internal/domain"
	"cashsync/internal/matcher"
	"cashsync/internal/reconcile"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	return t
}

func formatValue(v any) string {
	switch v := v.(type) {
	case time.Time:
		return v.Format(time.RFC3339)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

func currentValue(c domain.Customer, field string) string {
	switch field {
	case domain.FieldPlan:
		return c.Plan
	case domain.FieldStatus:
		return c.Status
	case domain.FieldLastContact:
		if c.LastContact.IsZero() {
			return ""
		}
		return c.LastContact.Format(time.RFC3339)
	}
	return ""
}

// describeChanges renders an update plan as "field: old -> new" pairs.
func describeChanges(item reconcile.Outcome) string {
	if item.Plan == nil {
		return ""
	}
	customer, _ := item.Customer()

	fields := make([]string, 0, len(item.Plan.Fields))
	for field := range item.Plan.Fields {
		if field == domain.FieldLastContact {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	changes := make([]string, len(fields))
	for i, field := range fields {
		changes[i] = fmt.Sprintf("%s: %q -> %q", field, currentValue(customer, field), formatValue(item.Plan.Fields[field]))
	}
	return strings.Join(changes, ", ")
}

func outcomeNote(item reconcile.Outcome) string {
	notes := []string{}
	if item.Reason != "" {
		notes = append(notes, item.Reason)
	}
	if item.Error != "" {
		notes = append(notes, item.Error)
	}
	if item.State == reconcile.StateAmbiguous && len(item.Decision.Candidates) > 1 {
		c := item.Decision.Candidates
		notes = append(notes, fmt.Sprintf("%s (%.2f) or %s (%.2f)", c[0].Customer.Name, c[0].Score, c[1].Customer.Name, c[1].Score))
	}
	notes = append(notes, item.Flags...)
	return strings.Join(notes, "; ")
}

func renderOutcomes(w io.Writer, report reconcile.Report, all bool) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Panel name", "State", "Customer", "Score", "Changes", "Notes"})
	for _, item := range report.Items {
		if !all && item.State == reconcile.StateSkipped {
			continue
		}
		customer := ""
		score := ""
		if best, ok := item.Decision.Best(); ok {
			score = fmt.Sprintf("%.3f", best.Score)
			if item.Decision.Kind != matcher.KindAmbiguous {
				customer = fmt.Sprintf("%s (%s)", best.Customer.Name, best.Customer.ID)
			}
		}
		t.AppendRow(table.Row{
			item.Index + 1,
			item.Row.RawName,
			string(item.State),
			customer,
			score,
			describeChanges(item),
			outcomeNote(item),
		})
	}
	t.Render()
}

func renderSummary(w io.Writer, report reconcile.Report) {
	s := report.Summary
	t := newTable(w)
	t.AppendHeader(table.Row{"Rows", "Applied", "Planned", "Skipped", "Failed", "Ambiguous", "No match", "Flagged"})
	t.AppendRow(table.Row{s.Total, s.Applied, s.Planned, s.Skipped, s.Failed, s.Ambiguous, s.NoMatch, s.Flagged})
	t.Render()

	names, more := report.UnmatchedPreview(10)
	if len(names) > 0 {
		fmt.Fprintf(w, "Not found: %s", strings.Join(names, ", "))
		if more > 0 {
			fmt.Fprintf(w, " ... and %d more", more)
		}
		fmt.Fprintln(w)
	}
}
