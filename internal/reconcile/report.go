package reconcile

import (
	"cashsync/internal/domain"
	"cashsync/internal/matcher"
	"time"
)

// State is where a row ended up. Pending, Matched and Planned are transient
// while a run is in progress, except that a dry run leaves rows Planned.
type State string

const (
	StatePending   State = "pending"
	StateMatched   State = "matched"
	StatePlanned   State = "planned"
	StateApplied   State = "applied"
	StateSkipped   State = "skipped"
	StateFailed    State = "failed"
	StateAmbiguous State = "ambiguous"
	StateNoMatch   State = "no_match"
)

const (
	ReasonNoOp   = "no-op"
	ReasonDryRun = "dry-run"

	FlagUnmappedPlan   = "unmapped_plan"
	FlagUnmappedStatus = "unmapped_status"
)

type Outcome struct {
	Index    int                `json:"index"`
	Row      domain.ScrapedRow  `json:"row"`
	Decision matcher.Decision   `json:"decision"`
	State    State              `json:"state"`
	Plan     *domain.UpdatePlan `json:"plan,omitempty"`
	Applied  bool               `json:"applied"`
	Reason   string             `json:"reason,omitempty"`
	Flags    []string           `json:"flags,omitempty"`
	Err      error              `json:"-"`
	Error    string             `json:"error,omitempty"`
}

func (o *Outcome) fail(err error) {
	o.State = StateFailed
	o.Applied = false
	o.Err = err
	o.Error = err.Error()
}

// Customer returns the customer the row was matched to, if any.
func (o Outcome) Customer() (domain.Customer, bool) {
	if o.Decision.Kind != matcher.KindMatched {
		return domain.Customer{}, false
	}
	best, ok := o.Decision.Best()
	return best.Customer, ok
}

type Summary struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Planned   int `json:"planned"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Ambiguous int `json:"ambiguous"`
	NoMatch   int `json:"no_match"`
	Flagged   int `json:"flagged"`
}

// Report has one Outcome per scraped row, in scrape order.
type Report struct {
	RunID      string    `json:"run_id"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Items      []Outcome `json:"items"`
	Summary    Summary   `json:"summary"`
}

// Finalize recomputes the summary from the items.
func (r *Report) Finalize() {
	s := Summary{Total: len(r.Items)}
	for _, it := range r.Items {
		switch it.State {
		case StateApplied:
			s.Applied++
		case StatePlanned:
			s.Planned++
		case StateSkipped:
			s.Skipped++
		case StateFailed:
			s.Failed++
		case StateAmbiguous:
			s.Ambiguous++
		case StateNoMatch:
			s.NoMatch++
		}
		if len(it.Flags) > 0 {
			s.Flagged++
		}
	}
	r.Summary = s
}

// Unmatched lists the scraped names that found no customer, in scrape order.
func (r Report) Unmatched() []string {
	var names []string
	for _, it := range r.Items {
		if it.State == StateNoMatch {
			names = append(names, it.Row.RawName)
		}
	}
	return names
}

func (r Report) HasFailures() bool {
	return r.Summary.Failed > 0
}

// UnmatchedPreview returns at most limit unmatched names and how many were
// left out.
func (r Report) UnmatchedPreview(limit int) ([]string, int) {
	names := r.Unmatched()
	if limit < 0 || len(names) <= limit {
		return names, 0
	}
	return names[:limit], len(names) - limit
}

// Failures returns the failed outcomes in scrape order.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, it := range r.Items {
		if it.State == StateFailed {
			out = append(out, it)
		}
	}
	return out
}
