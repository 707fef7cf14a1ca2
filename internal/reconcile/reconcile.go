package reconcile

import (
	"cashsync/internal/domain"
	"cashsync/internal/fieldmap"
	"cashsync/internal/matcher"
	"cashsync/lib/timezone"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("cashsync/internal/reconcile")

const (
	DefaultWriteConcurrency = 1
	MaxWriteConcurrency     = 16
)

// Scraper produces the rows of the panel's subscriber report.
type Scraper interface {
	FetchRows(ctx context.Context) ([]domain.ScrapedRow, error)
}

// DataStore is the customer table being kept in sync.
type DataStore interface {
	FetchAll(ctx context.Context) ([]domain.Customer, error)
	Update(ctx context.Context, customerID string, fields domain.Fields) error
}

type Options struct {
	Matcher matcher.Matcher
	Mapper  fieldmap.Mapper
	DryRun  bool
	// WriteConcurrency bounds the number of concurrent DataStore.Update calls.
	WriteConcurrency int
	Now              func() time.Time
	NewRunID         func() string
}

type Reconciler struct {
	matcher          matcher.Matcher
	mapper           fieldmap.Mapper
	dryRun           bool
	writeConcurrency int
	now              func() time.Time
	newRunID         func() string
}

func New(opts Options) Reconciler {
	r := Reconciler{
		matcher:          opts.Matcher,
		mapper:           opts.Mapper,
		dryRun:           opts.DryRun,
		writeConcurrency: opts.WriteConcurrency,
		now:              opts.Now,
		newRunID:         opts.NewRunID,
	}
	if r.writeConcurrency < 1 {
		r.writeConcurrency = DefaultWriteConcurrency
	}
	if r.writeConcurrency > MaxWriteConcurrency {
		r.writeConcurrency = MaxWriteConcurrency
	}
	if r.now == nil {
		r.now = timezone.Now
	}
	if r.newRunID == nil {
		r.newRunID = uuid.NewString
	}
	return r
}

func (r Reconciler) DryRun() bool { return r.dryRun }

// Sync fetches both snapshots and runs the reconciliation. Failing to fetch
// either of them is fatal and returned before any write happens.
func (r Reconciler) Sync(ctx context.Context, scraper Scraper, store DataStore) (Report, error) {
	ctx, span := tracer.Start(ctx, "Sync")
	defer span.End()

	rows, err := scraper.FetchRows(ctx)
	if err != nil {
		span.RecordError(err)
		var scrapeErr *domain.ScrapeError
		if errors.As(err, &scrapeErr) {
			return Report{}, err
		}
		return Report{}, &domain.ScrapeError{Err: err}
	}
	slog.InfoContext(ctx, "scraped subscriber rows", "count", len(rows))

	customers, err := store.FetchAll(ctx)
	if err != nil {
		span.RecordError(err)
		var readErr *domain.StoreReadError
		if errors.As(err, &readErr) {
			return Report{}, err
		}
		return Report{}, &domain.StoreReadError{Err: err}
	}
	slog.InfoContext(ctx, "loaded customers", "count", len(customers))

	return r.Run(ctx, rows, customers, store), nil
}

// Run reconciles a snapshot of scraped rows against a snapshot of customers.
// Every row is attempted and reported independently, row level failures never
// abort the run. A nil store turns the run into a dry run.
func (r Reconciler) Run(ctx context.Context, rows []domain.ScrapedRow, customers []domain.Customer, store DataStore) Report {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	report := Report{
		RunID:     r.newRunID(),
		DryRun:    r.dryRun,
		StartedAt: r.now(),
		Items:     make([]Outcome, len(rows)),
	}

	for i, row := range rows {
		report.Items[i] = r.plan(i, row, customers, report.StartedAt)
	}

	if r.dryRun || store == nil {
		report.DryRun = true
		for i := range report.Items {
			if report.Items[i].State == StatePlanned {
				report.Items[i].Reason = ReasonDryRun
			}
		}
	} else {
		r.apply(ctx, store, report.Items)
	}

	report.FinishedAt = r.now()
	report.Finalize()

	span.SetAttributes(
		attribute.Int("rows", report.Summary.Total),
		attribute.Int("applied", report.Summary.Applied),
		attribute.Int("failed", report.Summary.Failed),
	)
	slog.InfoContext(
		ctx, "reconciliation finished",
		"run_id", report.RunID,
		"dry_run", report.DryRun,
		"total", report.Summary.Total,
		"applied", report.Summary.Applied,
		"planned", report.Summary.Planned,
		"skipped", report.Summary.Skipped,
		"failed", report.Summary.Failed,
		"ambiguous", report.Summary.Ambiguous,
		"no_match", report.Summary.NoMatch,
	)
	return report
}

func (r Reconciler) plan(index int, row domain.ScrapedRow, customers []domain.Customer, now time.Time) Outcome {
	out := Outcome{Index: index, Row: row, State: StatePending}

	out.Decision = r.matcher.Match(row, customers)
	switch out.Decision.Kind {
	case matcher.KindNoMatch:
		out.State = StateNoMatch
		slog.Debug("no customer matches row", "name", row.RawName)
		return out
	case matcher.KindAmbiguous:
		out.State = StateAmbiguous
		slog.Debug("row matches more than one customer", "name", row.RawName)
		return out
	}
	out.State = StateMatched
	customer, _ := out.Customer()

	mapped, err := r.mapper.Map(row)
	if err != nil {
		out.fail(err)
		return out
	}
	for _, kind := range mapped.Unmapped {
		switch kind {
		case fieldmap.KindPlan:
			out.Flags = append(out.Flags, FlagUnmappedPlan)
		case fieldmap.KindStatus:
			out.Flags = append(out.Flags, FlagUnmappedStatus)
		}
	}

	fields := domain.Fields{}
	if mapped.Plan != customer.Plan {
		fields[domain.FieldPlan] = mapped.Plan
	}
	if mapped.Status != customer.Status {
		fields[domain.FieldStatus] = mapped.Status
	}
	if len(fields) == 0 {
		out.State = StateSkipped
		out.Reason = ReasonNoOp
		return out
	}
	fields[domain.FieldLastContact] = now

	out.State = StatePlanned
	out.Plan = &domain.UpdatePlan{CustomerID: customer.ID, Fields: fields}
	return out
}

// apply writes every planned row through a bounded pool. Each goroutine only
// touches its own item.
func (r Reconciler) apply(ctx context.Context, store DataStore, items []Outcome) {
	ctx, span := tracer.Start(ctx, "apply")
	defer span.End()

	var g errgroup.Group
	g.SetLimit(r.writeConcurrency)

	for i := range items {
		item := &items[i]
		if item.State != StatePlanned {
			continue
		}
		g.Go(func() error {
			err := store.Update(ctx, item.Plan.CustomerID, item.Plan.Fields)
			if err != nil {
				var writeErr *domain.StoreWriteError
				if !errors.As(err, &writeErr) {
					err = &domain.StoreWriteError{CustomerID: item.Plan.CustomerID, Err: err}
				}
				item.fail(err)
				slog.WarnContext(ctx, "failed to update customer", "name", item.Row.RawName, "err", err)
				return nil
			}
			item.State = StateApplied
			item.Applied = true
			return nil
		})
	}

	_ = g.Wait()
}
