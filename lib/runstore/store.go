// Package runstore keeps the history of reconciliation runs.
package runstore

import (
	"cashsync/internal/reconcile"
	"cashsync/lib/sqlstore"
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

//go:embed schema.sql
var Schema string

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens (or creates) the history database and applies the schema.
func Open(ctx context.Context, config sqlstore.DBConfig) (Store, error) {
	if config.Driver == sqlstore.DriverPostgres {
		return Store{}, fmt.Errorf("run history supports sqlite and libsql, not %s", config.Driver)
	}
	database, err := config.OpenDB()
	if err != nil {
		return Store{}, err
	}
	_, err = database.ExecContext(ctx, Schema)
	if err != nil {
		database.Close()
		return Store{}, err
	}
	return NewStore(database), nil
}

func (s Store) Close() error { return s.db.Close() }

// Push records a finished run and every one of its outcomes. Reports without
// a run id are given one.
func (s Store) Push(ctx context.Context, report reconcile.Report) (string, error) {
	runID := report.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	sum := report.Summary
	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO runs (id, started_at, finished_at, dry_run, total, applied, planned, skipped, failed, ambiguous, no_match, flagged)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		report.StartedAt.UnixMilli(),
		report.FinishedAt.UnixMilli(),
		report.DryRun,
		sum.Total, sum.Applied, sum.Planned, sum.Skipped, sum.Failed, sum.Ambiguous, sum.NoMatch, sum.Flagged,
	)
	if err != nil {
		return "", err
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO outcomes (run_id, idx, raw_name, raw_plan, raw_status, state, customer_id, score, applied, reason, flags, error, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for _, item := range report.Items {
		var customerID string
		var score float64
		if best, ok := item.Decision.Best(); ok {
			customerID = best.Customer.ID
			score = best.Score
		}
		fields := []byte("{}")
		if item.Plan != nil {
			fields, err = json.Marshal(item.Plan.Fields)
			if err != nil {
				return "", err
			}
		}

		_, err = stmt.ExecContext(
			ctx,
			runID, item.Index,
			item.Row.RawName, item.Row.RawPlan, item.Row.RawStatus,
			string(item.State),
			customerID, score,
			item.Applied,
			item.Reason,
			strings.Join(item.Flags, ","),
			item.Error,
			string(fields),
		)
		if err != nil {
			return "", err
		}
	}

	err = tx.Commit()
	if err != nil {
		return "", err
	}
	return runID, nil
}

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Summary    reconcile.Summary
}

// List returns the most recent runs first.
func (s Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, started_at, finished_at, dry_run, total, applied, planned, skipped, failed, ambiguous, no_match, flagged
		FROM runs ORDER BY started_at DESC, id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished int64
		sum := &r.Summary
		err = rows.Scan(
			&r.ID, &started, &finished, &r.DryRun,
			&sum.Total, &sum.Applied, &sum.Planned, &sum.Skipped, &sum.Failed, &sum.Ambiguous, &sum.NoMatch, &sum.Flagged,
		)
		if err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

type Outcome struct {
	Index      int
	RawName    string
	RawPlan    string
	RawStatus  string
	State      reconcile.State
	CustomerID string
	Score      float64
	Applied    bool
	Reason     string
	Flags      []string
	Error      string
	Fields     map[string]any
}

// Outcomes returns the rows of a run in scrape order.
func (s Store) Outcomes(ctx context.Context, runID string) ([]Outcome, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT idx, raw_name, raw_plan, raw_status, state, customer_id, score, applied, reason, flags, error, fields
		FROM outcomes WHERE run_id = ? ORDER BY idx`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var o Outcome
		var state, flags, fields string
		err = rows.Scan(
			&o.Index, &o.RawName, &o.RawPlan, &o.RawStatus, &state,
			&o.CustomerID, &o.Score, &o.Applied, &o.Reason, &flags, &o.Error, &fields,
		)
		if err != nil {
			return nil, err
		}
		o.State = reconcile.State(state)
		if flags != "" {
			o.Flags = strings.Split(flags, ",")
		}
		err = json.Unmarshal([]byte(fields), &o.Fields)
		if err != nil {
			slog.WarnContext(ctx, "failed to unmarshal stored fields", "run_id", runID, "idx", o.Index, "err", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
