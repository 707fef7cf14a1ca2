package commands

import (
	"cashsync/internal/domain"
	"cashsync/internal/reconcile"
	"cashsync/lib/notify"
	"cashsync/lib/telemetry"
	"cashsync/lib/util/serviceutil"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

type syncOptions struct {
	dryRun  bool
	strict  bool
	all     bool
	json    bool
	noEmail bool
}

func newSyncCmd(root *rootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync [--dry-run] [--strict]",
		Short: "Scrape the subscriber report and update the matching customers.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if opts.dryRun {
				cfg.DryRun = true
			}
			if opts.strict {
				cfg.Labels.Strict = true
			}
			return runSync(cmd, cfg, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Plan the updates without writing them.")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail rows whose plan or status label has no mapping.")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Also list rows that were already up to date.")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the report as JSON.")
	cmd.Flags().BoolVar(&opts.noEmail, "no-email", false, "Do not email the summary even if smtp is configured.")
	return cmd
}

func runSync(cmd *cobra.Command, cfg Config, opts *syncOptions) error {
	err := cfg.ValidateScraper()
	if err != nil {
		return err
	}
	err = cfg.ValidateStore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	telemetry.InstrumentPerfStats(ctx, 30*time.Second)

	scraper, err := cfg.NewScraper()
	if err != nil {
		return fmt.Errorf("create scraper: %w", err)
	}
	store, closeStore, err := cfg.NewStore()
	if err != nil {
		return fmt.Errorf("open customer store: %w", err)
	}
	defer closeStore()

	reconciler := cfg.NewReconciler()
	slog.InfoContext(ctx, "starting sync", "dry_run", reconciler.DryRun(), "store", cfg.Store.Driver, "table", cfg.Store.Table)

	report, err := reconciler.Sync(ctx, scraper, store)
	if domain.IsFatal(err) {
		slog.ErrorContext(ctx, "sync aborted before any customer was updated", "err", err)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.json {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(report)
		if err != nil {
			return err
		}
	} else {
		renderOutcomes(out, report, opts.all)
		renderSummary(out, report)
	}

	recordHistory(ctx, cfg, report)
	if !opts.noEmail {
		sendSummary(ctx, cfg, report)
	}

	if report.HasFailures() {
		return &serviceutil.ExitError{
			Code: 2,
			Err:  fmt.Errorf("sync finished with %d failed rows", report.Summary.Failed),
		}
	}
	return nil
}

func recordHistory(ctx context.Context, cfg Config, report reconcile.Report) {
	history, ok, err := cfg.OpenHistory(ctx)
	if err != nil {
		slog.WarnContext(ctx, "run not recorded", "err", err)
		return
	}
	if !ok {
		return
	}
	defer history.Close()

	runID, err := history.Push(ctx, report)
	if err != nil {
		slog.WarnContext(ctx, "run not recorded", "err", err)
		return
	}
	slog.InfoContext(ctx, "run recorded", "run_id", runID)
}

func sendSummary(ctx context.Context, cfg Config, report reconcile.Report) {
	if !cfg.Smtp.Enabled() {
		return
	}
	mailer, err := notify.NewMailer(cfg.Smtp)
	if err != nil {
		slog.WarnContext(ctx, "summary not emailed", "err", err)
		return
	}
	err = mailer.Send(ctx, report)
	if err != nil {
		slog.WarnContext(ctx, "summary not emailed", "err", err)
		return
	}
	slog.InfoContext(ctx, "summary emailed", "to", cfg.Smtp.To)
}
