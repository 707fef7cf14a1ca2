// Package notify emails the summary of a reconciliation run.
package notify

import (
	"cashsync/internal/reconcile"
	"cashsync/lib/telemetry"
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("cashsync/lib/notify")

// MaxListed bounds the unmatched and failed names written into a summary.
const MaxListed = 10

type EmailConfig struct {
	Server       string   `json:"server"`
	Port         int      `json:"port"`
	EmailAddress string   `json:"email_address"`
	Password     string   `json:"password"`
	To           []string `json:"to"`
}

func (c EmailConfig) Enabled() bool {
	return c.Server != "" && len(c.To) > 0
}

type Mailer struct {
	config EmailConfig
}

func NewMailer(config EmailConfig) (Mailer, error) {
	if config.Server == "" {
		return Mailer{}, errors.New("smtp server is required")
	}
	if config.Port == 0 {
		config.Port = 587
	}
	if config.EmailAddress == "" {
		return Mailer{}, errors.New("smtp email address is required")
	}
	if len(config.To) == 0 {
		return Mailer{}, errors.New("at least one recipient is required")
	}
	return Mailer{config: config}, nil
}

func Subject(report reconcile.Report) string {
	s := report.Summary
	prefix := "cashsync"
	if report.DryRun {
		prefix = "cashsync (dry run)"
	}
	if s.Failed > 0 {
		return fmt.Sprintf("%s: %d updated, %d failed", prefix, s.Applied, s.Failed)
	}
	if report.DryRun {
		return fmt.Sprintf("%s: %d planned", prefix, s.Planned)
	}
	return fmt.Sprintf("%s: %d updated", prefix, s.Applied)
}

// Body renders the plain text summary of a run.
func Body(report reconcile.Report) string {
	var b strings.Builder
	s := report.Summary

	fmt.Fprintf(&b, "Run %s\n", report.RunID)
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(&b, "Started %s, took %s\n", report.StartedAt.Format(time.RFC3339), report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	if report.DryRun {
		b.WriteString("Dry run, nothing was written.\n")
	}
	b.WriteString("\n")

	rows := []struct {
		label string
		n     int
	}{
		{"Rows", s.Total},
		{"Updated", s.Applied},
		{"Planned", s.Planned},
		{"Already up to date", s.Skipped},
		{"Failed", s.Failed},
		{"Ambiguous", s.Ambiguous},
		{"No match", s.NoMatch},
		{"Unmapped labels", s.Flagged},
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%-20s %d\n", r.label+":", r.n)
	}

	failures := report.Failures()
	if len(failures) > 0 {
		b.WriteString("\nFailed rows:\n")
		for i, f := range failures {
			if i == MaxListed {
				fmt.Fprintf(&b, "  ... and %d more\n", len(failures)-MaxListed)
				break
			}
			fmt.Fprintf(&b, "  - %s: %s\n", f.Row.RawName, f.Error)
		}
	}

	names, more := report.UnmatchedPreview(MaxListed)
	if len(names) > 0 {
		b.WriteString("\nNot found in the customer table:\n")
		for _, name := range names {
			fmt.Fprintf(&b, "  - %s\n", name)
		}
		if more > 0 {
			fmt.Fprintf(&b, "  ... and %d more\n", more)
		}
	}

	return b.String()
}

func (m Mailer) Send(ctx context.Context, report reconcile.Report) error {
	ctx, span := tracer.Start(ctx, "notify:Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("cashsync <%s>", m.config.EmailAddress)
	mail.To = m.config.To
	mail.Subject = Subject(report)
	mail.Text = []byte(Body(report))

	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
