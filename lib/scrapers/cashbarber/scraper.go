package cashbarber

import (
	"cashsync/internal/domain"
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Credentials struct {
	Email    string
	Password string
}

// Scraper logs in and reads the subscriber report on every call to FetchRows.
type Scraper struct {
	client      *Client
	credentials Credentials
	reportPath  string
	loggedIn    bool
	lastStats   Stats
}

func NewScraper(client *Client, credentials Credentials, reportPath string) *Scraper {
	if reportPath == "" {
		reportPath = DefaultReportPath
	}
	return &Scraper{
		client:      client,
		credentials: credentials,
		reportPath:  reportPath,
	}
}

// Stats returns the statistics of the last successful fetch.
func (s *Scraper) Stats() Stats {
	return s.lastStats
}

func (s *Scraper) FetchRows(ctx context.Context) ([]domain.ScrapedRow, error) {
	ctx, span := tracer.Start(ctx, "scraper:FetchRows")
	defer span.End()

	if !s.loggedIn {
		err := s.client.Login(ctx, s.credentials.Email, s.credentials.Password)
		if err != nil {
			span.SetStatus(codes.Error, "login failed")
			return nil, fmt.Errorf("login: %w", err)
		}
		s.loggedIn = true
		slog.InfoContext(ctx, "logged into cashbarber", "email", s.credentials.Email)
	}

	doc, err := s.client.FetchReport(ctx, s.reportPath)
	if err != nil {
		s.loggedIn = false
		span.SetStatus(codes.Error, "fetch report failed")
		return nil, fmt.Errorf("fetch report %s: %w", s.reportPath, err)
	}

	rows, err := ParseSubscribers(doc)
	if err != nil {
		span.SetStatus(codes.Error, "parse report failed")
		return nil, fmt.Errorf("parse report: %w", err)
	}

	total, ok := TotalCount(doc)
	if ok && total != len(rows) {
		slog.WarnContext(ctx, "parsed row count differs from the panel total", "parsed", len(rows), "total", total)
	}

	s.lastStats = ComputeStats(rows)
	for _, c := range s.lastStats.ByStatus {
		slog.DebugContext(ctx, "subscribers by status", "status", c.Label, "count", c.Count)
	}
	for _, c := range s.lastStats.ByPlan {
		slog.DebugContext(ctx, "subscribers by plan", "plan", c.Label, "count", c.Count)
	}

	span.SetAttributes(attribute.Int("rows", len(rows)))
	return rows, nil
}
