// Package sqlstore keeps the customer table in a SQL database reached through
// database/sql: a local sqlite file, a libsql (Turso) database or Postgres,
// including the Postgres behind a Supabase project.
package sqlstore

import (
	"cashsync/internal/domain"
	"cashsync/lib/telemetry"
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("cashsync/lib/sqlstore")

type Store struct {
	db       *sql.DB
	postgres bool
	table    string
	columns  domain.Columns
}

func New(db *sql.DB, driver, table string, columns domain.Columns) *Store {
	if table == "" {
		table = "clientes"
	}
	return &Store{
		db:       db,
		postgres: driver == DriverPostgres,
		table:    table,
		columns:  columns.WithDefaults(),
	}
}

func Open(config DBConfig, table string, columns domain.Columns) (*Store, error) {
	db, err := config.OpenDB()
	if err != nil {
		return nil, err
	}
	return New(db, config.Driver, table, columns), nil
}

func (s *Store) DB() *sql.DB   { return s.db }
func (s *Store) Close() error { return s.db.Close() }

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (s *Store) placeholder(n int) string {
	if s.postgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// CreateTable creates the customer table with the mapped columns if it does
// not exist yet.
func (s *Store) CreateTable(ctx context.Context) error {
	timestamp := "DATETIME"
	if s.postgres {
		timestamp = "TIMESTAMPTZ"
	}
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
	%s TEXT PRIMARY KEY,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL DEFAULT '',
	%s TEXT NOT NULL DEFAULT '',
	%s %s
)`,
		quote(s.table),
		quote(s.columns.ID),
		quote(s.columns.Name),
		quote(s.columns.Plan),
		quote(s.columns.Status),
		quote(s.columns.LastContact), timestamp,
	)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Insert adds a customer, used to seed local tables.
func (s *Store) Insert(ctx context.Context, c domain.Customer) error {
	query := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s, %s) VALUES (%s, %s, %s, %s)",
		quote(s.table),
		quote(s.columns.ID), quote(s.columns.Name), quote(s.columns.Plan), quote(s.columns.Status),
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
	)
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Plan, c.Status)
	return err
}

func (s *Store) FetchAll(ctx context.Context) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "FetchAll")
	defer span.End()

	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quote(s.table), quote(s.columns.ID))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query customers")
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	customers := []domain.Customer{}
	for rows.Next() {
		values := make([]any, len(names))
		pointers := make([]any, len(names))
		for i := range values {
			pointers[i] = &values[i]
		}
		err = rows.Scan(pointers...)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scan customer")
			return nil, err
		}

		row := make(map[string]any, len(names))
		for i, name := range names {
			row[name] = values[i]
		}
		customers = append(customers, s.columns.Customer(row))
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("customers", len(customers)))
	return customers, nil
}

func (s *Store) Update(ctx context.Context, customerID string, fields domain.Fields) error {
	ctx, span := tracer.Start(ctx, "Update")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", customerID))

	values, err := s.columns.Values(fields)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, column := range columns {
		assignments[i] = fmt.Sprintf("%s = %s", quote(column), s.placeholder(i+1))
		args = append(args, values[column])
	}
	args = append(args, customerID)

	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE CAST(%s AS TEXT) = %s",
		quote(s.table),
		strings.Join(assignments, ", "),
		quote(s.columns.ID),
		s.placeholder(len(columns)+1),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update customer")
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s %s: %w", s.table, customerID, domain.ErrCustomerNotFound)
	}
	return nil
}
