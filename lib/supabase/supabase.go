// Package supabase reads and updates the customer table through the PostgREST
// API exposed by a Supabase project.
package supabase

import (
	"bytes"
	"cashsync/internal/domain"
	"cashsync/lib/restyutil"
	"cashsync/lib/telemetry"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = telemetry.Tracer("cashsync/lib/supabase")

const (
	DefaultTable     = "clientes"
	DefaultPageSize  = 1000
	DefaultRateLimit = 10.0
	DefaultRateBurst = 5
)

type Options struct {
	Url        string
	ServiceKey string
	Table      string
	Columns    domain.Columns
	PageSize   int
	// RateLimit is the sustained number of requests per second.
	RateLimit float64
	RateBurst int
	Timeout   time.Duration
	// DumpOutput receives every raw HTTP exchange when set.
	DumpOutput restyutil.InstrumentOutput
}

// APIError is a non-2xx answer from PostgREST.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	if e.Code != "" {
		return fmt.Sprintf("supabase: %s (status %d, code %s)", msg, e.Status, e.Code)
	}
	return fmt.Sprintf("supabase: %s (status %d)", msg, e.Status)
}

type Store struct {
	http     *resty.Client
	limiter  *rate.Limiter
	table    string
	columns  domain.Columns
	pageSize int
}

func New(opts Options) (*Store, error) {
	if opts.Url == "" {
		return nil, errors.New("supabase url is required")
	}
	if opts.ServiceKey == "" {
		return nil, errors.New("supabase service key is required")
	}
	if _, err := url.ParseRequestURI(opts.Url); err != nil {
		return nil, fmt.Errorf("invalid supabase url: %w", err)
	}
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = DefaultRateBurst
	}
	if opts.Timeout == 0 {
		opts.Timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(opts.Url, "/") + "/rest/v1")
	client.SetHeader("apikey", opts.ServiceKey)
	client.SetAuthToken(opts.ServiceKey)
	client.SetHeader("Accept", "application/json")
	client.SetTimeout(opts.Timeout)

	telemetry.InstrumentResty(client, "cashsync/lib/supabase/http")
	restyutil.InstrumentClient(client, opts.DumpOutput)

	return &Store{
		http:     client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		table:    opts.Table,
		columns:  opts.Columns.WithDefaults(),
		pageSize: opts.PageSize,
	}, nil
}

func (s *Store) request(ctx context.Context) (*resty.Request, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return s.http.R().SetContext(ctx), nil
}

func apiError(res *resty.Response) error {
	apiErr := &APIError{Status: res.StatusCode()}
	if err := json.Unmarshal(res.Body(), apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(res.String())
	}
	return apiErr
}

// FetchAll pages through the whole table, ordered by id.
func (s *Store) FetchAll(ctx context.Context) ([]domain.Customer, error) {
	ctx, span := tracer.Start(ctx, "FetchAll")
	defer span.End()

	customers := []domain.Customer{}
	for offset := 0; ; offset += s.pageSize {
		req, err := s.request(ctx)
		if err != nil {
			return nil, err
		}

		res, err := req.
			SetQueryParams(map[string]string{
				"select": "*",
				"order":  s.columns.ID + ".asc",
				"limit":  strconv.Itoa(s.pageSize),
				"offset": strconv.Itoa(offset),
			}).
			Get("/" + s.table)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch customers")
			return nil, err
		}
		if res.IsError() {
			err = apiError(res)
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fetch customers")
			return nil, err
		}
		rows, err := decodeRows(res.Body())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to decode customers")
			return nil, err
		}

		for _, row := range rows {
			customers = append(customers, s.columns.Customer(row))
		}
		slog.DebugContext(ctx, "fetched customer page", "table", s.table, "offset", offset, "rows", len(rows))

		if len(rows) < s.pageSize {
			break
		}
	}

	span.SetAttributes(attribute.Int("customers", len(customers)))
	return customers, nil
}

// decodeRows keeps numbers as json.Number, bigint ids do not fit a float64.
func decodeRows(body []byte) ([]map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var rows []map[string]any
	err := decoder.Decode(&rows)
	if err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

func encodeValues(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for k, v := range values {
		if t, ok := v.(time.Time); ok {
			out[k] = t.Format(time.RFC3339)
			continue
		}
		out[k] = v
	}
	return out
}

// Update patches the customer's columns. A filter matching no row is
// domain.ErrCustomerNotFound.
func (s *Store) Update(ctx context.Context, customerID string, fields domain.Fields) error {
	ctx, span := tracer.Start(ctx, "Update")
	defer span.End()
	span.SetAttributes(attribute.String("customer_id", customerID))

	values, err := s.columns.Values(fields)
	if err != nil {
		return err
	}

	req, err := s.request(ctx)
	if err != nil {
		return err
	}

	res, err := req.
		SetQueryParam(s.columns.ID, "eq."+customerID).
		SetHeader("Prefer", "return=representation").
		SetBody(encodeValues(values)).
		Patch("/" + s.table)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update customer")
		return err
	}
	if res.IsError() {
		err = apiError(res)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to update customer")
		return err
	}
	updated, err := decodeRows(res.Body())
	if err != nil {
		span.RecordError(err)
		return err
	}
	if len(updated) == 0 {
		return fmt.Errorf("%s %s: %w", s.table, customerID, domain.ErrCustomerNotFound)
	}
	return nil
}
