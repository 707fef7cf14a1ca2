package supabase

import (
	"cashsync/internal/domain"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const serviceKey = "service-role-key"

// postgrest is an in-memory stand-in for a single PostgREST table.
type postgrest struct {
	t     *testing.T
	mu    sync.Mutex
	rows  []map[string]any
	pages int
}

func (p *postgrest) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (p *postgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if r.Header.Get("apikey") != serviceKey || r.Header.Get("Authorization") != "Bearer "+serviceKey {
		p.writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid API key"})
		return
	}
	if r.URL.Path != "/rest/v1/clientes" {
		p.writeJSON(w, http.StatusNotFound, map[string]string{
			"code":    "42P01",
			"message": fmt.Sprintf("relation %q does not exist", strings.TrimPrefix(r.URL.Path, "/rest/v1/")),
		})
		return
	}

	query := r.URL.Query()
	switch r.Method {
	case http.MethodGet:
		p.pages++
		assert.Equal(p.t, "*", query.Get("select"))
		assert.Equal(p.t, "id.asc", query.Get("order"))
		limit, _ := strconv.Atoi(query.Get("limit"))
		offset, _ := strconv.Atoi(query.Get("offset"))
		page := []map[string]any{}
		for i := offset; i < len(p.rows) && i < offset+limit; i++ {
			page = append(page, p.rows[i])
		}
		p.writeJSON(w, http.StatusOK, page)
	case http.MethodPatch:
		assert.Equal(p.t, "return=representation", r.Header.Get("Prefer"))
		id := strings.TrimPrefix(query.Get("id"), "eq.")
		var patch map[string]any
		assert.NoError(p.t, json.NewDecoder(r.Body).Decode(&patch))
		updated := []map[string]any{}
		for _, row := range p.rows {
			if fmt.Sprint(row["id"]) != id {
				continue
			}
			for k, v := range patch {
				if _, ok := row[k]; !ok {
					p.writeJSON(w, http.StatusBadRequest, map[string]string{
						"code":    "PGRST204",
						"message": fmt.Sprintf("Could not find the '%s' column", k),
					})
					return
				}
				row[k] = v
			}
			updated = append(updated, row)
		}
		p.writeJSON(w, http.StatusOK, updated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func seedRows(n int) []map[string]any {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{
			"id":                   i + 1,
			"nome":                 fmt.Sprintf("Cliente %d", i+1),
			"plano_atual":          "Monthly",
			"status_assinatura":    "Active",
			"ultima_sincronizacao": nil,
			"telefone":             "11 90000-0000",
		}
	}
	return rows
}

func newTestStore(t *testing.T, srv *httptest.Server, opts Options) *Store {
	opts.Url = srv.URL
	if opts.ServiceKey == "" {
		opts.ServiceKey = serviceKey
	}
	opts.RateLimit = 1000
	store, err := New(opts)
	require.NoError(t, err)
	return store
}

func TestFetchAllPaginates(t *testing.T) {
	api := &postgrest{t: t, rows: seedRows(5)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := newTestStore(t, srv, Options{PageSize: 2})
	customers, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 5)
	require.Equal(t, 3, api.pages)

	expected := domain.Customer{
		ID:     "1",
		Name:   "Cliente 1",
		Plan:   "Monthly",
		Status: "Active",
		Extra:  map[string]any{"telefone": "11 90000-0000"},
	}
	if diff := cmp.Diff(expected, customers[0]); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, "5", customers[4].ID)
}

func TestBigintIDs(t *testing.T) {
	rows := seedRows(1)
	rows[0]["id"] = json.Number("9007199254740993")
	api := &postgrest{t: t, rows: rows}
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := newTestStore(t, srv, Options{})
	customers, err := store.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 1)
	require.Equal(t, "9007199254740993", customers[0].ID)

	err = store.Update(context.Background(), customers[0].ID, domain.Fields{domain.FieldStatus: "Cancelled"})
	require.NoError(t, err)
	require.Equal(t, "Cancelled", api.rows[0]["status_assinatura"])
}

func TestFetchAllEmptyTable(t *testing.T) {
	api := &postgrest{t: t}
	srv := httptest.NewServer(api)
	defer srv.Close()

	customers, err := newTestStore(t, srv, Options{}).FetchAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, customers)
	require.Equal(t, 1, api.pages)
}

func TestUpdate(t *testing.T) {
	api := &postgrest{t: t, rows: seedRows(3)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := newTestStore(t, srv, Options{})
	now := time.Date(2024, 8, 12, 9, 30, 0, 0, time.UTC)

	err := store.Update(context.Background(), "2", domain.Fields{
		domain.FieldPlan:        "Yearly",
		domain.FieldLastContact: now,
	})
	require.NoError(t, err)

	row := api.rows[1]
	require.Equal(t, "Yearly", row["plano_atual"])
	require.Equal(t, "Active", row["status_assinatura"])
	require.Equal(t, "2024-08-12T09:30:00Z", row["ultima_sincronizacao"])
	require.Equal(t, "Monthly", api.rows[0]["plano_atual"])
}

func TestUpdateErrors(t *testing.T) {
	api := &postgrest{t: t, rows: seedRows(1)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	store := newTestStore(t, srv, Options{})
	err := store.Update(context.Background(), "99", domain.Fields{domain.FieldStatus: "Cancelled"})
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)

	renamed := newTestStore(t, srv, Options{Columns: domain.Columns{Status: "situacao"}})
	err = renamed.Update(context.Background(), "1", domain.Fields{domain.FieldStatus: "Cancelled"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "PGRST204", apiErr.Code)

	err = store.Update(context.Background(), "1", domain.Fields{"telefone": "x"})
	require.ErrorContains(t, err, "unknown customer field")
}

func TestFetchAllErrors(t *testing.T) {
	api := &postgrest{t: t}
	srv := httptest.NewServer(api)
	defer srv.Close()

	testCases := []struct {
		name    string
		opts    Options
		status  int
		message string
	}{
		{
			name:    "bad key",
			opts:    Options{ServiceKey: "anon"},
			status:  http.StatusUnauthorized,
			message: "Invalid API key",
		},
		{
			name:    "missing table",
			opts:    Options{Table: "customers"},
			status:  http.StatusNotFound,
			message: `relation "customers" does not exist`,
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			_, err := newTestStore(t, srv, test.opts).FetchAll(context.Background())
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, test.status, apiErr.Status)
			require.Equal(t, test.message, apiErr.Message)
		})
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{ServiceKey: "k"})
	require.Error(t, err)
	_, err = New(Options{Url: "https://x.supabase.co"})
	require.Error(t, err)
	_, err = New(Options{Url: "not a url", ServiceKey: "k"})
	require.Error(t, err)
}

func TestRateLimiterHonorsContext(t *testing.T) {
	api := &postgrest{t: t, rows: seedRows(1)}
	srv := httptest.NewServer(api)
	defer srv.Close()

	store, err := New(Options{Url: srv.URL, ServiceKey: serviceKey, RateLimit: 0.001, RateBurst: 1})
	require.NoError(t, err)

	_, err = store.FetchAll(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = store.FetchAll(ctx)
	require.ErrorContains(t, err, "rate limiter")
}

func TestEncodeValues(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	got := encodeValues(map[string]any{"ultima_sincronizacao": now, "plano_atual": "Monthly"})
	require.Equal(t, map[string]any{
		"ultima_sincronizacao": "2024-01-02T03:04:05Z",
		"plano_atual":          "Monthly",
	}, got)
}
