package cashbarber

import (
	"cashsync/internal/domain"
	"context"
	_ "embed"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/relatorio19.html
var reportPage string

const loginPage = `<html><body><form method="post" action="/login">
<input type="hidden" name="_token" value="csrf-123">
<input name="email"><input name="password" type="password">
<button id="kt_login_signin_submit">Acessar</button>
</form></body></html>`

type panel struct {
	reportRequests int
	tokens         []string
}

func (p *panel) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(loginPage))
			return
		}
		r.ParseForm()
		p.tokens = append(p.tokens, r.PostForm.Get("_token"))
		if r.PostForm.Get("email") != "owner@barbearia.com" || r.PostForm.Get("password") != "hunter2" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "cashbarber_session", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	})
	mux.HandleFunc("/dashboard", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>painel</body></html>"))
	})
	mux.HandleFunc(DefaultReportPath, func(w http.ResponseWriter, r *http.Request) {
		p.reportRequests++
		cookie, err := r.Cookie("cashbarber_session")
		if err != nil || cookie.Value != "ok" {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		w.Write([]byte(reportPage))
	})
	return mux
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	client, err := NewClient(ClientOptions{
		BaseUrl:                 srv.URL,
		DisableCloudflareBypass: true,
	})
	require.NoError(t, err)
	return client
}

func expectedRows() []domain.ScrapedRow {
	return []domain.ScrapedRow{
		{RawName: "João Silva", RawPlan: "Mensal", RawStatus: "Em dia", CreatedAt: "12/03/2024"},
		{RawName: "Ana Paula", RawPlan: "Mensal", RawStatus: "Pagamento recusado", CreatedAt: "02/01/2024"},
		{RawName: "Pedro H. Alves", RawPlan: "Anual", RawStatus: "Em dia", CreatedAt: "20/06/2023"},
		{RawName: "Rita Gonçalves", RawPlan: "Mensal", RawStatus: "Cancelado", CreatedAt: "15/11/2023"},
	}
}

func TestParseSubscribers(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(reportPage))
	require.NoError(t, err)

	rows, err := ParseSubscribers(doc)
	require.NoError(t, err)
	if diff := cmp.Diff(expectedRows(), rows); diff != "" {
		t.Fatal(diff)
	}

	total, ok := TotalCount(doc)
	require.True(t, ok)
	require.Equal(t, 4, total)
}

func TestParseSubscribersEdgeCases(t *testing.T) {
	testCases := []struct {
		name     string
		html     string
		expected []domain.ScrapedRow
		err      error
		total    int
		hasTotal bool
	}{
		{
			name: "no table",
			html: `<html><body><p>Nenhum registro</p></body></html>`,
			err:  ErrTableNotFound,
		},
		{
			name:     "empty body",
			html:     `<table class="table-striped"><tbody></tbody></table>`,
			expected: []domain.ScrapedRow{},
		},
		{
			name: "short rows are skipped",
			html: `<table class="table-striped"><tbody>
				<tr><td>Só nome</td><td>Mensal</td></tr>
				<tr><td>Carla</td><td>Mensal</td><td>Em dia</td><td>01/01/2024</td></tr>
				<tr><td colspan="3">Total</td><td><b>1.204</b></td></tr>
			</tbody></table>`,
			expected: []domain.ScrapedRow{
				{RawName: "Carla", RawPlan: "Mensal", RawStatus: "Em dia", CreatedAt: "01/01/2024"},
			},
			total:    1204,
			hasTotal: true,
		},
		{
			name: "colspan row with four cells is skipped",
			html: `<table class="table-striped"><tbody>
				<tr><td colspan="1">Total</td><td></td><td></td><td>9</td></tr>
			</tbody></table>`,
			expected: []domain.ScrapedRow{},
		},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(test.html))
			require.NoError(t, err)

			rows, err := ParseSubscribers(doc)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(test.expected, rows); diff != "" {
				t.Fatal(diff)
			}

			total, ok := TotalCount(doc)
			require.Equal(t, test.hasTotal, ok)
			require.Equal(t, test.total, total)
		})
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(expectedRows())
	expected := Stats{
		Total: 4,
		ByStatus: []Count{
			{Label: "Em dia", Count: 2},
			{Label: "Cancelado", Count: 1},
			{Label: "Pagamento recusado", Count: 1},
		},
		ByPlan: []Count{
			{Label: "Mensal", Count: 3},
			{Label: "Anual", Count: 1},
		},
	}
	if diff := cmp.Diff(expected, stats); diff != "" {
		t.Fatal(diff)
	}
}

func TestScraperFetchRows(t *testing.T) {
	p := &panel{}
	srv := httptest.NewServer(p.handler())
	defer srv.Close()

	scraper := NewScraper(newTestClient(t, srv), Credentials{
		Email:    "owner@barbearia.com",
		Password: "hunter2",
	}, "")

	rows, err := scraper.FetchRows(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(expectedRows(), rows); diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"csrf-123"}, p.tokens)
	require.Equal(t, 4, scraper.Stats().Total)

	// the session is reused
	_, err = scraper.FetchRows(context.Background())
	require.NoError(t, err)
	require.Len(t, p.tokens, 1)
	require.Equal(t, 2, p.reportRequests)
}

func TestLoginFailed(t *testing.T) {
	p := &panel{}
	srv := httptest.NewServer(p.handler())
	defer srv.Close()

	client := newTestClient(t, srv)
	err := client.Login(context.Background(), "owner@barbearia.com", "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)

	scraper := NewScraper(client, Credentials{Email: "owner@barbearia.com", Password: "wrong"}, "")
	_, err = scraper.FetchRows(context.Background())
	require.True(t, errors.Is(err, ErrLoginFailed))
	require.Equal(t, 0, p.reportRequests)
}

func TestFetchReportWithoutSession(t *testing.T) {
	p := &panel{}
	srv := httptest.NewServer(p.handler())
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchReport(context.Background(), "")
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestFetchReportServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).FetchReport(context.Background(), "")
	require.ErrorContains(t, err, "unexpected status")
}
