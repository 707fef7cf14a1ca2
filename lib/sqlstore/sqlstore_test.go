package sqlstore

import (
	"cashsync/internal/domain"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func seed(t *testing.T, store *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateTable(ctx))
	for _, c := range []domain.Customer{
		{ID: "1", Name: "Joao da Silva", Plan: "Basic", Status: "Inactive"},
		{ID: "2", Name: "Ana Paula", Plan: "Monthly", Status: "Active"},
		{ID: "3", Name: "Rita Gonçalves", Plan: "Yearly", Status: "Active"},
	} {
		require.NoError(t, store.Insert(ctx, c))
	}
}

func exercise(t *testing.T, store *Store) {
	ctx := context.Background()
	seed(t, store)

	customers, err := store.FetchAll(ctx)
	require.NoError(t, err)

	expected := []domain.Customer{
		{ID: "1", Name: "Joao da Silva", Plan: "Basic", Status: "Inactive"},
		{ID: "2", Name: "Ana Paula", Plan: "Monthly", Status: "Active"},
		{ID: "3", Name: "Rita Gonçalves", Plan: "Yearly", Status: "Active"},
	}
	if diff := cmp.Diff(expected, customers); diff != "" {
		t.Fatal(diff)
	}

	now := time.Date(2024, 8, 12, 9, 30, 0, 0, time.UTC)
	err = store.Update(ctx, "1", domain.Fields{
		domain.FieldPlan:        "Monthly",
		domain.FieldStatus:      "Active",
		domain.FieldLastContact: now,
	})
	require.NoError(t, err)

	err = store.Update(ctx, "404", domain.Fields{domain.FieldPlan: "Monthly"})
	require.ErrorIs(t, err, domain.ErrCustomerNotFound)

	customers, err = store.FetchAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "Monthly", customers[0].Plan)
	require.Equal(t, "Active", customers[0].Status)
	require.True(t, now.Equal(customers[0].LastContact), customers[0].LastContact)
	require.Equal(t, "Monthly", customers[1].Plan)
	require.True(t, customers[1].LastContact.IsZero())
}

func TestSqliteStore(t *testing.T) {
	store, err := Open(DBConfig{Driver: DriverSqlite, DSN: ":memory:"}, "", domain.Columns{})
	require.NoError(t, err)
	defer store.Close()

	exercise(t, store)
}

func TestSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clientes.db")
	store, err := Open(DBConfig{DSN: path}, "clientes", domain.Columns{})
	require.NoError(t, err)
	seed(t, store)
	require.NoError(t, store.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	reopened, err := Open(DBConfig{DSN: path}, "clientes", domain.Columns{})
	require.NoError(t, err)
	defer reopened.Close()

	customers, err := reopened.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 3)
}

func TestCustomColumnsAndExtra(t *testing.T) {
	store, err := Open(DBConfig{DSN: ":memory:"}, "customers", domain.Columns{
		Name:        "full_name",
		Plan:        "plan",
		Status:      "status",
		LastContact: "synced_at",
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.CreateTable(ctx))
	_, err = store.DB().ExecContext(ctx, `ALTER TABLE "customers" ADD COLUMN "phone" TEXT`)
	require.NoError(t, err)
	_, err = store.DB().ExecContext(ctx, `INSERT INTO "customers" ("id", "full_name", "phone") VALUES ('a', 'Pedro Alves', '11 9')`)
	require.NoError(t, err)

	customers, err := store.FetchAll(ctx)
	require.NoError(t, err)
	expected := []domain.Customer{{ID: "a", Name: "Pedro Alves", Extra: map[string]any{"phone": "11 9"}}}
	if diff := cmp.Diff(expected, customers, cmpopts.EquateEmpty()); diff != "" {
		t.Fatal(diff)
	}

	err = store.Update(ctx, "a", domain.Fields{domain.FieldStatus: "Active"})
	require.NoError(t, err)
	err = store.Update(ctx, "a", domain.Fields{"phone": "x"})
	require.ErrorContains(t, err, "unknown customer field")
}

func TestMissingTable(t *testing.T) {
	store, err := Open(DBConfig{DSN: ":memory:"}, "nope", domain.Columns{})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.FetchAll(context.Background())
	require.Error(t, err)
}

func TestOpenDBErrors(t *testing.T) {
	_, err := DBConfig{Driver: DriverSqlite}.OpenDB()
	require.Error(t, err)
	_, err = DBConfig{Driver: "mysql", DSN: "x"}.OpenDB()
	require.ErrorContains(t, err, `unknown sql driver "mysql"`)
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"nome"`, quote("nome"))
	require.Equal(t, `"a""b"`, quote(`a"b`))

	sqlite := New(nil, DriverSqlite, "", domain.Columns{})
	pg := New(nil, DriverPostgres, "", domain.Columns{})
	require.Equal(t, "?", sqlite.placeholder(3))
	require.Equal(t, "$3", pg.placeholder(3))
}

// set CASHSYNC_DOCKER_TESTS=1 to run against a throwaway postgres container
func TestPostgresStore(t *testing.T) {
	if os.Getenv("CASHSYNC_DOCKER_TESTS") != "1" {
		t.Skip("CASHSYNC_DOCKER_TESTS is not set")
	}

	// suppress logging
	testcontainers.Logger = log.New(io.Discard, "", 0)

	ctx := context.Background()
	postgres, err := testcontainers.GenericContainer(
		ctx,
		testcontainers.GenericContainerRequest{
			Started: true,
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "postgres:16-alpine",
				ExposedPorts: []string{"5432/tcp"},
				Env: map[string]string{
					"POSTGRES_USER":     "cashsync",
					"POSTGRES_PASSWORD": "cashsync",
					"POSTGRES_DB":       "cashsync",
				},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute),
			},
		},
	)
	require.NoError(t, err)
	defer postgres.Terminate(ctx)

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	store, err := Open(DBConfig{
		Driver: DriverPostgres,
		DSN:    fmt.Sprintf("postgres://cashsync:cashsync@%s:%s/cashsync?sslmode=disable", host, port.Port()),
	}, "clientes", domain.Columns{})
	require.NoError(t, err)
	defer store.Close()

	exercise(t, store)
}
