package sqlstore

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const (
	DriverSqlite   = "sqlite"
	DriverLibsql   = "libsql"
	DriverPostgres = "postgres"
)

type DBConfig struct {
	Driver string `json:"driver"`
	// DSN is a file path for sqlite, a libsql:// or https:// url for libsql
	// and a connection string for postgres.
	DSN       string `json:"dsn"`
	AuthToken string `json:"auth_token"`
}

func (config DBConfig) OpenDB() (*sql.DB, error) {
	if config.DSN == "" {
		return nil, fmt.Errorf("a dsn was not specified")
	}

	switch config.Driver {
	case DriverSqlite, "":
		return openSqlite(config.DSN)
	case DriverLibsql:
		values := url.Values{}
		if config.AuthToken != "" {
			values.Add("authToken", config.AuthToken)
		}
		dsn := config.DSN
		if len(values) > 0 {
			dsn += "?" + values.Encode()
		}
		return sql.Open("libsql", dsn)
	case DriverPostgres:
		return sql.Open("pgx", config.DSN)
	}
	return nil, fmt.Errorf("unknown sql driver %q", config.Driver)
}

func openSqlite(path string) (*sql.DB, error) {
	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !memory {
		_, statErr := os.Stat(path)
		if os.IsNotExist(statErr) {
			f, err := os.Create(path)
			if err != nil {
				return nil, err
			}
			f.Close()
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	db.SetMaxOpenConns(1)
	if !memory {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}
