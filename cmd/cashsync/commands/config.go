package commands

import (
	"cashsync/internal/domain"
	"cashsync/internal/fieldmap"
	"cashsync/internal/matcher"
	"cashsync/internal/reconcile"
	"cashsync/lib/configutil"
	"cashsync/lib/notify"
	"cashsync/lib/restyutil"
	"cashsync/lib/runstore"
	"cashsync/lib/scrapers/cashbarber"
	"cashsync/lib/sqlstore"
	"cashsync/lib/supabase"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	DriverSupabase = "supabase"
	DefaultConfig  = "cashsync.json5"
)

type CashbarberConfig struct {
	BaseUrl                 string `json:"base_url"`
	Email                   string `json:"email"`
	Password                string `json:"password"`
	ReportPath              string `json:"report_path"`
	DumpHttpDir             string `json:"dump_http_dir"`
	DisableCloudflareBypass bool   `json:"disable_cloudflare_bypass"`
}

type SupabaseConfig struct {
	Url        string  `json:"url"`
	ServiceKey string  `json:"service_key"`
	RateLimit  float64 `json:"rate_limit"`
	Burst      int     `json:"burst"`
}

type StoreConfig struct {
	// Driver is one of supabase, sqlite, libsql or postgres.
	Driver    string         `json:"driver"`
	Supabase  SupabaseConfig `json:"supabase"`
	DSN       string         `json:"dsn"`
	AuthToken string         `json:"auth_token"`
	Table     string         `json:"table"`
	Columns   domain.Columns `json:"columns"`
}

type MatchConfig struct {
	Threshold float64 `json:"threshold"`
	// nil means the default margin, 0 disables ambiguity detection
	Margin *float64 `json:"margin"`
}

type LabelsConfig struct {
	Plans    map[string]string `json:"plans"`
	Statuses map[string]string `json:"statuses"`
	Strict   bool              `json:"strict"`
}

type HistoryConfig struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (h HistoryConfig) Enabled() bool {
	return h.File != "" || h.Url != ""
}

func (h HistoryConfig) DBConfig() sqlstore.DBConfig {
	if h.Url != "" {
		return sqlstore.DBConfig{Driver: sqlstore.DriverLibsql, DSN: h.Url, AuthToken: h.AuthToken}
	}
	return sqlstore.DBConfig{Driver: sqlstore.DriverSqlite, DSN: h.File}
}

type Config struct {
	Cashbarber       CashbarberConfig   `json:"cashbarber"`
	Store            StoreConfig        `json:"store"`
	Match            MatchConfig        `json:"match"`
	Labels           LabelsConfig       `json:"labels"`
	DryRun           bool               `json:"dry_run"`
	WriteConcurrency int                `json:"write_concurrency"`
	History          HistoryConfig      `json:"history"`
	Smtp             notify.EmailConfig `json:"smtp"`
}

// LoadConfig reads the config file (with its .local override) and fills the
// gaps from the environment. A missing file is not an error, the environment
// alone can carry a complete configuration.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultConfig
	}
	cfg, err := configutil.ReadConfig[Config](path)
	if os.IsNotExist(err) {
		slog.Debug("config file not found, using the environment only", "path", path)
		cfg = Config{}
	} else if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	err = cfg.applyEnv()
	if err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	configutil.EnvString(&c.Cashbarber.Email, "CASHBARBER_EMAIL")
	configutil.EnvString(&c.Cashbarber.Password, "CASHBARBER_PASSWORD")
	configutil.EnvString(&c.Cashbarber.BaseUrl, "CASHBARBER_BASE_URL")
	configutil.EnvString(&c.Store.Supabase.Url, "SUPABASE_URL")
	configutil.EnvString(&c.Store.Supabase.ServiceKey, "SUPABASE_SERVICE_KEY")
	configutil.EnvString(&c.Store.Table, "SUPABASE_TABLE_NAME")
	configutil.EnvString(&c.Store.Columns.Name, "COLUMN_NOME")
	configutil.EnvString(&c.Store.Columns.Plan, "COLUMN_PLANO")
	configutil.EnvString(&c.Store.Columns.Status, "COLUMN_STATUS")
	configutil.EnvString(&c.Store.Columns.LastContact, "COLUMN_TIMESTAMP")
	configutil.EnvString(&c.Store.DSN, "CASHSYNC_DSN")
	return configutil.EnvFloat(&c.Match.Threshold, "CASHSYNC_MATCH_THRESHOLD")
}

func (c *Config) applyDefaults() {
	if c.Cashbarber.BaseUrl == "" {
		c.Cashbarber.BaseUrl = cashbarber.DefaultBaseUrl
	}
	if c.Cashbarber.ReportPath == "" {
		c.Cashbarber.ReportPath = cashbarber.DefaultReportPath
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSupabase
	}
	if c.Store.Table == "" {
		c.Store.Table = supabase.DefaultTable
	}
	c.Store.Columns = c.Store.Columns.WithDefaults()
	if c.Labels.Statuses == nil {
		c.Labels.Statuses = fieldmap.DefaultStatuses()
	}
	if c.Match.Threshold == 0 {
		c.Match.Threshold = matcher.DefaultThreshold
	}
}

func (c Config) ValidateScraper() error {
	var errs []error
	if c.Cashbarber.Email == "" {
		errs = append(errs, errors.New("cashbarber.email (or CASHBARBER_EMAIL) is required"))
	}
	if c.Cashbarber.Password == "" {
		errs = append(errs, errors.New("cashbarber.password (or CASHBARBER_PASSWORD) is required"))
	}
	return errors.Join(errs...)
}

func (c Config) ValidateStore() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSupabase:
		if c.Store.Supabase.Url == "" {
			errs = append(errs, errors.New("store.supabase.url (or SUPABASE_URL) is required"))
		}
		if c.Store.Supabase.ServiceKey == "" {
			errs = append(errs, errors.New("store.supabase.service_key (or SUPABASE_SERVICE_KEY) is required"))
		}
	case sqlstore.DriverSqlite, sqlstore.DriverLibsql, sqlstore.DriverPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.Match.Threshold < 0 || c.Match.Threshold > 1 {
		errs = append(errs, fmt.Errorf("match.threshold must be within [0, 1], got %v", c.Match.Threshold))
	}
	if c.Match.Margin != nil && (*c.Match.Margin < 0 || *c.Match.Margin > 1) {
		errs = append(errs, fmt.Errorf("match.margin must be within [0, 1], got %v", *c.Match.Margin))
	}
	if c.WriteConcurrency < 0 || c.WriteConcurrency > reconcile.MaxWriteConcurrency {
		errs = append(errs, fmt.Errorf("write_concurrency must be within [0, %d]", reconcile.MaxWriteConcurrency))
	}
	return errors.Join(errs...)
}

func (c Config) dumpOutput(name string) restyutil.InstrumentOutput {
	if c.Cashbarber.DumpHttpDir == "" {
		return nil
	}
	out, err := restyutil.NewFilesystemOutput(filepath.Join(c.Cashbarber.DumpHttpDir, name))
	if err != nil {
		slog.Warn("http dumps disabled", "err", err)
		return nil
	}
	return out
}

func (c Config) NewScraper() (*cashbarber.Scraper, error) {
	client, err := cashbarber.NewClient(cashbarber.ClientOptions{
		BaseUrl:                 c.Cashbarber.BaseUrl,
		DisableCloudflareBypass: c.Cashbarber.DisableCloudflareBypass,
		DumpOutput:              c.dumpOutput("cashbarber"),
	})
	if err != nil {
		return nil, err
	}
	return cashbarber.NewScraper(client, cashbarber.Credentials{
		Email:    c.Cashbarber.Email,
		Password: c.Cashbarber.Password,
	}, c.Cashbarber.ReportPath), nil
}

// NewStore builds the configured customer store. The returned func releases it.
func (c Config) NewStore() (reconcile.DataStore, func() error, error) {
	if c.Store.Driver == DriverSupabase {
		store, err := supabase.New(supabase.Options{
			Url:        c.Store.Supabase.Url,
			ServiceKey: c.Store.Supabase.ServiceKey,
			Table:      c.Store.Table,
			Columns:    c.Store.Columns,
			RateLimit:  c.Store.Supabase.RateLimit,
			RateBurst:  c.Store.Supabase.Burst,
			DumpOutput: c.dumpOutput("supabase"),
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() error { return nil }, nil
	}

	store, err := sqlstore.Open(sqlstore.DBConfig{
		Driver:    c.Store.Driver,
		DSN:       c.Store.DSN,
		AuthToken: c.Store.AuthToken,
	}, c.Store.Table, c.Store.Columns)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

func (c Config) NewMatcher() matcher.Matcher {
	return matcher.New(matcher.Options{
		Threshold: c.Match.Threshold,
		Margin:    c.Match.Margin,
	})
}

func (c Config) NewReconciler() reconcile.Reconciler {
	return reconcile.New(reconcile.Options{
		Matcher: c.NewMatcher(),
		Mapper: fieldmap.New(fieldmap.Options{
			Plans:    c.Labels.Plans,
			Statuses: c.Labels.Statuses,
			Strict:   c.Labels.Strict,
		}),
		DryRun:           c.DryRun,
		WriteConcurrency: c.WriteConcurrency,
	})
}

// OpenHistory opens the run history, ok is false when it is not configured.
func (c Config) OpenHistory(ctx context.Context) (store runstore.Store, ok bool, err error) {
	if !c.History.Enabled() {
		return runstore.Store{}, false, nil
	}
	store, err = runstore.Open(ctx, c.History.DBConfig())
	if err != nil {
		return runstore.Store{}, false, fmt.Errorf("open run history: %w", err)
	}
	return store, true, nil
}
