package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name   string            `json:"name"`
	Limit  int               `json:"limit"`
	Labels map[string]string `json:"labels"`
	Nested struct {
		URL string `json:"url"`
		Key string `json:"key"`
	} `json:"nested"`
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0600))
}

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cashsync.json5"), `{
		// comments and trailing commas are fine
		name: "base",
		limit: 5,
		labels: {"Mensal": "monthly"},
		nested: {url: "https://example.supabase.co", key: "base-key"},
	}`)
	writeFile(t, filepath.Join(dir, "cashsync.local.json5"), `{
		nested: {key: "local-key"},
		labels: {"Anual": "yearly"},
	}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "cashsync.json5"))
	require.NoError(t, err)

	expected := testConfig{
		Name:   "base",
		Limit:  5,
		Labels: map[string]string{"Mensal": "monthly", "Anual": "yearly"},
	}
	expected.Nested.URL = "https://example.supabase.co"
	expected.Nested.Key = "local-key"

	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Fatal(diff)
	}
}

func TestReadConfigOnlyLocal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cashsync.local.json5"), `{name: "local"}`)

	cfg, err := ReadConfig[testConfig](filepath.Join(dir, "cashsync.json5"))
	require.NoError(t, err)
	require.Equal(t, "local", cfg.Name)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "cashsync.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "cashsync.json5"), `{name: }`)

	_, err := ReadConfig[testConfig](filepath.Join(dir, "cashsync.json5"))
	require.Error(t, err)
	require.False(t, os.IsNotExist(err))
}

func TestReadRecursively(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0777))
	writeFile(t, filepath.Join(dir, "cashsync.json5"), `{name: "root"}`)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	defer os.Chdir(wd)

	cfg, err := ReadRecursively[testConfig]("cashsync.json5")
	require.NoError(t, err)
	require.Equal(t, "root", cfg.Name)
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("CASHSYNC_TEST_NAME", " from-env ")
	t.Setenv("CASHSYNC_TEST_THRESHOLD", "0.85")
	t.Setenv("CASHSYNC_TEST_BAD", "high")

	var empty, set string
	set = "from-file"
	EnvString(&empty, "CASHSYNC_TEST_NAME")
	EnvString(&set, "CASHSYNC_TEST_NAME")
	require.Equal(t, "from-env", empty)
	require.Equal(t, "from-file", set)

	var unsetVar string
	EnvString(&unsetVar, "CASHSYNC_TEST_UNSET")
	require.Empty(t, unsetVar)

	var threshold float64
	require.NoError(t, EnvFloat(&threshold, "CASHSYNC_TEST_THRESHOLD"))
	require.Equal(t, 0.85, threshold)

	var bad float64
	require.ErrorContains(t, EnvFloat(&bad, "CASHSYNC_TEST_BAD"), "CASHSYNC_TEST_BAD")
}

func TestLocalPath(t *testing.T) {
	require.Equal(t, filepath.Join("etc", "cashsync.local.json5"), LocalPath(filepath.Join("etc", "cashsync.json5")))
	require.Equal(t, "telemetry.local", LocalPath("telemetry"))
}
