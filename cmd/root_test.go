package cmd

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/lineage/internal/config"
	"github.com/zjrosen/lineage/internal/testutil"
)

func TestExitCode(t *testing.T) {
	require.Equal(t, 0, ExitCode(nil))
	require.Equal(t, 2, ExitCode(fmt.Errorf("run x: %w", errPartial)))
	require.Equal(t, 1, ExitCode(errors.New("boom")))
}

// execute runs the root command with args against the given config file and
// returns stdout.
func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cfg = config.Config{}
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, dir, legacyPath string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`store:
  path: %s
legacy:
  driver: sqlite3
  dsn: "file:%s"
files:
  base_dir: %s
migration:
  retry_backoff: 1ms
`, filepath.Join(dir, "lineage.db"), legacyPath, dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMigrateThenCleanup(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ldb, legacyPath := testutil.NewLegacyDB(t)
	testutil.NewBuilder(t, ldb).WithBetaDiversityScenario().Build()
	configPath := writeConfig(t, dir, legacyPath)

	out, err := execute(t, configPath, "migrate", "--dry-run", "--json")
	require.NoError(t, err)
	var report struct {
		DryRun   bool    `json:"dry_run"`
		Outcome  string  `json:"outcome"`
		Migrated []int64 `json:"migrated"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.DryRun)
	require.Equal(t, "success", report.Outcome)
	require.Equal(t, []int64{1}, report.Migrated)

	// A dry run never authorizes cleanup.
	_, err = execute(t, configPath, "cleanup")
	require.Error(t, err)
	require.Equal(t, 1, ExitCode(err))

	_, err = execute(t, configPath, "migrate", "--dry-run=false", "--json")
	require.NoError(t, err)

	out, err = execute(t, configPath, "verify", "--json")
	require.NoError(t, err)
	require.JSONEq(t, `[]`, out)

	out, err = execute(t, configPath, "runs:list", "--report=false")
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 2)

	_, err = execute(t, configPath, "cleanup")
	require.NoError(t, err)

	var n int
	require.NoError(t, ldb.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'job'`).Scan(&n))
	require.Zero(t, n, "legacy job table should be dropped")
}

// A dry run rolls back every analysis but still syncs the catalog and
// records itself in the run history.
func TestMigrate_DryRunWrites(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	ldb, legacyPath := testutil.NewLegacyDB(t)
	testutil.NewBuilder(t, ldb).WithBetaDiversityScenario().Build()
	configPath := writeConfig(t, dir, legacyPath)

	_, err := execute(t, configPath, "migrate", "--dry-run")
	require.NoError(t, err)

	store, err := sql.Open("sqlite3", "file:"+filepath.Join(dir, "lineage.db")+"?mode=ro")
	require.NoError(t, err)
	defer store.Close()
	var types, artifacts int
	require.NoError(t, store.QueryRow(`SELECT count(*) FROM artifact_type`).Scan(&types))
	require.NoError(t, store.QueryRow(`SELECT count(*) FROM artifact`).Scan(&artifacts))
	require.NotZero(t, types, "catalog is synced")
	require.Zero(t, artifacts, "no analysis is committed")

	out, err := execute(t, configPath, "runs:list")
	require.NoError(t, err)
	var listed []struct {
		DryRun bool `json:"dry_run"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	require.True(t, listed[0].DryRun)
}

func TestMigrate_WithoutLegacyDSN(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: "+filepath.Join(dir, "lineage.db")+"\n"), 0o600))

	_, err := execute(t, path, "migrate", "--legacy-dsn", "")
	require.Error(t, err)
	require.Equal(t, 1, ExitCode(err))
}

func TestCatalogList(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  path: "+filepath.Join(dir, "lineage.db")+"\n"), 0o600))

	out, err := execute(t, path, "catalog:list", "--software", "QIIME")
	require.NoError(t, err)
	var catalog struct {
		Commands []struct {
			Name string `json:"name"`
			ID   int64  `json:"id"`
		} `json:"commands"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	require.NotEmpty(t, catalog.Commands)
	names := make([]string, 0, len(catalog.Commands))
	for _, c := range catalog.Commands {
		require.NotZero(t, c.ID, "catalog sync assigns ids")
		names = append(names, c.Name)
	}
	require.Contains(t, names, "Single Rarefaction")
}
