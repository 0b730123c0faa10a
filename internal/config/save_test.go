package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func readViper(t *testing.T, path string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	return v
}

func TestSet_CreatesNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, Set(path, "legacy.dsn", "postgres://qiita@localhost/qiita?sslmode=disable"))

	v := readViper(t, path)
	require.Equal(t, "postgres://qiita@localhost/qiita?sslmode=disable", v.GetString("legacy.dsn"))
}

func TestSet_PreservesComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.NoError(t, Set(path, "migration.rarefaction_depth", "5000"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, "# Lineage Configuration")
	require.Contains(t, content, "rarefaction_depth: 5000")
	require.Contains(t, content, "workers: 1")

	v := readViper(t, path)
	require.Equal(t, int64(5000), v.GetInt64("migration.rarefaction_depth"))
}

func TestSet_AddsSection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o600))

	require.NoError(t, Set(path, "tracing.exporter", "stdout"))

	v := readViper(t, path)
	require.True(t, v.GetBool("debug"))
	require.Equal(t, "stdout", v.GetString("tracing.exporter"))
}

func TestSet_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	require.ErrorContains(t, Set(path, "migration", "1"), "is a section")
	require.ErrorContains(t, Set(path, "store.path.deeper", "x"), "is a value")
	require.ErrorContains(t, Set(path, "store..path", "x"), "invalid config key")

	require.NoError(t, os.WriteFile(path, []byte("- a\n- b\n"), 0o600))
	require.ErrorContains(t, Set(path, "debug", "true"), "must be a mapping")
}
