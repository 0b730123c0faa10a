package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestDefaults_AreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, int64(1000), cfg.Migration.RarefactionDepth)
	require.Equal(t, "postgres", cfg.Legacy.Driver)
	require.False(t, cfg.Tracing.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing store", func(c *Config) { c.Store.Path = "" }, "store.path is required"},
		{"bad driver", func(c *Config) { c.Legacy.Driver = "mysql" }, "legacy.driver"},
		{"negative depth", func(c *Config) { c.Migration.RarefactionDepth = -1 }, "migration.rarefaction_depth"},
		{"negative workers", func(c *Config) { c.Migration.Workers = -2 }, "migration.workers"},
		{"negative backoff", func(c *Config) { c.Migration.RetryBackoff = -time.Second }, "migration.retry_backoff"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 1.5 }, "tracing.sample_rate"},
		{"exporter", func(c *Config) { c.Tracing.Exporter = "zipkin" }, "tracing.exporter"},
		{"file path", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.FilePath = ""
		}, "tracing.file_path is required"},
		{"otlp endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
			c.Tracing.OTLPEndpoint = ""
		}, "tracing.otlp_endpoint is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Store.Path = ""
	cfg.Legacy.Driver = "mysql"
	err := cfg.Validate()
	require.ErrorContains(t, err, "store.path")
	require.ErrorContains(t, err, "legacy.driver")
}

func TestMigrationConfig_Policy(t *testing.T) {
	p := MigrationConfig{RarefactionDepth: 5000, Workers: 4}.Policy()
	require.Equal(t, int64(5000), p.RarefactionDepth)
	require.Equal(t, 4, p.Workers)
	require.Equal(t, "biom", p.RootFileRole, "zero values keep the default")
	require.Equal(t, 250*time.Millisecond, p.RetryBackoff)
}

func TestDefaultConfigTemplate_MatchesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	defaults := Defaults()
	require.Equal(t, defaults.Store, cfg.Store)
	require.Equal(t, defaults.Legacy, cfg.Legacy)
	require.Equal(t, defaults.Files, cfg.Files)
	require.Equal(t, defaults.Migration, cfg.Migration, "durations decode from the template text")
}

func TestWriteDefaultConfig_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".lineage", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
