// Package config provides configuration types and defaults for lineage.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/lineage/internal/legacy/sqlsource"
	"github.com/zjrosen/lineage/internal/log"
	"github.com/zjrosen/lineage/internal/reconcile"
	"github.com/zjrosen/lineage/internal/tracing"
)

// DefaultConfigPath is where the config file is created when none exists.
const DefaultConfigPath = ".lineage/config.yaml"

// Config holds all configuration options for lineage.
type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	Legacy    LegacyConfig    `mapstructure:"legacy"`
	Files     FilesConfig     `mapstructure:"files"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Migration MigrationConfig `mapstructure:"migration"`
	Tracing   tracing.Config  `mapstructure:"tracing"`
	Debug     bool            `mapstructure:"debug"`
	LogFile   string          `mapstructure:"log_file"`
}

// StoreConfig locates the provenance store.
type StoreConfig struct {
	Path string `mapstructure:"path"` // SQLite file, created and migrated on first use
}

// LegacyConfig locates the legacy job database.
type LegacyConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" (default) or "sqlite3"
	DSN    string `mapstructure:"dsn"`
}

// FilesConfig holds file storage settings.
type FilesConfig struct {
	// BaseDir resolves relative file paths when purging payloads.
	// Default: current directory
	BaseDir string `mapstructure:"base_dir"`
}

// CatalogConfig selects the command catalog.
type CatalogConfig struct {
	// Path is a YAML catalog replacing the built-in one. Empty uses the
	// embedded catalog.
	Path string `mapstructure:"path"`
}

// MigrationConfig tunes the reconciliation engine.
type MigrationConfig struct {
	RarefactionDepth int64         `mapstructure:"rarefaction_depth"`
	Workers          int           `mapstructure:"workers"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff"`
	RootFileRole     string        `mapstructure:"root_file_role"`
}

// Policy returns the engine policy for these settings.
func (m MigrationConfig) Policy() reconcile.Policy {
	p := reconcile.DefaultPolicy()
	if m.RarefactionDepth > 0 {
		p.RarefactionDepth = m.RarefactionDepth
	}
	if m.Workers > 0 {
		p.Workers = m.Workers
	}
	if m.RetryBackoff > 0 {
		p.RetryBackoff = m.RetryBackoff
	}
	if m.RootFileRole != "" {
		p.RootFileRole = m.RootFileRole
	}
	return p
}

// DefaultTracesFilePath returns the default path for trace file export.
func DefaultTracesFilePath() string {
	return filepath.Join(".lineage", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	policy := reconcile.DefaultPolicy()
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()
	return Config{
		Store:  StoreConfig{Path: filepath.Join(".lineage", "lineage.db")},
		Legacy: LegacyConfig{Driver: sqlsource.DriverPostgres},
		Files:  FilesConfig{BaseDir: "."},
		Migration: MigrationConfig{
			RarefactionDepth: policy.RarefactionDepth,
			Workers:          policy.Workers,
			RetryBackoff:     policy.RetryBackoff,
			RootFileRole:     policy.RootFileRole,
		},
		Tracing: tr,
	}
}

// Validate checks the whole configuration. Errors name the offending key.
func (c Config) Validate() error {
	var errs []error
	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if err := ValidateLegacy(c.Legacy); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateMigration(c.Migration); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateTracing(c.Tracing); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidateLegacy checks the legacy source settings. An empty DSN is valid
// here; commands that read the legacy database require it.
func ValidateLegacy(l LegacyConfig) error {
	switch l.Driver {
	case "", sqlsource.DriverPostgres, sqlsource.DriverSQLite:
		return nil
	default:
		return fmt.Errorf("legacy.driver must be %q or %q, got %q", sqlsource.DriverPostgres, sqlsource.DriverSQLite, l.Driver)
	}
}

// ValidateMigration checks the engine settings.
func ValidateMigration(m MigrationConfig) error {
	if m.RarefactionDepth < 0 {
		return fmt.Errorf("migration.rarefaction_depth must be positive, got %d", m.RarefactionDepth)
	}
	if m.Workers < 0 {
		return fmt.Errorf("migration.workers must be at least 1, got %d", m.Workers)
	}
	if m.RetryBackoff < 0 {
		return fmt.Errorf("migration.retry_backoff cannot be negative, got %s", m.RetryBackoff)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tr tracing.Config) error {
	if tr.SampleRate < 0.0 || tr.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tr.SampleRate)
	}

	if tr.Exporter != "" {
		switch tr.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tr.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tr.Enabled {
		if tr.Exporter == "file" && tr.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tr.Exporter == "otlp" && tr.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Lineage Configuration

# Provenance store (SQLite). Created and migrated on first use; an existing
# file is backed up to <path>.bak before schema migrations run.
store:
  path: .lineage/lineage.db

# Legacy job database read by "lineage migrate" and dropped by "lineage cleanup".
legacy:
  driver: postgres   # "postgres" or "sqlite3"
  # dsn: postgres://qiita@localhost/qiita?sslmode=disable

# File storage
files:
  base_dir: .        # Root for relative file paths when purging payloads

# Command catalog. Leave empty to use the built-in QIIME 1.9.1 catalog.
# catalog:
#   path: ./catalog.yaml

migration:
  # Depth given to every synthesized Single Rarefaction job. The legacy
  # platform never recorded it: correct the jobs afterwards.
  rarefaction_depth: 1000
  workers: 1           # Analyses migrated concurrently, one transaction each
  retry_backoff: 250ms # Wait before retrying a failed analysis once
  root_file_role: biom # Analysis files of this role become root artifacts

# Tracing
# tracing:
#   enabled: true
#   exporter: file     # "none", "file", "stdout" or "otlp"
#   file_path: .lineage/traces/traces.jsonl
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1

# debug: false
# log_file: .lineage/debug.log
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
