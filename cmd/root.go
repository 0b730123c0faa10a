package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	catalogapp "github.com/zjrosen/lineage/internal/catalog/application"
	catalog "github.com/zjrosen/lineage/internal/catalog/domain"
	"github.com/zjrosen/lineage/internal/config"
	"github.com/zjrosen/lineage/internal/infrastructure/sqlite"
	"github.com/zjrosen/lineage/internal/legacy/sqlsource"
	"github.com/zjrosen/lineage/internal/log"
	"github.com/zjrosen/lineage/internal/printer"
	"github.com/zjrosen/lineage/internal/tracing"
)

var (
	version = "dev"
	cfgFile string
	cfg     config.Config

	closeLog = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Typed provenance store and legacy job reconciliation",
	Long: `lineage keeps a typed provenance graph of artifacts and the processing jobs
that produced them, and migrates the legacy analysis/job records into it.

Typical sequence:
  lineage migrate --dry-run   # review the plan
  lineage migrate             # commit it
  lineage cleanup             # drop the legacy job tables (irreversible)
  lineage files:purge         # reclaim files nothing references`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { closeLog() },
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .lineage/config.yaml, then ~/.config/lineage/config.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "log debug output to stderr (or log_file)")
	rootCmd.PersistentFlags().String("store", "", "path to the provenance store")
	rootCmd.PersistentFlags().String("legacy-dsn", "", "legacy database DSN")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("legacy.dsn", rootCmd.PersistentFlags().Lookup("legacy-dsn"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("store.path", defaults.Store.Path)
	viper.SetDefault("legacy.driver", defaults.Legacy.Driver)
	viper.SetDefault("files.base_dir", defaults.Files.BaseDir)
	viper.SetDefault("migration.rarefaction_depth", defaults.Migration.RarefactionDepth)
	viper.SetDefault("migration.workers", defaults.Migration.Workers)
	viper.SetDefault("migration.retry_backoff", defaults.Migration.RetryBackoff)
	viper.SetDefault("migration.root_file_role", defaults.Migration.RootFileRole)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	viper.SetEnvPrefix("LINEAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .lineage/config.yaml (current directory)
		// 2. ~/.config/lineage/config.yaml (user config)
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			viper.SetConfigFile(config.DefaultConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "lineage"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if writeErr := config.WriteDefaultConfig(config.DefaultConfigPath); writeErr == nil {
				viper.SetConfigFile(config.DefaultConfigPath)
				_ = viper.ReadInConfig()
			}
		}
	}

	_ = viper.Unmarshal(&cfg)
}

// setup starts logging and validates the configuration before any command runs.
func setup(cmd *cobra.Command, _ []string) error {
	switch {
	case cfg.LogFile != "":
		cleanup, err := log.Init(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		closeLog = cleanup
		if !cfg.Debug {
			log.SetMinLevel(log.LevelInfo)
		}
	case cfg.Debug:
		log.InitWriter(cmd.ErrOrStderr(), log.LevelDebug)
	}
	printer.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

	if err := cfg.Validate(); err != nil {
		return printer.Error("Invalid configuration", err.Error(),
			[]string{"Fix " + viper.ConfigFileUsed(), "Run 'lineage config:set KEY VALUE'"})
	}
	return nil
}

// openStore opens the provenance store and loads the catalog into it. The
// returned registry is frozen.
func openStore(ctx context.Context) (*sqlite.DB, *catalog.Registry, error) {
	db, err := sqlite.NewDB(cfg.Store.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening provenance store: %w", err)
	}

	svc := catalogapp.NewService(catalogapp.CatalogFS(), catalogapp.DefaultCatalogPath)
	if cfg.Catalog.Path != "" {
		dir, name := filepath.Split(cfg.Catalog.Path)
		if dir == "" {
			dir = "."
		}
		svc = catalogapp.NewService(os.DirFS(dir), path.Clean(name))
	}
	reg, err := svc.Load(ctx, db.CatalogRepository())
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, reg, nil
}

// openLegacy connects to the legacy database.
func openLegacy() (*sqlsource.Source, error) {
	if cfg.Legacy.DSN == "" {
		return nil, printer.Error("No legacy database configured", "",
			[]string{"Pass --legacy-dsn", "Set LINEAGE_LEGACY_DSN", "Run 'lineage config:set legacy.dsn <dsn>'"})
	}
	return sqlsource.Open(cfg.Legacy.Driver, cfg.Legacy.DSN)
}

// newTracing starts the configured tracing provider.
func newTracing() (*tracing.Provider, error) {
	p, err := tracing.NewProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("starting tracing: %w", err)
	}
	return p, nil
}

// errPartial marks a command that finished with skips or failed analyses.
var errPartial = errors.New("completed with skips or failures")

// ExitCode maps a command error to the process exit code: 0 on success, 2
// when a migration completed partially, 1 for everything else.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errPartial):
		return 2
	default:
		return 1
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
