package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/lineage/internal/config"
	"github.com/zjrosen/lineage/internal/printer"
)

var configSetCmd = &cobra.Command{
	Use:   "config:set KEY VALUE",
	Short: "Set a value in the config file",
	Long: `Set a dotted key in the config file in use, keeping its comments.

Examples:
  lineage config:set legacy.dsn "postgres://qiita@localhost/qiita?sslmode=disable"
  lineage config:set migration.rarefaction_depth 5000`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			path = config.DefaultConfigPath
		}
		if err := config.Set(path, args[0], args[1]); err != nil {
			return err
		}
		printer.Success("%s = %s (%s)\n", args[0], args[1], path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configSetCmd)
}
