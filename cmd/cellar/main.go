package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/cellar/config"
)

var version = "dev"

var (
	configFiles []string
	jsonOutput  bool
	quiet       bool
)

// skipConfig marks commands that run without a loaded configuration.
const skipConfig = "skip-config"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "cellar",
	Short:   "Schema-driven record and file store",
	Long: `Cellar stores records made of schema-validated metadata and an optional
file payload. Records live in namespaces, each bound to a model declared
in the configuration file.

The storage secret is read from storage.secret, CELLAR_STORAGE_SECRET or
--secret. It is never written to disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, ok := cmd.Annotations[skipConfig]; ok {
			setupLogging("")
			return nil
		}

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogging(cfg.Log.Level)

		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringSliceVarP(&configFiles, "config", "c", nil, "config file path, repeatable (default: ./config.yaml)")
	flags.String("root", "", "storage root directory (default: ./data, env: CELLAR_STORAGE_ROOT)")
	flags.String("secret", "", "placement secret (env: CELLAR_STORAGE_SECRET)")
	flags.String("backend", "", "blob backend: filesystem, s3 (env: CELLAR_STORAGE_BACKEND)")
	flags.String("db-type", "", "database type: sqlite, postgres (env: CELLAR_DATABASE_TYPE)")
	flags.String("db-dsn", "", "database connection string (env: CELLAR_DATABASE_DSN)")
	flags.String("log-level", "", "log level: debug, info, warn, error (env: CELLAR_LOG_LEVEL)")
	flags.BoolVar(&jsonOutput, "json", false, "output as JSON")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_ = newFormatter().FormatError(os.Stderr, err)
		os.Exit(1)
	}
}
