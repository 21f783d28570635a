package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
	"github.com/therealutkarshpriyadarshi/logscope/internal/logging"
)

var version = "0.1.0"

var (
	cfgFile   string
	logLevel  string
	logFormat string
	jsonOut   bool

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "logscope",
	Short: "Analyze web server access logs",
	Long: `logscope parses Apache/Nginx combined access logs, separates malformed
lines from valid records and reports traffic, client and security statistics.

Logs can be read from local files, S3 objects or an upload server. Results
can be exported to files, S3, Kafka or Elasticsearch and every run is kept
in a local history.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to configuration file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
}

func initConfig() error {
	if cfgFile == "" {
		cfg = config.DefaultConfig()
	} else {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return apperr.Wrap(err, apperr.Validation, "Could not load configuration")
		}
		cfg = loaded
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return apperr.Wrap(err, apperr.Validation, "Invalid configuration")
	}

	logger = logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	logging.SetGlobal(logger)
	return nil
}
