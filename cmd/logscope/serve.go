package main

import (
	"syscall"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/logscope/internal/apperr"
	"github.com/therealutkarshpriyadarshi/logscope/internal/config"
)

const (
	defaultMetricsAddress = ":9090"
	defaultHealthAddress  = ":8080"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve metrics and health endpoints",
	Long: `Serve the Prometheus metrics and health endpoints for the configured
components until interrupted. Metrics default to :9090 and health to :8080
when the configuration leaves them unset.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "metrics listen address")
	serveCmd.Flags().String("health-addr", "", "health listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Metrics == nil {
		cfg.Metrics = &config.MetricsConfig{Enabled: true, Address: defaultMetricsAddress}
	}
	if cfg.Health == nil {
		cfg.Health = &config.HealthConfig{Enabled: true, Address: defaultHealthAddress}
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Address = addr
	}
	if addr, _ := cmd.Flags().GetString("health-addr"); addr != "" {
		cfg.Health.Address = addr
	}

	a, err := newApp(cmd.Context(), appOptions{
		geo:     cfg.Geo.Enabled,
		history: cfg.History.Enabled,
	})
	if err != nil {
		return err
	}

	srv, err := a.startServer()
	if err != nil {
		a.Close()
		return err
	}
	if srv == nil {
		a.Close()
		return apperr.New(apperr.Validation, "Nothing to serve", "metrics and health are both disabled")
	}

	logger.Info().Msg("Serving metrics and health, press Ctrl+C to stop")
	return a.shutdown.WaitForSignal(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}
