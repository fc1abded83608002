package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/h1arc/weaveline/internal/app"
	"github.com/h1arc/weaveline/logging"
)

var rootCmd = &cobra.Command{
	Use:   "weavelined",
	Short: "Run the combat decision engine with its debug surface",
	Long: `weavelined hosts one weaveline engine behind an HTTP debug surface:
/health, /diagnostics, a toggle endpoint, and a websocket telemetry feed.

Without a live game feed attached it drives the engine from a simulated
state/roster loop, which is enough to exercise every decision path.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.DefaultConfig()
		cfg.Addr = viper.GetString("addr")
		cfg.TickRate = viper.GetInt("tick-rate")
		cfg.CatalogPaths = viper.GetStringSlice("catalog")
		cfg.Logging.EnabledSinks = viper.GetStringSlice("log-sinks")
		cfg.Logging.JSONFilePath = viper.GetString("log-json-path")
		if viper.GetBool("log-debug") {
			cfg.Logging.MinimumSeverity = logging.SeverityDebug
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return app.Run(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().String("addr", ":8080", "listen address for the debug surface")
	rootCmd.Flags().Int("tick-rate", 15, "simulated state pushes per second")
	rootCmd.Flags().StringSlice("catalog", nil, "rule catalog JSON paths")
	rootCmd.Flags().StringSlice("log-sinks", []string{"console"}, "enabled logging sinks (console, json)")
	rootCmd.Flags().String("log-json-path", "", "file path for the json sink")
	rootCmd.Flags().Bool("log-debug", false, "emit debug-severity events")

	viper.SetEnvPrefix("WEAVELINE")
	viper.AutomaticEnv()
	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		log.Fatalf("%v", err)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("%v", err)
	}
}
