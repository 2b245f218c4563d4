package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   string
	logJSON    bool

	// set by loadConfig before any subcommand runs
	cfg    *config.SimulationConfig
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hotcloud-sim",
	Short: "Synthetic cloud telemetry generator",
	Long: "hotcloud-sim generates hourly telemetry for a grid of nodes, queries and metrics " +
		"with injected disruptions, and ships it to Elasticsearch, GreptimeDB or JSON files.",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	l, err := logging.NewWithOptions(logging.Options{Level: logLevel, JSON: logJSON, Output: os.Stderr})
	if err != nil {
		return err
	}
	logger = l
	slog.SetDefault(logger)

	c, err := config.Load(configPath, schemaPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}
	cfg = c
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to simulation configuration YAML")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
}
