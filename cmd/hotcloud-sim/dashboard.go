package main

import (
	"github.com/spf13/cobra"

	"hotcloud-sim/internal/dashboard"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB table",
	Long:  "dashboard renders dashboards into --out; GREPTIMEDB_DATASOURCE_UID must name the Grafana datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := dashboard.Render(dashboardOut, dashboard.Options{
			Table:   cfg.Sink.Greptime.Table,
			Metrics: cfg.Metrics,
			Start:   cfg.StartTime,
			Hours:   cfg.Hours,
		}); err != nil {
			return err
		}
		logger.Info("dashboards rendered", "dir", dashboardOut)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
}
