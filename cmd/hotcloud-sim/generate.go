package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"hotcloud-sim/internal/admin"
	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/sim"
)

var (
	genJSON      bool
	genOutput    string
	genLogFile   string
	genTUI       string
	genTUILog    string
	genAdminAddr string
	genSeed      int64
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a telemetry timeline",
	Long: "generate draws a disruption schedule and per-tuple distributions, then writes one record " +
		"per (hour, node, query, metric) to the configured sink.",
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	if genOutput != "" {
		cfg.Sink.File.Path = genOutput
	}
	if genSeed != 0 {
		cfg.Seed = genSeed
	}
	useTUI, err := tuiEnabled(genTUI)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger
	if useTUI {
		f, err := openLogOutput(genTUILog)
		if err != nil {
			return err
		}
		defer f.Close()
		if log, err = logging.NewWithOptions(logging.Options{Level: logLevel, JSON: logJSON, Output: f}); err != nil {
			return err
		}
	}
	ctx = logging.NewContext(ctx, log)

	ws, err := newWriters(cfg, genJSON, genLogFile, log)
	if err != nil {
		return err
	}
	defer ws.Close()

	if ws.elastic != nil && cfg.Sink.Elasticsearch.Reset {
		log.Info("resetting elasticsearch index", "index", cfg.Sink.Elasticsearch.Index)
		if err := ws.elastic.Reset(ctx, cfg.Sink.Elasticsearch.Mapping); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
	}

	writer := ws.writer
	var tui *sim.TUIWriter
	if useTUI {
		tui = sim.NewTUIWriter(cfg, writer)
		writer = tui
	}

	simulator := sim.NewSimulator(cfg, writer, log)
	if tui != nil {
		tui.SetStatusSource(simulator.Status)
	}

	if genAdminAddr != "" {
		if _, err := admin.NewServer(simulator, log).Start(ctx, genAdminAddr); err != nil {
			return fmt.Errorf("admin server: %w", err)
		}
	}

	res, runErr := simulator.Run(ctx)
	if tui != nil {
		tui.Close()
	}
	if runErr != nil {
		return runErr
	}

	if ws.elastic != nil {
		// the run is over, so refresh even if generation was interrupted late
		if err := ws.elastic.Refresh(context.WithoutCancel(ctx)); err != nil {
			log.Warn("index refresh failed", "error", err)
		}
	}
	if res.Dispatch.FailedBatches > 0 {
		log.Warn("some batches were not persisted",
			"failed_batches", res.Dispatch.FailedBatches, "lost_records", res.Dispatch.LostRecords,
			"last_error", res.Dispatch.LastError)
	}
	return nil
}

// tuiEnabled resolves the --tui flag; auto enables the TUI on a terminal.
func tuiEnabled(mode string) (bool, error) {
	switch mode {
	case "on", "true":
		return true, nil
	case "off", "false", "":
		return false, nil
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	}
	return false, fmt.Errorf("invalid --tui value %q (want auto, on or off)", mode)
}

func init() {
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "Write records to the configured JSON file instead of the network sink")
	generateCmd.Flags().StringVar(&genOutput, "output", "", "JSON output path for --json (\"-\" for STDOUT)")
	generateCmd.Flags().StringVar(&genLogFile, "log-file", "", "Also copy every record to this JSON lines file")
	generateCmd.Flags().StringVar(&genTUI, "tui", "off", "Progress TUI: auto, on or off")
	generateCmd.Flags().StringVar(&genTUILog, "tui-log", "hotcloud-sim.log", "Log file used while the TUI is active")
	generateCmd.Flags().StringVar(&genAdminAddr, "admin-addr", "", "Serve /status and /metrics on this address (e.g. :8080)")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "Seed for reproducible runs (overrides config)")
}
