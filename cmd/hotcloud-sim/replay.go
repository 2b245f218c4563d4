package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/sim"
)

var (
	replayInput     string
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a JSON lines record file",
	Long:  "replay feeds records from a file written by generate --json back into the configured network sink or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = logging.NewContext(ctx, logger)

		ws := &writers{}
		defer ws.Close()
		var writer sim.RecordWriter = sim.NewJSONStdoutWriter()
		if !replayPrintOnly {
			w, err := ws.networkWriter(cfg, logger)
			if err != nil {
				return err
			}
			writer = w
		}

		stats, err := sim.ReplayLogFile(ctx, replayInput, writer, cfg.BulkSize, cfg.Threads)
		logger.Info("replay finished",
			"records", stats.Records, "batches", stats.Batches,
			"failed_batches", stats.FailedBatches, "lost_records", stats.LostRecords)
		return err
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a JSON lines record file (plain, gzip or zstd)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print records to STDOUT instead of writing to the sink")
	replayCmd.MarkFlagRequired("input")
}
