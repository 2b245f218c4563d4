package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/sim"
)

// stdoutPath selects the STDOUT writer in file mode.
const stdoutPath = "-"

// writers is the sink stack for one command. elastic is set when the network
// sink is Elasticsearch so callers can reset and refresh the index.
type writers struct {
	writer  sim.RecordWriter
	elastic *sim.ElasticWriter
	closers []io.Closer
}

func (w *writers) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// newWriters sets up the record writer based on flags and config. In jsonMode
// records go to the configured file only; otherwise they go to the network sink,
// with a copy to logFile when set.
func newWriters(cfg *config.SimulationConfig, jsonMode bool, logFile string, log *slog.Logger) (*writers, error) {
	ws := &writers{}
	if jsonMode {
		w, err := ws.fileWriter(cfg.Sink.File.Path, cfg.Sink.File.Compression)
		if err != nil {
			return nil, err
		}
		ws.writer = w
		return ws, nil
	}

	base, err := ws.networkWriter(cfg, log)
	if err != nil {
		return nil, err
	}
	ws.writer = base
	if logFile == "" {
		return ws, nil
	}

	fw, err := ws.fileWriter(logFile, cfg.Sink.File.Compression)
	if err != nil {
		ws.Close()
		return nil, err
	}
	ws.writer = sim.NewMultiWriter(base, fw)
	return ws, nil
}

func (ws *writers) fileWriter(path, compression string) (sim.RecordWriter, error) {
	if path == stdoutPath {
		return sim.NewJSONStdoutWriter(), nil
	}
	fw, err := sim.NewFileWriter(path, compression)
	if err != nil {
		return nil, err
	}
	ws.closers = append(ws.closers, fw)
	return fw, nil
}

// networkWriter chooses the Elasticsearch or GreptimeDB sink. GreptimeDB without
// an endpoint falls back to STDOUT.
func (ws *writers) networkWriter(cfg *config.SimulationConfig, log *slog.Logger) (sim.RecordWriter, error) {
	switch cfg.Sink.Type {
	case "", "elasticsearch":
		ew, err := sim.NewElasticWriter(cfg.Sink.Elasticsearch, nil)
		if err != nil {
			return nil, err
		}
		ws.elastic = ew
		return ew, nil
	case "greptime":
		if cfg.Sink.Greptime.Endpoint == "" {
			log.Warn("GREPTIMEDB_ENDPOINT not set, records will be printed to STDOUT")
			return sim.NewJSONStdoutWriter(), nil
		}
		return sim.NewGreptimeDBWriter(cfg.Sink.Greptime)
	}
	return nil, fmt.Errorf("unknown sink type %q", cfg.Sink.Type)
}

// openLogOutput opens the file the logger writes to while the TUI owns the terminal.
func openLogOutput(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
