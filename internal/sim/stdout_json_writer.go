package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"hotcloud-sim/internal/telemetry"
)

// JSONStdoutWriter prints records as JSON to STDOUT.
type JSONStdoutWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteBatch outputs multiple records in JSON format.
func (w *JSONStdoutWriter) WriteBatch(_ context.Context, rows []telemetry.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range rows {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w.out, string(data)); err != nil {
			return err
		}
	}
	return nil
}
