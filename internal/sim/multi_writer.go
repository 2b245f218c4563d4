package sim

import (
	"context"
	"errors"

	"hotcloud-sim/internal/telemetry"
)

// MultiWriter fan-outs record batches to multiple writers.
type MultiWriter struct {
	writers []RecordWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...RecordWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteBatch sends the batch to every writer. Every writer is tried; the
// batch fails if any of them failed.
func (mw *MultiWriter) WriteBatch(ctx context.Context, rows []telemetry.Record) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteBatch(ctx, rows); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
