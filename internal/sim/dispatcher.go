package sim

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"hotcloud-sim/internal/telemetry"
)

// DispatchStats summarizes the batches handed to a Dispatcher.
type DispatchStats struct {
	Batches       int64  `json:"batches"`
	Records       int64  `json:"records"`
	FailedBatches int64  `json:"failed_batches"`
	LostRecords   int64  `json:"lost_records"`
	InFlight      int64  `json:"in_flight"`
	LastError     string `json:"last_error,omitempty"`
}

// Dispatcher forwards completed batches to a RecordWriter with at most limit
// writes in flight. Failed batches are logged and counted, never retried.
type Dispatcher struct {
	writer RecordWriter
	limit  int64
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	log    *slog.Logger

	inFlight atomic.Int64
	batches  atomic.Int64
	records  atomic.Int64
	failed   atomic.Int64
	lost     atomic.Int64

	mu      sync.Mutex
	lastErr error
}

// NewDispatcher creates a dispatcher. A limit below one is treated as one.
func NewDispatcher(writer RecordWriter, limit int, log *slog.Logger) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	return &Dispatcher{
		writer: writer,
		limit:  int64(limit),
		sem:    semaphore.NewWeighted(int64(limit)),
		log:    log,
	}
}

// Submit blocks until a worker slot is free, then writes the batch in the
// background. The batch must not be modified afterwards. Only a canceled ctx
// makes Submit fail; in-flight writes are not interrupted by it.
func (d *Dispatcher) Submit(ctx context.Context, batch []telemetry.Record) error {
	if len(batch) == 0 {
		return nil
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	d.inFlight.Add(1)
	dispatchInFlight.Inc()
	d.wg.Add(1)
	wctx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer dispatchInFlight.Dec()
		defer d.inFlight.Add(-1)
		_ = d.persist(wctx, batch)
	}()
	return nil
}

// Flush writes the batch on the calling goroutine, bypassing the worker slots.
func (d *Dispatcher) Flush(ctx context.Context, batch []telemetry.Record) error {
	if len(batch) == 0 {
		return nil
	}
	return d.persist(context.WithoutCancel(ctx), batch)
}

func (d *Dispatcher) persist(ctx context.Context, batch []telemetry.Record) error {
	start := time.Now()
	err := d.writer.WriteBatch(ctx, batch)
	dispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		d.failed.Add(1)
		d.lost.Add(int64(len(batch)))
		batchesFailedTotal.Inc()
		recordsLostTotal.Add(float64(len(batch)))
		d.mu.Lock()
		d.lastErr = err
		d.mu.Unlock()
		d.log.Error("batch dispatch failed", "records", len(batch), "error", err)
		return err
	}
	d.batches.Add(1)
	d.records.Add(int64(len(batch)))
	batchesDispatchedTotal.Inc()
	d.log.Debug("batch dispatched", "records", len(batch), "took", time.Since(start))
	return nil
}

// Wait blocks until every submitted batch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// InFlight is the number of batches currently being written.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Limit is the maximum number of concurrent writes.
func (d *Dispatcher) Limit() int {
	return int(d.limit)
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() DispatchStats {
	s := DispatchStats{
		Batches:       d.batches.Load(),
		Records:       d.records.Load(),
		FailedBatches: d.failed.Load(),
		LostRecords:   d.lost.Load(),
		InFlight:      d.inFlight.Load(),
	}
	d.mu.Lock()
	if d.lastErr != nil {
		s.LastError = d.lastErr.Error()
	}
	d.mu.Unlock()
	return s
}
