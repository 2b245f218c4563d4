package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hotcloud-sim/internal/telemetry"
)

// Timeline assembles records hour by hour and hands full batches to the
// dispatcher. A Timeline runs on a single goroutine and is not reusable.
type Timeline struct {
	Nodes, Queries, Metrics int
	Hours                   int
	BatchSize               int
	Start                   time.Time

	Schedule      *Schedule
	Distributions *Distributions
	Samples       SampleSource
	Dispatcher    *Dispatcher
	Progress      *Progress
	Logger        *slog.Logger
}

type buffered interface {
	Buffered() int
}

// Run generates Hours × Nodes × Queries × Metrics records. The disruption state
// is re-evaluated only when no disruption is running, so an event starting
// inside an active one never activates. The last partial batch is flushed
// synchronously before Run returns.
func (t *Timeline) Run(ctx context.Context) error {
	batchSize := t.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	batch := make([]telemetry.Record, 0, batchSize)

	var (
		active  Disruption
		counter int
	)
	for hour := range t.Hours {
		t.Progress.setHour(hour)
		if s, ok := t.Samples.(buffered); ok {
			sampleBufferDepth.Set(float64(s.Buffered()))
		}

		if counter <= 0 {
			if active != nil {
				t.Progress.end(hour)
			}
			active = nil
			if e, ok := t.Schedule.At(hour); ok && e.Duration > 0 {
				active, counter = e.Disruption, e.Duration
				disruptionsActivatedTotal.Inc()
				t.Progress.start(hour, e)
				t.Logger.Info("disruption active", "hour", hour, "hours", e.Duration, "selector", e.Disruption.String())
			}
		} else if e, ok := t.Schedule.At(hour); ok {
			disruptionsShadowedTotal.Inc()
			t.Progress.shadow(hour, e)
			t.Logger.Debug("disruption skipped, another one is active", "hour", hour, "selector", e.Disruption.String())
		}

		tag := telemetry.TagNone
		if active != nil {
			tag = active.Tag()
		}
		ts := telemetry.HourAt(t.Start, hour)

		for node := range t.Nodes {
			for query := range t.Queries {
				for metric := range t.Metrics {
					disrupted := active != nil && active.Affects(node, query, metric)

					sample, err := t.Samples.Next(ctx)
					if err != nil {
						return fmt.Errorf("sample for hour %d tuple (%d,%d,%d): %w", hour, node, query, metric, err)
					}
					dist := t.Distributions.Get(node, query, metric)
					params := dist.Regular
					if disrupted {
						params = dist.Disrupted
					}

					batch = append(batch, telemetry.Record{
						Node:       node,
						Metric:     metric,
						Query:      query,
						Hour:       ts,
						Value:      params.Scale(sample),
						Disruption: tag,
					})
					if len(batch) >= batchSize {
						if err := t.Dispatcher.Submit(ctx, batch); err != nil {
							return fmt.Errorf("dispatch at hour %d: %w", hour, err)
						}
						t.Progress.addRecords(len(batch))
						recordsGeneratedTotal.Add(float64(len(batch)))
						batch = make([]telemetry.Record, 0, batchSize)
					}
				}
			}
		}

		if counter > 0 {
			counter--
		}
	}

	t.Progress.addRecords(len(batch))
	recordsGeneratedTotal.Add(float64(len(batch)))
	// dispatch failures are counted by the dispatcher; the run itself succeeded
	_ = t.Dispatcher.Flush(ctx, batch)
	if active != nil {
		t.Progress.end(t.Hours)
	}
	t.Progress.finish(t.Hours)
	return nil
}
