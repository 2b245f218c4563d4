// Simulator orchestrating the disruption timeline and batch dispatch
package sim

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/telemetry"
)

// RecordWriter is an interface to support different output sinks. A batch is
// either persisted as a whole or the error is returned.
type RecordWriter interface {
	WriteBatch(ctx context.Context, rows []telemetry.Record) error
}

// Status is a point-in-time view of a run, served by the admin server and TUI.
type Status struct {
	RunID                string          `json:"run_id"`
	Hour                 int             `json:"hour"`
	Hours                int             `json:"hours"`
	Records              int64           `json:"records"`
	ExpectedRecords      int64           `json:"expected_records"`
	Scheduled            int             `json:"scheduled_disruptions"`
	DisruptionsActivated int64           `json:"disruptions_activated"`
	DisruptionsShadowed  int64           `json:"disruptions_shadowed"`
	ActiveDisruption     string          `json:"active_disruption,omitempty"`
	Dispatch             DispatchStats   `json:"dispatch"`
	Done                 bool            `json:"done"`
	Events               []ProgressEvent `json:"events,omitempty"`
}

// Result summarizes a finished run.
type Result struct {
	RunID    string
	Records  int64
	Dispatch DispatchStats
	Duration time.Duration
}

// Simulator owns the lookup tables of one run and drives the timeline. The
// schedule and distributions are drawn in NewSimulator; Run may be called once.
type Simulator struct {
	cfg        *config.SimulationConfig
	runID      string
	schedule   *Schedule
	dists      *Distributions
	sampleRng  *rand.Rand
	dispatcher *Dispatcher
	progress   *Progress
	log        *slog.Logger
	started    atomic.Bool
}

// NewSimulator draws the disruption schedule and per-tuple distributions. With a
// non-zero cfg.Seed every draw, including the samples, is reproducible.
func NewSimulator(cfg *config.SimulationConfig, writer RecordWriter, log *slog.Logger) *Simulator {
	runID := uuid.New().String()
	log = log.With("run_id", runID)

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	log.Debug("generating disruptions", "count", cfg.Disruptions)
	schedule := ScheduleDisruptions(cfg, rng, log)
	log.Debug("generating distributions per (node,query,metric) tuple", "tuples", cfg.Tuples())
	dists := AssignDistributions(cfg, rng)

	return &Simulator{
		cfg:        cfg,
		runID:      runID,
		schedule:   schedule,
		dists:      dists,
		sampleRng:  rand.New(rand.NewPCG(seed+1, seed^0xbf58476d1ce4e5b9)),
		dispatcher: NewDispatcher(writer, cfg.Threads, log),
		progress:   NewProgress(),
		log:        log,
	}
}

// RunID identifies this run in logs and status.
func (s *Simulator) RunID() string { return s.runID }

// Schedule returns the drawn disruption schedule.
func (s *Simulator) Schedule() *Schedule { return s.schedule }

// Distributions returns the drawn per-tuple distributions.
func (s *Simulator) Distributions() *Distributions { return s.dists }

// GetConfig returns the simulation configuration.
func (s *Simulator) GetConfig() *config.SimulationConfig { return s.cfg }

// Run starts the sample producer, assembles the whole timeline and waits for all
// dispatched batches. Batch failures are reported in Result, not as an error.
func (s *Simulator) Run(ctx context.Context) (Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		panic("sim: Simulator.Run called twice")
	}
	begin := time.Now()
	s.log.Info("simulation starting",
		"nodes", s.cfg.Nodes, "queries", s.cfg.Queries, "metrics", s.cfg.Metrics,
		"hours", s.cfg.Hours, "disruptions", s.schedule.Len(), "collisions", s.schedule.Collisions(),
		"threads", s.cfg.Threads, "bulk_size", s.cfg.BulkSize)

	ctx = logging.NewContext(ctx, s.log)
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	producer := NewSampleProducer(s.cfg.BufferSize, s.sampleRng)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		producer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		// the tail batch is flushed inside Run, before the producer is stopped
		defer stop()
		tl := &Timeline{
			Nodes:         s.cfg.Nodes,
			Queries:       s.cfg.Queries,
			Metrics:       s.cfg.Metrics,
			Hours:         s.cfg.Hours,
			BatchSize:     s.cfg.BulkSize,
			Start:         s.start(),
			Schedule:      s.schedule,
			Distributions: s.dists,
			Samples:       producer,
			Dispatcher:    s.dispatcher,
			Progress:      s.progress,
			Logger:        s.log,
		}
		return tl.Run(gctx)
	})
	err := g.Wait()
	s.dispatcher.Wait()

	res := Result{
		RunID:    s.runID,
		Records:  s.progress.Records(),
		Dispatch: s.dispatcher.Stats(),
		Duration: time.Since(begin),
	}
	if err != nil {
		s.log.Error("simulation aborted", "error", err, "records", res.Records)
		return res, err
	}
	s.log.Info("simulation finished",
		"records", res.Records, "batches", res.Dispatch.Batches,
		"failed_batches", res.Dispatch.FailedBatches, "lost_records", res.Dispatch.LostRecords,
		"took", res.Duration)
	return res, nil
}

func (s *Simulator) start() time.Time {
	if s.cfg.StartTime.IsZero() {
		return config.DefaultStart
	}
	return s.cfg.StartTime
}

// Status returns a snapshot of the run's progress.
func (s *Simulator) Status() Status {
	return Status{
		RunID:                s.runID,
		Hour:                 s.progress.Hour(),
		Hours:                s.cfg.Hours,
		Records:              s.progress.Records(),
		ExpectedRecords:      int64(s.cfg.Hours) * int64(s.cfg.Tuples()),
		Scheduled:            s.schedule.Len(),
		DisruptionsActivated: s.progress.activated.Load(),
		DisruptionsShadowed:  s.progress.shadowed.Load(),
		ActiveDisruption:     s.progress.Active(),
		Dispatch:             s.dispatcher.Stats(),
		Done:                 s.progress.Done(),
		Events:               s.progress.Events(),
	}
}
