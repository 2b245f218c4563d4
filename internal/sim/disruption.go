package sim

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sort"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/telemetry"
)

// Scheduling window for generated disruptions, in hours.
const (
	disruptionEarliestStart = 48
	disruptionTailHours     = 24
	disruptionMinDuration   = 2
	disruptionMaxDuration   = 24 // exclusive
)

// Disruption selects the entity tuples that draw from their disrupted distribution.
// The concrete types are NodeDisruption, QueryDisruption and MetricDisruption.
type Disruption interface {
	// Tag is the code written to every record while the disruption is active.
	Tag() telemetry.Tag
	// Affects reports whether the tuple is inside the disrupted subset.
	Affects(node, query, metric int) bool
	String() string
	disruption()
}

// NodeDisruption disrupts every (query, metric) on one node.
type NodeDisruption struct {
	Node int `json:"node"`
}

func (NodeDisruption) Tag() telemetry.Tag { return telemetry.TagNode }

func (d NodeDisruption) Affects(node, _, _ int) bool { return node == d.Node }

func (d NodeDisruption) String() string { return fmt.Sprintf("node[%d]", d.Node) }

func (NodeDisruption) disruption() {}

// QueryDisruption disrupts every (node, metric) running one of the queries.
// Queries is sorted and free of duplicates.
type QueryDisruption struct {
	Queries []int `json:"queries"`
}

func (QueryDisruption) Tag() telemetry.Tag { return telemetry.TagQuery }

func (d QueryDisruption) Affects(_, query, _ int) bool {
	_, ok := slices.BinarySearch(d.Queries, query)
	return ok
}

func (d QueryDisruption) String() string { return fmt.Sprintf("query%v", d.Queries) }

func (QueryDisruption) disruption() {}

// MetricDisruption disrupts every (node, query) reporting one of the metrics.
// Metrics is sorted and free of duplicates.
type MetricDisruption struct {
	Metrics []int `json:"metrics"`
}

func (MetricDisruption) Tag() telemetry.Tag { return telemetry.TagMetric }

func (d MetricDisruption) Affects(_, _, metric int) bool {
	_, ok := slices.BinarySearch(d.Metrics, metric)
	return ok
}

func (d MetricDisruption) String() string { return fmt.Sprintf("metric%v", d.Metrics) }

func (MetricDisruption) disruption() {}

// Event is a disruption scheduled at a start hour for a number of hours.
type Event struct {
	Start      int
	Duration   int
	Disruption Disruption
}

// End is the first hour after the event.
func (e Event) End() int { return e.Start + e.Duration }

// Schedule maps start hours to events. At most one event exists per start hour;
// adding a second one replaces the first and counts a collision.
type Schedule struct {
	events     map[int]Event
	collisions int
}

// NewSchedule builds a schedule from explicit events, later events winning on
// equal start hours.
func NewSchedule(events ...Event) *Schedule {
	s := &Schedule{events: make(map[int]Event, len(events))}
	for _, e := range events {
		s.add(e)
	}
	return s
}

func (s *Schedule) add(e Event) bool {
	_, dup := s.events[e.Start]
	if dup {
		s.collisions++
	}
	s.events[e.Start] = e
	return dup
}

// At returns the event starting at hour, if any.
func (s *Schedule) At(hour int) (Event, bool) {
	e, ok := s.events[hour]
	return e, ok
}

// Len is the number of distinct start hours.
func (s *Schedule) Len() int { return len(s.events) }

// Collisions counts draws that replaced an earlier event with the same start hour.
func (s *Schedule) Collisions() int { return s.collisions }

// Events returns the events ordered by start hour.
func (s *Schedule) Events() []Event {
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// ScheduleDisruptions draws cfg.Disruptions events. Start hours fall in
// [48, hours-24) and durations in [2, 24). Requires cfg.Hours > 72.
func ScheduleDisruptions(cfg *config.SimulationConfig, rng *rand.Rand, log *slog.Logger) *Schedule {
	s := &Schedule{events: make(map[int]Event, cfg.Disruptions)}
	for range cfg.Disruptions {
		start := between(rng, disruptionEarliestStart, cfg.Hours-disruptionTailHours)
		duration := between(rng, disruptionMinDuration, disruptionMaxDuration)

		var d Disruption
		switch rng.IntN(3) {
		case 0:
			d = NodeDisruption{Node: rng.IntN(cfg.Nodes)}
		case 1:
			// one to a tenth of all queries
			d = QueryDisruption{Queries: drawSubset(rng, between(rng, 1, cfg.Queries/10), cfg.Queries)}
		default:
			d = MetricDisruption{Metrics: drawSubset(rng, between(rng, 1, cfg.Metrics), cfg.Metrics)}
		}

		e := Event{Start: start, Duration: duration, Disruption: d}
		log.Debug("disruption scheduled", "start", e.Start, "end", e.End(), "selector", d.String())
		if s.add(e) {
			log.Warn("disruption start hour collision, earlier draw replaced", "start", start)
		}
	}
	return s
}

// drawSubset draws n ids in [0, count) and returns them sorted and deduplicated.
func drawSubset(rng *rand.Rand, n, count int) []int {
	ids := make([]int, n)
	for i := range ids {
		ids[i] = rng.IntN(count)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// between draws uniformly from [lo, hi), returning lo for an empty range.
func between(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo)
}
