package sim

import (
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/telemetry"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

func TestScheduleDisruptionsBounds(t *testing.T) {
	cfg := config.Default()
	cfg.Queries = 50
	cfg.Disruptions = 500
	s := ScheduleDisruptions(cfg, seeded(1), logging.Discard())

	if s.Len()+s.Collisions() != cfg.Disruptions {
		t.Fatalf("len %d + collisions %d != %d draws", s.Len(), s.Collisions(), cfg.Disruptions)
	}
	kinds := map[telemetry.Tag]int{}
	for _, e := range s.Events() {
		if e.Duration < 2 || e.Duration > 23 {
			t.Errorf("duration %d outside [2,23]", e.Duration)
		}
		if e.Start < 48 || e.Start > cfg.Hours-25 {
			t.Errorf("start %d outside [48,%d]", e.Start, cfg.Hours-25)
		}
		kinds[e.Disruption.Tag()]++
		switch d := e.Disruption.(type) {
		case NodeDisruption:
			if d.Node < 0 || d.Node >= cfg.Nodes {
				t.Errorf("node %d out of range", d.Node)
			}
		case QueryDisruption:
			checkSubset(t, d.Queries, cfg.Queries, cfg.Queries/10-1)
		case MetricDisruption:
			checkSubset(t, d.Metrics, cfg.Metrics, cfg.Metrics-1)
		default:
			t.Fatalf("unexpected disruption type %T", d)
		}
	}
	for _, tag := range []telemetry.Tag{telemetry.TagNode, telemetry.TagQuery, telemetry.TagMetric} {
		if kinds[tag] == 0 {
			t.Errorf("no %s disruptions in %d draws", tag, s.Len())
		}
	}
}

func checkSubset(t *testing.T, ids []int, count, maxLen int) {
	t.Helper()
	if len(ids) == 0 || len(ids) > maxLen {
		t.Errorf("subset size %d outside [1,%d]", len(ids), maxLen)
	}
	if !slices.IsSorted(ids) || len(slices.Compact(slices.Clone(ids))) != len(ids) {
		t.Errorf("subset %v not sorted and unique", ids)
	}
	for _, id := range ids {
		if id < 0 || id >= count {
			t.Errorf("id %d out of range [0,%d)", id, count)
		}
	}
}

func TestScheduleDisruptionsSmallQuerySpace(t *testing.T) {
	cfg := config.Default() // queries=10 leaves an empty [1,1) size range
	cfg.Disruptions = 200
	s := ScheduleDisruptions(cfg, seeded(5), logging.Discard())
	for _, e := range s.Events() {
		if q, ok := e.Disruption.(QueryDisruption); ok && len(q.Queries) != 1 {
			t.Fatalf("expected single query, got %v", q.Queries)
		}
	}
}

func TestScheduleDisruptionsDeterministic(t *testing.T) {
	cfg := config.Default()
	a := ScheduleDisruptions(cfg, seeded(42), logging.Discard())
	b := ScheduleDisruptions(cfg, seeded(42), logging.Discard())
	if !reflect.DeepEqual(a.Events(), b.Events()) {
		t.Fatalf("schedules differ for the same seed")
	}
	c := ScheduleDisruptions(cfg, seeded(43), logging.Discard())
	if reflect.DeepEqual(a.Events(), c.Events()) {
		t.Fatalf("schedules equal for different seeds")
	}
}

func TestScheduleLastWriteWins(t *testing.T) {
	s := NewSchedule(
		Event{Start: 60, Duration: 3, Disruption: NodeDisruption{Node: 1}},
		Event{Start: 60, Duration: 5, Disruption: MetricDisruption{Metrics: []int{2}}},
		Event{Start: 70, Duration: 2, Disruption: QueryDisruption{Queries: []int{0}}},
	)
	if s.Len() != 2 || s.Collisions() != 1 {
		t.Fatalf("len=%d collisions=%d", s.Len(), s.Collisions())
	}
	e, ok := s.At(60)
	if !ok || e.Duration != 5 || e.Disruption.Tag() != telemetry.TagMetric {
		t.Fatalf("expected metric disruption to win, got %+v", e)
	}
	if _, ok := s.At(61); ok {
		t.Fatalf("unexpected event at 61")
	}
	if e.End() != 65 {
		t.Fatalf("End()=%d", e.End())
	}
}

func TestDisruptionAffects(t *testing.T) {
	cases := []struct {
		d                   Disruption
		node, query, metric int
		want                bool
		tag                 telemetry.Tag
	}{
		{NodeDisruption{Node: 1}, 1, 5, 5, true, telemetry.TagNode},
		{NodeDisruption{Node: 1}, 0, 5, 5, false, telemetry.TagNode},
		{QueryDisruption{Queries: []int{2, 4}}, 0, 4, 0, true, telemetry.TagQuery},
		{QueryDisruption{Queries: []int{2, 4}}, 0, 3, 0, false, telemetry.TagQuery},
		{MetricDisruption{Metrics: []int{0, 9}}, 3, 3, 9, true, telemetry.TagMetric},
		{MetricDisruption{Metrics: []int{0, 9}}, 3, 3, 8, false, telemetry.TagMetric},
	}
	for _, c := range cases {
		if got := c.d.Affects(c.node, c.query, c.metric); got != c.want {
			t.Errorf("%s.Affects(%d,%d,%d)=%v, want %v", c.d, c.node, c.query, c.metric, got, c.want)
		}
		if c.d.Tag() != c.tag {
			t.Errorf("%s.Tag()=%v, want %v", c.d, c.d.Tag(), c.tag)
		}
	}
}

func TestBetween(t *testing.T) {
	rng := seeded(9)
	if got := between(rng, 3, 3); got != 3 {
		t.Fatalf("between(3,3)=%d", got)
	}
	if got := between(rng, 5, 1); got != 5 {
		t.Fatalf("between(5,1)=%d", got)
	}
	for range 1000 {
		if v := between(rng, 2, 24); v < 2 || v >= 24 {
			t.Fatalf("between(2,24)=%d", v)
		}
	}
}
