package sim

import (
	"sync"
	"sync/atomic"
	"time"
)

// ProgressEvent is a notable moment of a run, such as a disruption starting.
type ProgressEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Hour      int       `json:"hour"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
}

// Progress event types.
const (
	EventDisruptionStart    = "disruption_start"
	EventDisruptionEnd      = "disruption_end"
	EventDisruptionShadowed = "disruption_shadowed"
	EventRunComplete        = "run_complete"
)

// Progress tracks a running timeline. Counters are atomic so status readers never
// block the assembly loop.
type Progress struct {
	hour      atomic.Int64
	records   atomic.Int64
	activated atomic.Int64
	shadowed  atomic.Int64
	done      atomic.Bool

	mu     sync.Mutex
	active string
	events []ProgressEvent
	now    func() time.Time
}

// NewProgress returns a tracker positioned before hour zero.
func NewProgress() *Progress {
	p := &Progress{now: time.Now}
	p.hour.Store(-1)
	return p
}

func (p *Progress) setHour(hour int) { p.hour.Store(int64(hour)) }

func (p *Progress) addRecords(n int) { p.records.Add(int64(n)) }

func (p *Progress) start(hour int, e Event) {
	p.activated.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = e.Disruption.String()
	p.logEvent(hour, EventDisruptionStart, p.active)
}

func (p *Progress) end(hour int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logEvent(hour, EventDisruptionEnd, p.active)
	p.active = ""
}

func (p *Progress) shadow(hour int, e Event) {
	p.shadowed.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logEvent(hour, EventDisruptionShadowed, e.Disruption.String())
}

func (p *Progress) finish(hour int) {
	p.done.Store(true)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logEvent(hour, EventRunComplete, "")
}

func (p *Progress) logEvent(hour int, t, details string) {
	p.events = append(p.events, ProgressEvent{Timestamp: p.now().UTC(), Hour: hour, Type: t, Details: details})
}

// Hour is the hour being assembled, -1 before the run starts.
func (p *Progress) Hour() int { return int(p.hour.Load()) }

// Records is the number of records assembled so far.
func (p *Progress) Records() int64 { return p.records.Load() }

// Done reports whether the timeline finished every hour.
func (p *Progress) Done() bool { return p.done.Load() }

// Active describes the running disruption, empty when none is active.
func (p *Progress) Active() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Events returns a copy of all recorded events.
func (p *Progress) Events() []ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	events := make([]ProgressEvent, len(p.events))
	copy(events, p.events)
	return events
}
