// Record types shared by the generator and every sink
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// HourLayout is the wire format of Record.Hour (UTC, no zone suffix).
const HourLayout = "2006-01-02T15:04:05"

// Tag identifies which kind of disruption was active when a record was generated.
type Tag int

// Disruption tags as written to the sink.
const (
	TagNone Tag = iota
	TagNode
	TagQuery
	TagMetric
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagNode:
		return "node"
	case TagQuery:
		return "query"
	case TagMetric:
		return "metric"
	}
	return fmt.Sprintf("tag(%d)", int(t))
}

// Record is one generated data point for a (node, query, metric) tuple.
type Record struct {
	Node       int       `json:"node"`       // TAG
	Metric     int       `json:"metric"`     // TAG
	Query      int       `json:"query"`      // TAG
	Hour       time.Time `json:"hour"`       // TIME INDEX
	Value      float64   `json:"value"`      // FIELD
	Disruption Tag       `json:"disruption"` // FIELD
}

type wireRecord struct {
	Node       int     `json:"node"`
	Metric     int     `json:"metric"`
	Query      int     `json:"query"`
	Hour       string  `json:"hour"`
	Value      float64 `json:"value"`
	Disruption Tag     `json:"disruption"`
}

// MarshalJSON writes the hour in HourLayout.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRecord{
		Node:       r.Node,
		Metric:     r.Metric,
		Query:      r.Query,
		Hour:       r.Hour.UTC().Format(HourLayout),
		Value:      r.Value,
		Disruption: r.Disruption,
	})
}

// UnmarshalJSON parses the wire shape written by MarshalJSON.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	hour, err := time.ParseInLocation(HourLayout, w.Hour, time.UTC)
	if err != nil {
		return fmt.Errorf("bad hour %q: %w", w.Hour, err)
	}
	if w.Disruption < TagNone || w.Disruption > TagMetric {
		return fmt.Errorf("bad disruption tag %d", w.Disruption)
	}
	*r = Record{
		Node:       w.Node,
		Metric:     w.Metric,
		Query:      w.Query,
		Hour:       hour,
		Value:      w.Value,
		Disruption: w.Disruption,
	}
	return nil
}

// HourAt returns the timestamp of the given simulated hour.
func HourAt(start time.Time, hour int) time.Time {
	return start.UTC().Add(time.Duration(hour) * time.Hour)
}

// RecordTableName holds the table name used when writing to GreptimeDB.
// It defaults to "hotcloud_data" but can be overridden via the
// GREPTIMEDB_TABLE environment variable.
var RecordTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "hotcloud_data"
}()

func (Record) TableName() string {
	return RecordTableName
}
