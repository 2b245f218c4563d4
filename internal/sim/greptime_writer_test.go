package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"hotcloud-sim/internal/telemetry"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	if m.err != nil {
		return nil, m.err
	}
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterRecords(t *testing.T) {
	ts := time.Date(2015, 10, 20, 3, 0, 0, 0, time.UTC)
	rows := []telemetry.Record{
		{Node: 1, Query: 2, Metric: 3, Hour: ts, Value: 42.5, Disruption: telemetry.TagQuery},
		{Node: 0, Query: 0, Metric: 0, Hour: ts, Value: 21, Disruption: telemetry.TagQuery},
	}

	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: "hotcloud_data"}

	if err := w.WriteBatch(context.Background(), rows); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}

	got := m.table.GetRows()
	if len(got.Schema) != 6 {
		t.Fatalf("unexpected schema length: %d", len(got.Schema))
	}
	if got.Schema[0].SemanticType != gpb.SemanticType_TAG || got.Schema[5].SemanticType != gpb.SemanticType_TIMESTAMP {
		t.Fatalf("unexpected semantic types: %v / %v", got.Schema[0].SemanticType, got.Schema[5].SemanticType)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Rows))
	}
	first := got.Rows[0].Values
	if first[0].GetI64Value() != 1 || first[1].GetI64Value() != 2 || first[2].GetI64Value() != 3 {
		t.Fatalf("unexpected tags: %v", first[:3])
	}
	if first[3].GetF64Value() != 42.5 {
		t.Fatalf("value = %v, want 42.5", first[3].GetF64Value())
	}
	if first[4].GetI64Value() != int64(telemetry.TagQuery) {
		t.Fatalf("disruption = %v", first[4].GetI64Value())
	}
	if first[5].GetTimestampMillisecondValue() != ts.UnixMilli() {
		t.Fatalf("ts = %d, want %d", first[5].GetTimestampMillisecondValue(), ts.UnixMilli())
	}
}

func TestGreptimeWriterPropagatesError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := &GreptimeDBWriter{client: m, table: "hotcloud_data"}
	err := w.WriteBatch(context.Background(), []telemetry.Record{{Hour: time.Unix(0, 0)}})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestGreptimeWriterEmptyBatch(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, table: "hotcloud_data"}
	if err := w.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if m.table != nil {
		t.Fatalf("expected no request for empty batch")
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		bad  bool
	}{
		{in: "db:4002", host: "db", port: 4002},
		{in: "db", host: "db", port: defaultGreptimePort},
		{in: "db:http", bad: true},
	}
	for _, c := range cases {
		host, port, err := splitEndpoint(c.in)
		if c.bad {
			if err == nil {
				t.Errorf("splitEndpoint(%q) expected error", c.in)
			}
			continue
		}
		if err != nil || host != c.host || port != c.port {
			t.Errorf("splitEndpoint(%q) = %s,%d,%v", c.in, host, port, err)
		}
	}
}
