package sim

import (
	"context"
	"fmt"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/telemetry"
)

const defaultGreptimePort = 4001

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes records to GreptimeDB via the ingester client.
// Tags are node, query and metric; the hour is the time index.
type GreptimeDBWriter struct {
	client greptimeClient
	table  string
}

// NewGreptimeDBWriter connects to endpoint (host or host:port).
func NewGreptimeDBWriter(cfg config.GreptimeSink) (*GreptimeDBWriter, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("greptime endpoint not set")
	}
	host, port, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	db := cfg.Database
	if db == "" {
		db = "public"
	}
	tbl := cfg.Table
	if tbl == "" {
		tbl = telemetry.RecordTableName
	}
	client, err := greptime.NewClient(greptime.NewConfig(host).WithPort(port).WithDatabase(db))
	if err != nil {
		return nil, err
	}
	return &GreptimeDBWriter{client: client, table: tbl}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptime port %q: %w", portStr, err)
	}
	return host, port, nil
}

// WriteBatch inserts multiple records in one request.
func (w *GreptimeDBWriter) WriteBatch(ctx context.Context, rows []telemetry.Record) error {
	if len(rows) == 0 {
		return nil
	}

	tbl, err := table.New(w.table)
	if err != nil {
		return err
	}
	if err := tbl.AddTagColumn("node", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("query", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddTagColumn("metric", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("value", types.FLOAT64); err != nil {
		return err
	}
	if err := tbl.AddFieldColumn("disruption", types.INT64); err != nil {
		return err
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return err
	}

	for _, r := range rows {
		if err := tbl.AddRow(int64(r.Node), int64(r.Query), int64(r.Metric), r.Value, int64(r.Disruption), r.Hour); err != nil {
			return err
		}
	}

	if _, err := w.client.Write(ctx, tbl); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	logging.FromContext(ctx).Debug("greptime batch written", "rows", len(rows), "table", w.table)
	return nil
}
