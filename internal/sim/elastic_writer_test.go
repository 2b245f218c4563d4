package sim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/telemetry"
)

type fakeElastic struct {
	mu       sync.Mutex
	requests []string
	records  []telemetry.Record
	encoding string
	reject   bool
}

// elasticServer starts h behind the product header the client checks for.
func elasticServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeElastic) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)
	if !strings.HasSuffix(r.URL.Path, "/_bulk") {
		w.WriteHeader(http.StatusOK)
		return
	}
	f.encoding = r.Header.Get("Content-Encoding")
	var body io.Reader = r.Body
	if f.encoding == "gzip" {
		zr, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		body = zr
	}
	sc := bufio.NewScanner(body)
	line := 0
	for sc.Scan() {
		if line%2 == 0 {
			if sc.Text() != `{"index":{}}` {
				http.Error(w, "bad action line", http.StatusBadRequest)
				return
			}
		} else {
			var rec telemetry.Record
			if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.records = append(f.records, rec)
		}
		line++
	}
	w.Header().Set("Content-Type", "application/json")
	if f.reject {
		_, _ = io.WriteString(w, `{"took":1,"errors":true,"items":[{"index":{"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad value"}}}]}`)
		return
	}
	_, _ = io.WriteString(w, `{"took":1,"errors":false,"items":[]}`)
}

func testRecords(n int) []telemetry.Record {
	rows := make([]telemetry.Record, n)
	for i := range rows {
		rows[i] = telemetry.Record{Node: i, Metric: 1, Query: 2, Hour: time.Date(2015, 10, 20, i, 0, 0, 0, time.UTC), Value: float64(i) + 0.5}
	}
	return rows
}

func TestElasticWriterBulk(t *testing.T) {
	for _, comp := range []string{"none", "gzip"} {
		t.Run(comp, func(t *testing.T) {
			fe := &fakeElastic{}
			srv := elasticServer(t, fe)

			w, err := NewElasticWriter(config.ElasticsearchSink{URL: srv.URL + "/", Index: "data", Compression: comp}, srv.Client().Transport)
			if err != nil {
				t.Fatalf("NewElasticWriter: %v", err)
			}
			if err := w.WriteBatch(context.Background(), testRecords(3)); err != nil {
				t.Fatalf("WriteBatch: %v", err)
			}
			if len(fe.records) != 3 || fe.records[2].Value != 2.5 {
				t.Fatalf("unexpected records: %+v", fe.records)
			}
			if fe.requests[0] != "POST /data/_bulk" {
				t.Fatalf("unexpected request %q", fe.requests[0])
			}
			wantEnc := ""
			if comp == "gzip" {
				wantEnc = "gzip"
			}
			if fe.encoding != wantEnc {
				t.Fatalf("Content-Encoding = %q, want %q", fe.encoding, wantEnc)
			}
		})
	}
}

func TestElasticWriterRejectedItems(t *testing.T) {
	fe := &fakeElastic{reject: true}
	srv := elasticServer(t, fe)

	w, err := NewElasticWriter(config.ElasticsearchSink{URL: srv.URL, Index: "data"}, srv.Client().Transport)
	if err != nil {
		t.Fatalf("NewElasticWriter: %v", err)
	}
	err = w.WriteBatch(context.Background(), testRecords(1))
	if err == nil || !strings.Contains(err.Error(), "mapper_parsing_exception") {
		t.Fatalf("expected item error, got %v", err)
	}
}

func TestElasticWriterHTTPError(t *testing.T) {
	var calls atomic.Int32
	srv := elasticServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusTooManyRequests)
	}))

	w, err := NewElasticWriter(config.ElasticsearchSink{URL: srv.URL, Index: "data"}, srv.Client().Transport)
	if err != nil {
		t.Fatalf("NewElasticWriter: %v", err)
	}
	if err := w.WriteBatch(context.Background(), testRecords(1)); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("bulk request sent %d times, failed batches must not be retried", calls.Load())
	}
}

func TestElasticWriterResetAndRefresh(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	var mapping string
	srv := elasticServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodPut {
			b, _ := io.ReadAll(r.Body)
			mapping = string(b)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	}))

	w, err := NewElasticWriter(config.ElasticsearchSink{URL: srv.URL, Index: "data"}, srv.Client().Transport)
	if err != nil {
		t.Fatalf("NewElasticWriter: %v", err)
	}
	if err := w.Reset(context.Background(), `{"mappings":{}}`); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := w.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	want := []string{"DELETE /data", "PUT /data", "POST /data/_refresh"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	if mapping != `{"mappings":{}}` {
		t.Fatalf("mapping = %q", mapping)
	}
}

func TestNewElasticWriterValidation(t *testing.T) {
	bad := []config.ElasticsearchSink{
		{Index: "data"},
		{URL: "http://es:9200"},
		{URL: "http://es:9200", Index: "data", Compression: "zstd"},
	}
	for _, cfg := range bad {
		if _, err := NewElasticWriter(cfg, nil); err == nil {
			t.Errorf("expected error for %+v", cfg)
		}
	}
}

func TestElasticWriterLogsToContextLogger(t *testing.T) {
	srv := elasticServer(t, &fakeElastic{})
	w, err := NewElasticWriter(config.ElasticsearchSink{URL: srv.URL, Index: "data"}, srv.Client().Transport)
	if err != nil {
		t.Fatalf("NewElasticWriter: %v", err)
	}
	var buf bytes.Buffer
	log, err := logging.NewWithOptions(logging.Options{Level: "debug", Output: &buf})
	if err != nil {
		t.Fatalf("NewWithOptions: %v", err)
	}
	ctx := logging.NewContext(context.Background(), log)
	if err := w.WriteBatch(ctx, testRecords(2)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if !strings.Contains(buf.String(), "bulk indexed") || !strings.Contains(buf.String(), "records=2") {
		t.Fatalf("expected bulk log line on the context logger, got %q", buf.String())
	}
}
