package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"hotcloud-sim/internal/config"
	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/telemetry"
)

var bulkAction = []byte(`{"index":{}}` + "\n")

// ElasticWriter indexes record batches through the Elasticsearch bulk API.
type ElasticWriter struct {
	es    *elasticsearch.Client
	index string
}

// NewElasticWriter creates a writer for cfg.Index at cfg.URL. A nil transport
// uses http.DefaultTransport. Retries are disabled: a failed batch is reported,
// never resent.
func NewElasticWriter(cfg config.ElasticsearchSink, transport http.RoundTripper) (*ElasticWriter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("elasticsearch url not set")
	}
	if cfg.Index == "" {
		return nil, fmt.Errorf("elasticsearch index not set")
	}
	switch strings.ToLower(cfg.Compression) {
	case "", CompressionNone, CompressionGzip:
	default:
		return nil, fmt.Errorf("unsupported elasticsearch compression %q", cfg.Compression)
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:           []string{strings.TrimRight(cfg.URL, "/")},
		Transport:           transport,
		CompressRequestBody: strings.EqualFold(cfg.Compression, CompressionGzip),
		DisableRetry:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return &ElasticWriter{es: es, index: cfg.Index}, nil
}

type bulkResponse struct {
	Took   int  `json:"took"`
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// WriteBatch sends the batch as one bulk request. Any rejected item fails the batch.
func (w *ElasticWriter) WriteBatch(ctx context.Context, rows []telemetry.Record) error {
	if len(rows) == 0 {
		return nil
	}
	var body bytes.Buffer
	for _, r := range rows {
		body.Write(bulkAction)
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		body.Write(data)
		body.WriteByte('\n')
	}
	size := body.Len()

	start := time.Now()
	res, err := w.es.Bulk(&body, w.es.Bulk.WithIndex(w.index), w.es.Bulk.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("bulk request: status %d: %s", res.StatusCode, bytes.TrimSpace(msg))
	}
	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if br.Errors {
		return fmt.Errorf("bulk request: %s", firstBulkError(br))
	}
	logging.FromContext(ctx).Debug("bulk indexed", "records", len(rows), "bytes", size, "took", time.Since(start))
	return nil
}

func firstBulkError(br bulkResponse) string {
	for _, item := range br.Items {
		for _, res := range item {
			if res.Error != nil {
				return fmt.Sprintf("item rejected (%d): %s: %s", res.Status, res.Error.Type, res.Error.Reason)
			}
		}
	}
	return "items rejected"
}

// Reset drops the index and recreates it with the given mapping body. A missing
// index is not an error.
func (w *ElasticWriter) Reset(ctx context.Context, mapping string) error {
	res, err := w.es.Indices.Delete([]string{w.index}, w.es.Indices.Delete.WithContext(ctx))
	if err := checkResponse("delete index", res, err, http.StatusNotFound); err != nil {
		return err
	}

	opts := []func(*esapi.IndicesCreateRequest){w.es.Indices.Create.WithContext(ctx)}
	if mapping != "" {
		opts = append(opts, w.es.Indices.Create.WithBody(strings.NewReader(mapping)))
	}
	res, err = w.es.Indices.Create(w.index, opts...)
	return checkResponse("create index", res, err)
}

// Refresh makes everything indexed so far searchable.
func (w *ElasticWriter) Refresh(ctx context.Context) error {
	res, err := w.es.Indices.Refresh(w.es.Indices.Refresh.WithIndex(w.index), w.es.Indices.Refresh.WithContext(ctx))
	return checkResponse("refresh index", res, err)
}

// checkResponse drains and closes res and turns transport errors and error
// statuses, other than the allowed ones, into an error.
func checkResponse(op string, res *esapi.Response, err error, allowed ...int) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if !res.IsError() {
		return nil
	}
	for _, code := range allowed {
		if res.StatusCode == code {
			return nil
		}
	}
	return fmt.Errorf("%s: status %d", op, res.StatusCode)
}
