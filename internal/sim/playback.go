package sim

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"hotcloud-sim/internal/logging"
	"hotcloud-sim/internal/telemetry"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// ReplayLog reads JSON line records from r and dispatches them to writer in
// batches of batchSize with at most concurrency batches in flight. It returns
// once every batch has finished. Failed batches are logged to the logger in ctx.
func ReplayLog(ctx context.Context, r io.Reader, writer RecordWriter, batchSize, concurrency int) (DispatchStats, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	d := NewDispatcher(writer, concurrency, logging.FromContext(ctx))
	dec := json.NewDecoder(r)
	batch := make([]telemetry.Record, 0, batchSize)
	line := 0
	for {
		var row telemetry.Record
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				break
			}
			d.Wait()
			return d.Stats(), fmt.Errorf("record %d: %w", line+1, err)
		}
		line++
		batch = append(batch, row)
		if len(batch) >= batchSize {
			if err := d.Submit(ctx, batch); err != nil {
				d.Wait()
				return d.Stats(), err
			}
			batch = make([]telemetry.Record, 0, batchSize)
		}
	}
	d.Wait()
	_ = d.Flush(ctx, batch)
	return d.Stats(), nil
}

// ReplayLogFile opens a file written by FileWriter, plain or compressed, and
// replays its records.
func ReplayLogFile(ctx context.Context, path string, writer RecordWriter, batchSize, concurrency int) (DispatchStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return DispatchStats{}, err
	}
	defer f.Close()
	r, closeFn, err := OpenRecordStream(f)
	if err != nil {
		return DispatchStats{}, err
	}
	defer closeFn()
	return ReplayLog(ctx, r, writer, batchSize, concurrency)
}

// OpenRecordStream sniffs gzip or zstd magic bytes and returns a decompressing
// reader, or r itself for plain JSON lines.
func OpenRecordStream(r io.Reader) (io.Reader, func(), error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, func() { zr.Close() }, nil
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	}
	return br, func() {}, nil
}
