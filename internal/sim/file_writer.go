package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"hotcloud-sim/internal/telemetry"
)

// Compression names accepted by the file and HTTP sinks.
const (
	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"
)

// FileWriter appends records as JSON lines, optionally compressed. Appending to
// an existing compressed file adds a new gzip member or zstd frame, which
// readers decode as one stream.
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
	comp io.WriteCloser
	enc  *json.Encoder
}

// NewFileWriter opens path for appending, creating it if needed.
func NewFileWriter(path, compression string) (*FileWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{file: f}
	var out io.Writer = f
	switch strings.ToLower(compression) {
	case "", CompressionNone:
	case CompressionGzip:
		fw.comp = gzip.NewWriter(f)
		out = fw.comp
	case CompressionZstd:
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		fw.comp = zw
		out = zw
	default:
		f.Close()
		return nil, fmt.Errorf("unknown compression %q", compression)
	}
	fw.enc = json.NewEncoder(out)
	return fw, nil
}

// WriteBatch logs multiple records. Safe for concurrent use.
func (f *FileWriter) WriteBatch(_ context.Context, rows []telemetry.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range rows {
		if err := f.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes the compressor, if any, and closes the file.
func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.comp != nil {
		if e := f.comp.Close(); e != nil {
			err = e
		}
	}
	if f.file != nil {
		if e := f.file.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
