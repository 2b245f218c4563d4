// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalid marks a configuration that parsed but violates a precondition.
var ErrInvalid = errors.New("invalid configuration")

// DefaultStart is the epoch of hour zero.
var DefaultStart = time.Date(2015, 10, 20, 0, 0, 0, 0, time.UTC)

// Distribution bounds the gaussian parameters drawn for one regime.
type Distribution struct {
	MinMean int `yaml:"min_mean" json:"min_mean"`
	MaxMean int `yaml:"max_mean" json:"max_mean"`
	MinStd  int `yaml:"min_std" json:"min_std"`
	MaxStd  int `yaml:"max_std" json:"max_std"`
}

// FileSink configures the JSON lines output.
type FileSink struct {
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// ElasticsearchSink configures the bulk HTTP output.
type ElasticsearchSink struct {
	URL         string `yaml:"url"`
	Index       string `yaml:"index"`
	Mapping     string `yaml:"mapping"`
	Reset       bool   `yaml:"reset"`
	Compression string `yaml:"compression"`
}

// GreptimeSink configures the GreptimeDB ingester output.
type GreptimeSink struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Sink selects and configures the network or file output.
type Sink struct {
	// Type is the network sink used when file mode is off: elasticsearch or greptime.
	Type          string            `yaml:"type"`
	File          FileSink          `yaml:"file"`
	Elasticsearch ElasticsearchSink `yaml:"elasticsearch"`
	Greptime      GreptimeSink      `yaml:"greptime"`
}

// SimulationConfig is the root configuration for one generation run.
type SimulationConfig struct {
	Nodes       int `yaml:"nodes"`
	Queries     int `yaml:"queries"`
	Metrics     int `yaml:"metrics"`
	Hours       int `yaml:"hours"`
	Disruptions int `yaml:"disruptions"`
	// Threads bounds the number of batches in flight.
	Threads  int `yaml:"threads"`
	BulkSize int `yaml:"bulk_size"`
	// BufferSize is the capacity of the sample buffer.
	BufferSize            int          `yaml:"buffer_size"`
	Seed                  int64        `yaml:"seed"`
	StartTime             time.Time    `yaml:"start_time"`
	RegularDistribution   Distribution `yaml:"regular_distribution"`
	DisruptedDistribution Distribution `yaml:"disrupted_distribution"`
	Sink                  Sink         `yaml:"sink"`
}

// Default returns the configuration used when no config file is found.
func Default() *SimulationConfig {
	return &SimulationConfig{
		Nodes:       10,
		Queries:     10,
		Metrics:     10,
		Hours:       3000,
		Disruptions: 50,
		Threads:     2,
		BulkSize:    10000,
		BufferSize:  32768,
		StartTime:   DefaultStart,
		RegularDistribution: Distribution{
			MinMean: 20, MaxMean: 40, MinStd: 1, MaxStd: 10,
		},
		DisruptedDistribution: Distribution{
			MinMean: 60, MaxMean: 200, MinStd: 20, MaxStd: 100,
		},
		Sink: Sink{
			Type: "elasticsearch",
			File: FileSink{Path: "output.json", Compression: "none"},
			Elasticsearch: ElasticsearchSink{
				URL:   "http://localhost:9200",
				Index: "data",
			},
			Greptime: GreptimeSink{Database: "public", Table: "hotcloud_data"},
		},
	}
}

// Load reads YAML config over the defaults and validates it against a CUE schema.
// A missing file falls back to Default with a warning. An empty schemaPath uses the
// embedded schema.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	data, err := os.ReadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", configPath)
		cfg := Default()
		cfg.ApplyEnv()
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	if err := ValidateWithCue(configPath, data, cueSchemaPath); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("loaded configuration", "config", fmt.Sprintf("%+v", *cfg))
	return cfg, nil
}

// ApplyEnv overrides sink endpoints from the environment.
func (c *SimulationConfig) ApplyEnv() {
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		c.Sink.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_TABLE"); v != "" {
		c.Sink.Greptime.Table = v
	}
	if v := os.Getenv("ELASTICSEARCH_URL"); v != "" {
		c.Sink.Elasticsearch.URL = v
	}
}

// Validate checks the preconditions the generator relies on.
func (c *SimulationConfig) Validate() error {
	switch {
	case c.Nodes < 1 || c.Queries < 1 || c.Metrics < 1:
		return fmt.Errorf("%w: nodes, queries and metrics must be >= 1", ErrInvalid)
	case c.Hours <= 72:
		return fmt.Errorf("%w: hours must be > 72, got %d", ErrInvalid, c.Hours)
	case c.Disruptions < 0:
		return fmt.Errorf("%w: disruptions must be >= 0", ErrInvalid)
	case c.Threads < 1:
		return fmt.Errorf("%w: threads must be >= 1", ErrInvalid)
	case c.BulkSize < 1:
		return fmt.Errorf("%w: bulk_size must be >= 1", ErrInvalid)
	case c.BufferSize < 1:
		return fmt.Errorf("%w: buffer_size must be >= 1", ErrInvalid)
	}
	if err := c.RegularDistribution.validate("regular_distribution"); err != nil {
		return err
	}
	return c.DisruptedDistribution.validate("disrupted_distribution")
}

func (d Distribution) validate(name string) error {
	if d.MinMean > d.MaxMean || d.MinStd > d.MaxStd {
		return fmt.Errorf("%w: %s min must not exceed max", ErrInvalid, name)
	}
	if d.MinStd < 0 {
		return fmt.Errorf("%w: %s std must be >= 0", ErrInvalid, name)
	}
	return nil
}

// Tuples is the size of the node × query × metric cross product.
func (c *SimulationConfig) Tuples() int {
	return c.Nodes * c.Queries * c.Metrics
}
