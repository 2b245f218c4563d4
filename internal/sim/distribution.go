package sim

import (
	"math/rand/v2"

	"hotcloud-sim/internal/config"
)

// NormalParams are the mean and standard deviation of a gaussian.
type NormalParams struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Scale maps a standard-normal sample onto the distribution.
func (p NormalParams) Scale(sample float64) float64 {
	return sample*p.Std + p.Mean
}

// EntityDistribution holds both regimes for one (node, query, metric) tuple.
type EntityDistribution struct {
	Regular   NormalParams `json:"regular"`
	Disrupted NormalParams `json:"disrupted"`
}

// Distributions is the per-tuple lookup table. It is read-only once built and
// safe to share between goroutines.
type Distributions struct {
	nodes, queries, metrics int
	table                   []EntityDistribution
}

// AssignDistributions draws a regular and a disrupted parameter pair for every
// tuple in node × query × metric. Parameters are whole numbers in [min, max).
func AssignDistributions(cfg *config.SimulationConfig, rng *rand.Rand) *Distributions {
	d := &Distributions{
		nodes:   cfg.Nodes,
		queries: cfg.Queries,
		metrics: cfg.Metrics,
		table:   make([]EntityDistribution, 0, cfg.Tuples()),
	}
	for range cfg.Nodes {
		for range cfg.Queries {
			for range cfg.Metrics {
				regular := drawParams(rng, cfg.RegularDistribution)
				disrupted := drawParams(rng, cfg.DisruptedDistribution)
				d.table = append(d.table, EntityDistribution{Regular: regular, Disrupted: disrupted})
			}
		}
	}
	return d
}

// NewDistributions builds a table from a function, mainly for fixtures.
func NewDistributions(nodes, queries, metrics int, fn func(node, query, metric int) EntityDistribution) *Distributions {
	d := &Distributions{nodes: nodes, queries: queries, metrics: metrics, table: make([]EntityDistribution, 0, nodes*queries*metrics)}
	for n := range nodes {
		for q := range queries {
			for m := range metrics {
				d.table = append(d.table, fn(n, q, m))
			}
		}
	}
	return d
}

func drawParams(rng *rand.Rand, b config.Distribution) NormalParams {
	return NormalParams{
		Mean: float64(between(rng, b.MinMean, b.MaxMean)),
		Std:  float64(between(rng, b.MinStd, b.MaxStd)),
	}
}

// Get returns the distributions of a tuple.
func (d *Distributions) Get(node, query, metric int) EntityDistribution {
	return d.table[(node*d.queries+query)*d.metrics+metric]
}

// Len is the number of tuples in the table.
func (d *Distributions) Len() int { return len(d.table) }
