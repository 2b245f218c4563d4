package sim

import "github.com/prometheus/client_golang/prometheus"

var (
	recordsGeneratedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotcloud_records_generated_total",
		Help: "Total number of records assembled by the timeline",
	})

	batchesDispatchedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotcloud_batches_dispatched_total",
		Help: "Total number of batches persisted by the sink",
	})

	batchesFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotcloud_batches_failed_total",
		Help: "Total number of batches the sink failed to persist",
	})

	recordsLostTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotcloud_records_lost_total",
		Help: "Total number of records dropped with failed batches",
	})

	dispatchInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hotcloud_dispatch_in_flight",
		Help: "Number of batches currently being written to the sink",
	})

	dispatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hotcloud_dispatch_duration_seconds",
		Help:    "Time spent writing one batch to the sink",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	disruptionsActivatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotcloud_disruptions_activated_total",
		Help: "Total number of scheduled disruptions that became active",
	})

	disruptionsShadowedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hotcloud_disruptions_shadowed_total",
		Help: "Total number of scheduled disruptions skipped because another one was active",
	})

	sampleBufferDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hotcloud_sample_buffer_depth",
		Help: "Samples waiting in the producer buffer, sampled once per simulated hour",
	})
)

func init() {
	prometheus.MustRegister(recordsGeneratedTotal)
	prometheus.MustRegister(batchesDispatchedTotal)
	prometheus.MustRegister(batchesFailedTotal)
	prometheus.MustRegister(recordsLostTotal)
	prometheus.MustRegister(dispatchInFlight)
	prometheus.MustRegister(dispatchDuration)
	prometheus.MustRegister(disruptionsActivatedTotal)
	prometheus.MustRegister(disruptionsShadowedTotal)
	prometheus.MustRegister(sampleBufferDepth)
}
