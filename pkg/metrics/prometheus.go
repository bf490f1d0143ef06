package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	rowsIngested *prometheus.CounterVec
	jobOutcomes  *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	lastSuccess  *prometheus.GaugeVec
	recomputed   prometheus.Counter
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		rowsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloompull_rows_ingested_total",
				Help: "Total canonical rows committed per source",
			},
			[]string{"source"},
		),
		jobOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloompull_jobs_total",
				Help: "Ingestion job outcomes per source",
			},
			[]string{"source", "outcome"},
		),
		jobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bloompull_job_duration_seconds",
				Help:    "Duration of ingestion jobs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloompull_cache_hits_total",
				Help: "Cache hits per entry kind",
			},
			[]string{"kind"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bloompull_cache_misses_total",
				Help: "Cache misses per entry kind",
			},
			[]string{"kind"},
		),
		lastSuccess: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bloompull_last_success_timestamp_seconds",
				Help: "Unix time of the last successful ingestion per source",
			},
			[]string{"source"},
		),
		recomputed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "bloompull_metrics_recomputed_total",
				Help: "Total derived metric values recomputed",
			},
		),
	}
}

// RecordRowsIngested counts committed canonical rows for a source.
func (r *Recorder) RecordRowsIngested(source string, n int) {
	r.rowsIngested.WithLabelValues(source).Add(float64(n))
}

// RecordJobOutcome counts a finished job by outcome.
func (r *Recorder) RecordJobOutcome(source, outcome string) {
	r.jobOutcomes.WithLabelValues(source, outcome).Inc()
}

// RecordJobDuration records a job duration in seconds.
func (r *Recorder) RecordJobDuration(source string, seconds float64) {
	r.jobDuration.WithLabelValues(source).Observe(seconds)
}

// RecordCacheHit counts a cache hit for an entry kind.
func (r *Recorder) RecordCacheHit(kind string) {
	r.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss counts a cache miss for an entry kind.
func (r *Recorder) RecordCacheMiss(kind string) {
	r.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordLastSuccess sets the last successful ingestion time for a source.
func (r *Recorder) RecordLastSuccess(source string, ts time.Time) {
	r.lastSuccess.WithLabelValues(source).Set(float64(ts.Unix()))
}

// RecordRecompute counts recomputed derived metric values.
func (r *Recorder) RecordRecompute(n int) {
	r.recomputed.Add(float64(n))
}
