// Package metrics exposes the acquisition/verification pipeline's counters
// and gauges via prometheus/client_golang, grounded on the gateway
// collector's promauto style.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	chunksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewfkit_chunks_processed_total",
			Help: "Total number of chunks read and stored, by outcome",
		},
		[]string{"operation", "outcome"}, // operation: acquire|verify, outcome: ok|mismatch
	)

	bytesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewfkit_bytes_processed_total",
			Help: "Total number of storage-media bytes read",
		},
		[]string{"operation"},
	)

	readRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ewfkit_read_retries_total",
			Help: "Total number of sector read retries issued by the device reader",
		},
	)

	wipedSectors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewfkit_wiped_sectors_total",
			Help: "Total number of wipe events (one per wiped granularity window) after exhausting read retries",
		},
		[]string{"granularity"},
	)

	chunkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ewfkit_chunk_duration_seconds",
			Help:    "Wall time spent producing one chunk, from read through digest update",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"operation"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ewfkit_sessions_active",
			Help: "Number of acquisition or verification sessions currently running",
		},
	)

	sessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ewfkit_sessions_total",
			Help: "Total number of sessions completed, by final status",
		},
		[]string{"operation", "status"}, // status: completed|aborted|failed|mismatch
	)
)

// Collector is a thin facade over the package-level promauto vectors, so
// callers record events through one object rather than reaching for
// package vars directly.
type Collector struct {
	startTime time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordChunk records one chunk's outcome and the time it took to produce.
func (c *Collector) RecordChunk(operation, outcome string, size int, d time.Duration) {
	chunksProcessed.WithLabelValues(operation, outcome).Inc()
	bytesProcessed.WithLabelValues(operation).Add(float64(size))
	chunkDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordRetry records a single sector read retry.
func (c *Collector) RecordRetry() {
	readRetries.Inc()
}

// RecordWipe records one wipe event at the given granularity.
func (c *Collector) RecordWipe(granularity string) {
	wipedSectors.WithLabelValues(granularity).Inc()
}

// SessionStarted marks a session as active.
func (c *Collector) SessionStarted() {
	sessionsActive.Inc()
}

// SessionEnded marks a session finished with the given status.
func (c *Collector) SessionEnded(operation, status string) {
	sessionsActive.Dec()
	sessionsTotal.WithLabelValues(operation, status).Inc()
}

func (c *Collector) Uptime() time.Duration {
	return time.Since(c.startTime)
}

// Handler serves the registered collectors in the Prometheus exposition
// format, for mounting on a -metrics-addr listener.
func (c *Collector) Handler() http.Handler {
	return promhttp.Handler()
}
