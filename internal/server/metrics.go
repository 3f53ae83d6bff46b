package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xsync-go/internal/xsync"
)

// Metrics collects depot and HTTP metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	chunksStored       prometheus.Counter
	chunksDeduplicated prometheus.Counter
	bytesIngested      prometheus.Counter
	gcRuns             *prometheus.CounterVec
	gcDeleted          prometheus.Counter
	gcFreed            prometheus.Counter
	requestDuration    *prometheus.HistogramVec
}

var _ xsync.DepotMetrics = (*Metrics)(nil)

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		chunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsync", Name: "chunks_stored_total",
			Help: "Chunk payloads written to the object store.",
		}),
		chunksDeduplicated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsync", Name: "chunks_deduplicated_total",
			Help: "Uploaded chunk records skipped because they repeat within a batch.",
		}),
		bytesIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsync", Name: "ingested_bytes_total",
			Help: "Payload bytes accepted by batch uploads.",
		}),
		gcRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "xsync", Name: "gc_runs_total",
			Help: "Garbage collection passes by result.",
		}, []string{"result"}),
		gcDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsync", Name: "gc_deleted_chunks_total",
			Help: "Orphan chunks removed by garbage collection.",
		}),
		gcFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "xsync", Name: "gc_freed_bytes_total",
			Help: "Stored bytes released by garbage collection.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "xsync", Name: "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	m.registry.MustRegister(
		m.chunksStored, m.chunksDeduplicated, m.bytesIngested,
		m.gcRuns, m.gcDeleted, m.gcFreed, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ChunksIngested(stored, deduplicated int, bytes int64) {
	m.chunksStored.Add(float64(stored))
	m.chunksDeduplicated.Add(float64(deduplicated))
	m.bytesIngested.Add(float64(bytes))
}

func (m *Metrics) GarbageCollected(deleted int, freed int64, err error) {
	if err != nil {
		m.gcRuns.WithLabelValues("failure").Inc()
	} else {
		m.gcRuns.WithLabelValues("success").Inc()
	}
	m.gcDeleted.Add(float64(deleted))
	m.gcFreed.Add(float64(freed))
}

func (m *Metrics) observe(method, route string, status int, elapsed time.Duration) {
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }
