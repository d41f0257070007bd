// Package metrics exposes Prometheus counters and histograms for the
// ingestion/search pipeline: queue depth, per-file processing
// duration, job duration, embedding batch duration, and search
// latency, registered at construction time and exposed via a
// /metrics HTTP handler.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the worker and search path report
// against. A nil *Collector is valid everywhere it is passed: every
// recording method returns early on a nil receiver so metrics stay
// entirely optional.
type Collector struct {
	QueueDepth     *prometheus.GaugeVec
	FilesProcessed *prometheus.CounterVec
	FileDuration   *prometheus.HistogramVec
	JobDuration    prometheus.Histogram
	EmbeddingBatch prometheus.Histogram
	SearchRequests *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	SearchCacheHit prometheus.Counter
	SearchCacheMiss prometheus.Counter
}

// New creates and registers every metric against the default registry.
func New(namespace string) *Collector {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics against an explicit registry, for
// tests that want an isolated prometheus.Registry instead of the
// package-global default.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "ingestcore"
	}
	f := promauto.With(reg)

	return &Collector{
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of queued files not yet completed, by job.",
		}, []string{"job_id"}),
		FilesProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_processed_total",
			Help:      "Total files dequeued and processed, by outcome.",
		}, []string{"outcome"}),
		FileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_process_duration_seconds",
			Help:      "Time to chunk, embed, and write one dequeued file.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		JobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from job creation to its terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 3600},
		}),
		EmbeddingBatch: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_batch_duration_seconds",
			Help:      "Time to embed one worker-submitted batch of chunk text.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		SearchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total semantic search requests, by outcome.",
		}, []string{"outcome"}),
		SearchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end semantic search latency.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		SearchCacheHit: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_hits_total",
			Help:      "Total search queries answered from the LRU cache.",
		}),
		SearchCacheMiss: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_cache_misses_total",
			Help:      "Total search queries that missed the LRU cache.",
		}),
	}
}

// ObserveQueueDepth records the current queue depth for a job.
func (c *Collector) ObserveQueueDepth(jobID string, depth int64) {
	if c == nil {
		return
	}
	c.QueueDepth.WithLabelValues(jobID).Set(float64(depth))
}

// ObserveFileProcessed records one dequeued file's outcome and duration.
func (c *Collector) ObserveFileProcessed(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.FilesProcessed.WithLabelValues(outcome).Inc()
	c.FileDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveJobDuration records a job's total wall-clock time to drain.
func (c *Collector) ObserveJobDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.JobDuration.Observe(d.Seconds())
}

// ObserveEmbeddingBatch records one pool batch's inference duration.
func (c *Collector) ObserveEmbeddingBatch(d time.Duration) {
	if c == nil {
		return
	}
	c.EmbeddingBatch.Observe(d.Seconds())
}

// ObserveSearch records one search request's outcome and latency.
func (c *Collector) ObserveSearch(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.SearchRequests.WithLabelValues(outcome).Inc()
	c.SearchDuration.Observe(d.Seconds())
}

// ObserveCacheHit records a search LRU cache hit or miss.
func (c *Collector) ObserveCacheHit(hit bool) {
	if c == nil {
		return
	}
	if hit {
		c.SearchCacheHit.Inc()
		return
	}
	c.SearchCacheMiss.Inc()
}

// Serve runs a /metrics HTTP server bound to addr until ctx is
// cancelled. It is meant to run in its own goroutine.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
