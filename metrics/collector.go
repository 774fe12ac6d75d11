// Package metrics exposes Prometheus collectors for coverage checks,
// retrieval and ingestion.
package metrics

import (
	"log/slog"
	"time"

	"github.com/poiesic/coverwise/core"
	"github.com/poiesic/coverwise/ingestion"
	"github.com/poiesic/coverwise/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "coverwise"

// Collector records service metrics. It implements search.SearchMonitor and
// ingestion.Observer, and is safe for concurrent use.
type Collector struct {
	// Coverage
	coverageChecks *prometheus.CounterVec

	// Retrieval
	searchRequests *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchResults  prometheus.Histogram
	searchDegraded *prometheus.CounterVec

	// Ingestion
	chunksIngested      prometheus.Counter
	chunkFailures       *prometheus.CounterVec
	classifierFallbacks prometheus.Counter

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

var (
	_ search.SearchMonitor = (*Collector)(nil)
	_ ingestion.Observer   = (*Collector)(nil)
)

// NewCollector registers the collectors with reg. A nil reg uses a private
// registry, which keeps tests and multiple services independent.
func NewCollector(namespace string, reg prometheus.Registerer, logger *slog.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg, gatherer = private, private
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	c := &Collector{
		gatherer: gatherer,
		logger:   logger.With("component", "metrics"),
	}

	c.coverageChecks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coverage_checks_total",
			Help:      "Total number of coverage checks by result status",
		},
		[]string{"status"},
	)

	c.searchRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Total number of searches by executed mode",
		},
		[]string{"mode"},
	)

	c.searchDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"mode"},
	)

	c.searchResults = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search",
			Buckets:   prometheus.LinearBuckets(0, 5, 6),
		},
	)

	c.searchDegraded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_degraded_total",
			Help:      "Searches that ran in a weaker mode than requested",
		},
		[]string{"requested", "used"},
	)

	c.chunksIngested = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_chunks_total",
			Help:      "Total number of chunks written to the vector index",
		},
	)

	c.chunkFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_failures_total",
			Help:      "Chunks that failed ingestion by pipeline stage",
		},
		[]string{"stage"},
	)

	c.classifierFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Chunks labelled by the keyword fallback classifier",
		},
	)

	return c
}

// Gatherer returns the registry the collectors were registered with.
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// RecordCoverageCheck counts one coverage decision.
func (c *Collector) RecordCoverageCheck(status core.CoverageStatus) {
	c.coverageChecks.WithLabelValues(string(status)).Inc()
}

func (c *Collector) Start(req search.Request) {
	c.logger.Debug("search started", "mode", req.Mode, "policy_id", req.PolicyID, "top_k", req.TopK)
}

func (c *Collector) AfterCandidateFilter(policyID string, candidates int) {
	c.logger.Debug("candidates filtered", "policy_id", policyID, "candidates", candidates)
}

func (c *Collector) AfterKeywordScoring(hits int) {
	c.logger.Debug("keyword scoring done", "hits", hits)
}

func (c *Collector) AfterSemanticScoring(hits int) {
	c.logger.Debug("semantic scoring done", "hits", hits)
}

func (c *Collector) Degraded(requested, used search.Mode) {
	c.searchDegraded.WithLabelValues(string(requested), string(used)).Inc()
}

func (c *Collector) Finish(mode search.Mode, results []search.Result, elapsed time.Duration) {
	c.searchRequests.WithLabelValues(string(mode)).Inc()
	c.searchDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	c.searchResults.Observe(float64(len(results)))
}

func (c *Collector) ChunksIngested(n int) {
	c.chunksIngested.Add(float64(n))
}

func (c *Collector) ChunkFailed(stage ingestion.Stage) {
	c.chunkFailures.WithLabelValues(string(stage)).Inc()
}

func (c *Collector) ClassifierFallback() {
	c.classifierFallbacks.Inc()
}
