// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/jamesross/vaultkeep/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChunksIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_chunks_ingested_total",
		Help: "Total number of chunks passed through Ingest, deduplicated or not",
	})
	ChunksStoredNew = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_chunks_stored_new_total",
		Help: "Total number of chunks that were new and actually written to storage",
	})
	ChunksDeduplicated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_chunks_deduplicated_total",
		Help: "Total number of chunks that matched an already-stored address",
	})
	BytesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_bytes_stored_total",
		Help: "Total compressed/encrypted bytes written to the storage backend",
	})
	IngestDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vaultkeep_ingest_duration_seconds",
		Help:    "Histogram of Engine.Ingest call durations",
		Buckets: prometheus.DefBuckets,
	})
	MaterialiseDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vaultkeep_materialise_duration_seconds",
		Help:    "Histogram of Engine.Materialise call durations",
		Buckets: prometheus.DefBuckets,
	})
	IntegrityFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_integrity_failures_total",
		Help: "Total number of chunks that failed the hash-on-read integrity check",
	})
	SnapshotsCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_snapshots_committed_total",
		Help: "Total number of snapshots successfully committed",
	})
	SnapshotsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_snapshots_dropped_total",
		Help: "Total number of snapshots dropped",
	})
	SweepChunksDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_sweep_chunks_deleted_total",
		Help: "Total number of orphaned chunks reclaimed by Sweep",
	})
	DedupIndexSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vaultkeep_dedup_index_size",
		Help: "Current number of distinct addresses tracked by the dedup index",
	})
	CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vaultkeep_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open, per storage backend",
	}, []string{"backend"})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vaultkeep_circuit_breaker_trips_total",
		Help: "Count of times a storage backend's circuit breaker transitioned to Open",
	})
)

func init() {
	prometheus.MustRegister(
		ChunksIngested, ChunksStoredNew, ChunksDeduplicated, BytesStored,
		IngestDuration, MaterialiseDuration, IntegrityFailures,
		SnapshotsCommitted, SnapshotsDropped, SweepChunksDeleted,
		DedupIndexSize, CircuitBreakerState, CircuitBreakerTrips,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled
// shutdown. Retained alongside StartHTTPServer, which also registers the
// health endpoints, for callers that only want metrics.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
