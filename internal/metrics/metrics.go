// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package metrics exposes Prometheus instrumentation for the batch
// pipeline, the vector store, the text embedding backend and the query
// path. Metrics are registered with promauto and served at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Metrics
	IngestRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_ingest_rows_total",
			Help: "Order rows read by the ingester, by outcome and rejection reason",
		},
		[]string{"outcome", "reason"}, // outcome: accepted, rejected
	)

	// Batch Metrics
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketrec_batch_stage_duration_seconds",
			Help:    "Duration of batch pipeline stages in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"stage"}, // ingest, cooccurrence, embed:<variant>, publish, total
	)

	BatchRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_batch_runs_total",
			Help: "Batch pipeline runs by final status",
		},
		[]string{"status"}, // success, failed, skipped
	)

	BatchLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "basketrec_batch_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful batch run",
		},
	)

	EmbeddingsGenerated = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "basketrec_embeddings_generated",
			Help: "Vectors produced by the last batch run, per variant",
		},
		[]string{"variant"},
	)

	// Store Metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketrec_store_operation_duration_seconds",
			Help:    "Duration of vector store backend operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_store_operation_errors_total",
			Help: "Vector store backend operations that failed after all retries",
		},
		[]string{"backend", "operation"},
	)

	StoreRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_store_retries_total",
			Help: "Retried vector store backend operations",
		},
		[]string{"backend", "operation"},
	)

	StoreMalformedRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_store_malformed_records_total",
			Help: "Records skipped during scans because they failed validation",
		},
		[]string{"namespace"},
	)

	SnapshotGeneration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "basketrec_snapshot_generation",
			Help: "Current published generation per namespace",
		},
		[]string{"namespace"},
	)

	ScanCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketrec_scan_cache_hits_total",
			Help: "Variant scans served from the generation cache",
		},
	)

	ScanCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "basketrec_scan_cache_misses_total",
			Help: "Variant scans read from the backend",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "basketrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Text Embedding Backend Metrics
	EmbedRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketrec_embed_request_duration_seconds",
			Help:    "Duration of text embedding backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "model"},
	)

	// Query Metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketrec_query_duration_seconds",
			Help:    "Duration of recommendation queries by operation and result source",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "source"},
	)

	QueryFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_query_fallbacks_total",
			Help: "Queries answered from the popularity snapshot instead of similarity data",
		},
		[]string{"reason"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "basketrec_api_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "basketrec_api_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordIngest records the row outcomes of one ingestion pass.
func RecordIngest(accepted int, rejectedByReason map[string]int) {
	IngestRows.WithLabelValues("accepted", "").Add(float64(accepted))
	for reason, n := range rejectedByReason {
		IngestRows.WithLabelValues("rejected", reason).Add(float64(n))
	}
}

// RecordBatchStage records the duration of one pipeline stage.
func RecordBatchStage(stage string, duration time.Duration) {
	BatchDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordBatchRun records the final status of a pipeline run.
func RecordBatchRun(status string) {
	BatchRuns.WithLabelValues(status).Inc()
	if status == "success" {
		BatchLastSuccess.SetToCurrentTime()
	}
}

// RecordEmbeddings records how many vectors a variant produced.
func RecordEmbeddings(variant string, count int) {
	EmbeddingsGenerated.WithLabelValues(variant).Set(float64(count))
}

// RecordStoreOperation records one backend operation after retries.
func RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordStoreRetry records one retry of a backend operation.
func RecordStoreRetry(backend, operation string) {
	StoreRetries.WithLabelValues(backend, operation).Inc()
}

// RecordMalformedRecords records records skipped during a scan.
func RecordMalformedRecords(namespace string, count int) {
	if count > 0 {
		StoreMalformedRecords.WithLabelValues(namespace).Add(float64(count))
	}
}

// SetSnapshotGeneration records the current generation of a namespace.
func SetSnapshotGeneration(namespace string, generation int64) {
	SnapshotGeneration.WithLabelValues(namespace).Set(float64(generation))
}

// RecordScanCache records a generation cache lookup.
func RecordScanCache(hit bool) {
	if hit {
		ScanCacheHits.Inc()
		return
	}
	ScanCacheMisses.Inc()
}

// RecordCircuitBreakerTransition records a breaker state change. States
// are the gobreaker names: closed, half-open, open.
func RecordCircuitBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	CircuitBreakerState.WithLabelValues(name).Set(breakerStateValue(to))
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

// RecordEmbedRequest records one text embedding backend call.
func RecordEmbedRequest(backend, model string, duration time.Duration) {
	EmbedRequestDuration.WithLabelValues(backend, model).Observe(duration.Seconds())
}

// RecordQuery records one orchestrator query.
func RecordQuery(operation, source string, duration time.Duration) {
	QueryDuration.WithLabelValues(operation, source).Observe(duration.Seconds())
}

// RecordFallback records a query answered from popularity data.
func RecordFallback(reason string) {
	QueryFallbacks.WithLabelValues(reason).Inc()
}

// RecordAPIRequest records one HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
