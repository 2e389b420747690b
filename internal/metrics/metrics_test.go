// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordIngest(t *testing.T) {
	beforeAccepted := testutil.ToFloat64(IngestRows.WithLabelValues("accepted", ""))
	beforeMissing := testutil.ToFloat64(IngestRows.WithLabelValues("rejected", "missing_item_name"))

	RecordIngest(7, map[string]int{"missing_item_name": 2})

	if got := testutil.ToFloat64(IngestRows.WithLabelValues("accepted", "")) - beforeAccepted; got != 7 {
		t.Errorf("accepted delta = %v, want 7", got)
	}
	if got := testutil.ToFloat64(IngestRows.WithLabelValues("rejected", "missing_item_name")) - beforeMissing; got != 2 {
		t.Errorf("rejected delta = %v, want 2", got)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError float64
	}{
		{name: "success", err: nil, wantError: 0},
		{name: "failure", err: errors.New("connection refused"), wantError: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("memory", "scan"))
			RecordStoreOperation("memory", "scan", 3*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(StoreOperationErrors.WithLabelValues("memory", "scan")) - before; got != tt.wantError {
				t.Errorf("error delta = %v, want %v", got, tt.wantError)
			}
		})
	}
}

func TestRecordCircuitBreakerTransition(t *testing.T) {
	tests := []struct {
		to   string
		want float64
	}{
		{"open", 2},
		{"half-open", 1},
		{"closed", 0},
	}
	for _, tt := range tests {
		RecordCircuitBreakerTransition("store-test", "x", tt.to)
		if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("store-test")); got != tt.want {
			t.Errorf("state after %s = %v, want %v", tt.to, got, tt.want)
		}
	}
}

func TestRecordScanCache(t *testing.T) {
	hits := testutil.ToFloat64(ScanCacheHits)
	misses := testutil.ToFloat64(ScanCacheMisses)

	RecordScanCache(true)
	RecordScanCache(false)
	RecordScanCache(false)

	if got := testutil.ToFloat64(ScanCacheHits) - hits; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ScanCacheMisses) - misses; got != 2 {
		t.Errorf("misses delta = %v, want 2", got)
	}
}

func TestRecordQueryObservesHistogram(t *testing.T) {
	RecordQuery("popular", "popularity", 2*time.Millisecond)

	var m dto.Metric
	observer := QueryDuration.WithLabelValues("popular", "popularity")
	if err := observer.(interface{ Write(*dto.Metric) error }).Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if m.GetHistogram().GetSampleCount() == 0 {
		t.Error("histogram has no samples")
	}
}

func TestRecordBatchRun(t *testing.T) {
	before := testutil.ToFloat64(BatchRuns.WithLabelValues("success"))
	RecordBatchRun("success")
	if got := testutil.ToFloat64(BatchRuns.WithLabelValues("success")) - before; got != 1 {
		t.Errorf("runs delta = %v, want 1", got)
	}
	if testutil.ToFloat64(BatchLastSuccess) == 0 {
		t.Error("last success timestamp not set")
	}
}
