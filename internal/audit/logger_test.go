// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/basketrec/internal/logging"
)

func newTestLogger(t *testing.T, store Store, cfg *Config) *Logger {
	t.Helper()
	l := NewLogger(store, cfg)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func flush(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestLogger_Record(t *testing.T) {
	store := NewMemoryStore(100)
	logger := newTestLogger(t, store, DefaultConfig())

	ctx := logging.ContextWithRunID(context.Background(), "run-1")
	ctx = logging.ContextWithCorrelationID(ctx, "corr-1")
	logger.Record(ctx, EventTypeBatchCooccurrence, SeverityInfo, OutcomeSuccess, "cooccur",
		"Co-occurrence matrix built", CooccurrenceStats{Items: 3, Pairs: 3, MaxCount: 2})
	flush(t, logger)

	events, err := store.Query(context.Background(), QueryFilter{})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	e := events[0]
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Errorf("ID and Timestamp should be generated, got %q %v", e.ID, e.Timestamp)
	}
	if e.RunID != "run-1" || e.CorrelationID != "corr-1" {
		t.Errorf("RunID = %q, CorrelationID = %q", e.RunID, e.CorrelationID)
	}

	var stats CooccurrenceStats
	if err := json.Unmarshal(e.Details, &stats); err != nil {
		t.Fatalf("details: %v", err)
	}
	if stats.Pairs != 3 || stats.MaxCount != 2 {
		t.Errorf("details = %+v", stats)
	}
}

func TestLogger_RowRejected(t *testing.T) {
	store := NewMemoryStore(100)
	logger := newTestLogger(t, store, DefaultConfig())

	ctx := logging.ContextWithRunID(context.Background(), "run-1")
	logger.RowRejected(ctx, "orders.csv", 4, "missing_item_name", []string{"7", ""})
	flush(t, logger)

	events, _ := store.Query(context.Background(), QueryFilter{Types: []EventType{EventTypeIngestRowRejected}})
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Outcome != OutcomeSkipped || events[0].Severity != SeverityWarning {
		t.Errorf("event = %+v", events[0])
	}
	var rej RowRejection
	if err := json.Unmarshal(events[0].Details, &rej); err != nil {
		t.Fatalf("details: %v", err)
	}
	if rej.Line != 4 || rej.Reason != "missing_item_name" || len(rej.Record) != 2 {
		t.Errorf("rejection = %+v", rej)
	}
}

func TestLogger_Filtering(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		events []Severity
		want   int
	}{
		{
			name:   "disabled logs nothing",
			config: &Config{Enabled: false, BufferSize: 10},
			events: []Severity{SeverityInfo, SeverityError},
			want:   0,
		},
		{
			name:   "warning and above",
			config: &Config{Enabled: true, LogLevel: SeverityWarning, BufferSize: 10},
			events: []Severity{SeverityInfo, SeverityWarning, SeverityCritical},
			want:   2,
		},
		{
			name:   "debug excluded by default",
			config: &Config{Enabled: true, LogLevel: SeverityDebug, BufferSize: 10},
			events: []Severity{SeverityDebug, SeverityInfo},
			want:   1,
		},
		{
			name:   "debug included",
			config: &Config{Enabled: true, LogLevel: SeverityDebug, IncludeDebug: true, BufferSize: 10},
			events: []Severity{SeverityDebug, SeverityInfo},
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore(100)
			logger := newTestLogger(t, store, tt.config)
			for _, sev := range tt.events {
				logger.Log(&Event{Type: EventTypeBatchEmbedding, Severity: sev})
			}
			flush(t, logger)

			if store.Len() != tt.want {
				t.Errorf("stored %d events, want %d", store.Len(), tt.want)
			}
		})
	}
}

func TestLogger_CloseDrainsBuffer(t *testing.T) {
	store := NewMemoryStore(1000)
	logger := NewLogger(store, &Config{Enabled: true, LogLevel: SeverityInfo, BufferSize: 500})

	for i := 0; i < 200; i++ {
		logger.Log(&Event{Type: EventTypeIngestRowRejected, Severity: SeverityWarning})
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	if store.Len() != 200 {
		t.Errorf("stored %d events after Close, want 200", store.Len())
	}
	if err := logger.Flush(context.Background()); !errors.Is(err, ErrLoggerClosed) {
		t.Errorf("Flush() after Close = %v, want ErrLoggerClosed", err)
	}

	logger.Log(&Event{Type: EventTypeBatchFailed, Severity: SeverityError})
	if store.Len() != 200 {
		t.Error("events logged after Close should be ignored")
	}
}

// blockingStore blocks every Save until release is closed.
type blockingStore struct {
	*MemoryStore
	release chan struct{}
}

func (s *blockingStore) Save(ctx context.Context, event *Event) error {
	<-s.release
	return s.MemoryStore.Save(ctx, event)
}

func TestLogger_BufferFullDrops(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(100), release: make(chan struct{})}
	logger := NewLogger(store, &Config{Enabled: true, LogLevel: SeverityInfo, BufferSize: 2})

	// One event is held by the writer, two fill the buffer, the rest drop.
	for i := 0; i < 10; i++ {
		logger.Log(&Event{Type: EventTypeBatchEmbedding, Severity: SeverityInfo})
	}
	if logger.Dropped() < 7 {
		t.Errorf("Dropped() = %d, want at least 7", logger.Dropped())
	}

	close(store.release)
	_ = logger.Close()
	if got := int64(store.Len()) + logger.Dropped(); got != 10 {
		t.Errorf("stored + dropped = %d, want 10", got)
	}
}

func TestLogger_ConcurrentLog(t *testing.T) {
	store := NewMemoryStore(10000)
	logger := newTestLogger(t, store, &Config{Enabled: true, LogLevel: SeverityInfo, BufferSize: 5000})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				logger.Log(&Event{Type: EventTypeIngestRowRejected, Severity: SeverityWarning})
			}
		}()
	}
	wg.Wait()
	flush(t, logger)

	if store.Len() != 800 {
		t.Errorf("stored %d events, want 800", store.Len())
	}
}

func TestLogger_SetEnabled(t *testing.T) {
	store := NewMemoryStore(100)
	logger := newTestLogger(t, store, DefaultConfig())

	logger.SetEnabled(false)
	if logger.Enabled() {
		t.Fatal("Enabled() = true after SetEnabled(false)")
	}
	logger.Log(&Event{Type: EventTypeBatchCompleted, Severity: SeverityInfo})
	flush(t, logger)
	if store.Len() != 0 {
		t.Errorf("stored %d events while disabled", store.Len())
	}
}

func TestLogger_Cleanup(t *testing.T) {
	store := NewMemoryStore(100)
	cfg := DefaultConfig()
	cfg.RetentionDays = 7
	logger := newTestLogger(t, store, cfg)

	ctx := context.Background()
	old := &Event{ID: "old", Timestamp: time.Now().AddDate(0, 0, -30), Type: EventTypeBatchCompleted, Severity: SeverityInfo}
	recent := &Event{ID: "recent", Timestamp: time.Now(), Type: EventTypeBatchCompleted, Severity: SeverityInfo}
	for _, e := range []*Event{old, recent} {
		if err := store.Save(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := logger.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if _, err := store.Get(ctx, "recent"); err != nil {
		t.Errorf("recent event should survive: %v", err)
	}
	if logger.CleanupInterval() != 24*time.Hour {
		t.Errorf("CleanupInterval() = %v, want 24h", logger.CleanupInterval())
	}

	cfg2 := DefaultConfig()
	cfg2.RetentionDays = 0
	keepAll := newTestLogger(t, store, cfg2)
	if n, err := keepAll.Cleanup(ctx); n != 0 || err != nil {
		t.Errorf("Cleanup() with retention disabled = %d, %v", n, err)
	}
}
