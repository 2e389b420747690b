// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/basketrec/internal/logging"
)

// ErrLoggerClosed is returned by Flush after Close.
var ErrLoggerClosed = errors.New("audit logger closed")

// Config holds configuration for the audit logger.
type Config struct {
	// Enabled controls whether audit logging is active.
	Enabled bool `koanf:"enabled"`

	// LogLevel filters events by minimum severity.
	LogLevel Severity `koanf:"log_level"`

	// RetentionDays is how long to keep audit events. 0 keeps them forever.
	RetentionDays int `koanf:"retention_days"`

	// CleanupInterval is how often to run retention cleanup.
	CleanupInterval time.Duration `koanf:"cleanup_interval"`

	// BufferSize is the size of the async write buffer.
	BufferSize int `koanf:"buffer_size"`

	// LogToStdout also writes events to the application log.
	LogToStdout bool `koanf:"log_to_stdout"`

	// IncludeDebug includes debug-level events.
	IncludeDebug bool `koanf:"include_debug"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		LogLevel:        SeverityInfo,
		RetentionDays:   90,
		CleanupInterval: 24 * time.Hour,
		BufferSize:      1000,
	}
}

// queued is either an event or a flush barrier.
type queued struct {
	event *Event
	done  chan struct{}
}

// Logger is the asynchronous audit writer.
type Logger struct {
	config    *Config
	store     Store
	eventChan chan queued
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
	closed    atomic.Bool
	dropped   atomic.Int64
	wg        sync.WaitGroup
}

// NewLogger creates a new audit logger.
func NewLogger(store Store, config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}
	size := config.BufferSize
	if size <= 0 {
		size = DefaultConfig().BufferSize
	}

	l := &Logger{
		config:    config,
		store:     store,
		eventChan: make(chan queued, size),
		stopChan:  make(chan struct{}),
	}

	l.wg.Add(1)
	go l.asyncWriter()

	return l
}

// asyncWriter processes events from the buffer.
func (l *Logger) asyncWriter() {
	defer l.wg.Done()

	for {
		select {
		case <-l.stopChan:
			// Drain remaining events
			for {
				select {
				case q := <-l.eventChan:
					l.handle(q)
				default:
					return
				}
			}
		case q := <-l.eventChan:
			l.handle(q)
		}
	}
}

func (l *Logger) handle(q queued) {
	if q.done != nil {
		close(q.done)
		return
	}
	l.writeEvent(q.event)
}

// writeEvent persists an event to the store.
func (l *Logger) writeEvent(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if config.LogToStdout {
		l.logToStdout(event)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := l.store.Save(ctx, event); err != nil {
			logging.Error().Err(err).Str("event_type", string(event.Type)).Msg("Failed to save audit event")
		}
	}
}

func (l *Logger) logToStdout(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal audit event")
		return
	}
	logging.Info().RawJSON("event", data).Msg("Audit event")
}

// Log records an audit event. It never blocks; events are dropped when
// the buffer is full.
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	config := l.config
	l.mu.RUnlock()

	if !config.Enabled || l.closed.Load() {
		return
	}
	if !l.shouldLog(event.Severity, config) {
		return
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case l.eventChan <- queued{event: event}:
	default:
		l.dropped.Add(1)
		logging.Warn().Str("event_id", event.ID).Str("event_type", string(event.Type)).
			Msg("Audit event buffer full, dropping event")
	}
}

// Record builds and logs an event for the run carried by ctx. details is
// marshalled to JSON; nil leaves Details empty.
func (l *Logger) Record(ctx context.Context, typ EventType, severity Severity, outcome Outcome, source, message string, details interface{}) {
	l.Log(&Event{
		Type:          typ,
		Severity:      severity,
		Outcome:       outcome,
		RunID:         logging.RunIDFromContext(ctx),
		Source:        source,
		Message:       message,
		Details:       mustJSON(details),
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
}

// RowRejected logs one skipped input row.
func (l *Logger) RowRejected(ctx context.Context, source string, line int, reason string, record []string) {
	l.Record(ctx, EventTypeIngestRowRejected, SeverityWarning, OutcomeSkipped, source,
		"Row skipped: "+reason, RowRejection{Line: line, Reason: reason, Record: record})
}

// Flush blocks until every event logged before the call has been written.
func (l *Logger) Flush(ctx context.Context) error {
	if l.closed.Load() {
		return ErrLoggerClosed
	}
	done := make(chan struct{})
	select {
	case l.eventChan <- queued{done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

// shouldLog returns true if the event severity meets the minimum level.
func (l *Logger) shouldLog(severity Severity, config *Config) bool {
	if severity == SeverityDebug && !config.IncludeDebug {
		return false
	}

	severityOrder := map[Severity]int{
		SeverityDebug:    0,
		SeverityInfo:     1,
		SeverityWarning:  2,
		SeverityError:    3,
		SeverityCritical: 4,
	}

	return severityOrder[severity] >= severityOrder[config.LogLevel]
}

// Close drains buffered events and stops the writer. It is safe to call
// more than once.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() {
		l.closed.Store(true)
		close(l.stopChan)
	})
	l.wg.Wait()
	return nil
}

// Cleanup deletes events older than RetentionDays. It is a no-op when
// retention is disabled.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	l.mu.RLock()
	retention := l.config.RetentionDays
	l.mu.RUnlock()

	if retention <= 0 || l.store == nil {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -retention)
	count, err := l.store.Delete(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	if count > 0 {
		logging.Info().Int64("count", count).Msg("Cleaned up old audit events")
	}
	return count, nil
}

// CleanupInterval returns how often Cleanup should run.
func (l *Logger) CleanupInterval() time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.CleanupInterval
}

// Store returns the underlying store.
func (l *Logger) Store() Store {
	return l.store
}

// Query retrieves events matching the filter.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.Query(ctx, filter)
}

// SetEnabled enables or disables audit logging.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config.Enabled = enabled
}

// Enabled returns whether audit logging is enabled.
func (l *Logger) Enabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config.Enabled
}

func mustJSON(v interface{}) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
