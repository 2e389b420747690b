// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// EventType categorizes audit events.
type EventType string

const (
	// Ingestion events
	EventTypeIngestStarted     EventType = "ingest.started"
	EventTypeIngestRowRejected EventType = "ingest.row_rejected"
	EventTypeIngestQuality     EventType = "ingest.quality"

	// Batch events
	EventTypeBatchCooccurrence EventType = "batch.cooccurrence"
	EventTypeBatchEmbedding    EventType = "batch.embedding"
	EventTypeBatchPublished    EventType = "batch.published"
	EventTypeBatchArchived     EventType = "batch.archived"
	EventTypeBatchRestored     EventType = "batch.restored"
	EventTypeBatchCompleted    EventType = "batch.completed"
	EventTypeBatchFailed       EventType = "batch.failed"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Outcome indicates whether a step succeeded or failed.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeSkipped Outcome = "skipped"
)

// Event is one data-processing audit record.
type Event struct {
	// ID is a unique identifier for this event.
	ID string `json:"id"`

	// Timestamp when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	Type     EventType `json:"type"`
	Severity Severity  `json:"severity"`
	Outcome  Outcome   `json:"outcome"`

	// RunID links every event of one batch run.
	RunID string `json:"run_id"`

	// Source names the input or component the event concerns.
	Source string `json:"source,omitempty"`

	Message string `json:"message"`

	// Details contains event-specific fields.
	Details json.RawMessage `json:"details,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
}

// RowRejection is the Details payload of an ingest.row_rejected event.
type RowRejection struct {
	Line   int      `json:"line_number,omitempty"`
	Reason string   `json:"reason"`
	Record []string `json:"record,omitempty"`
}

// CooccurrenceStats is the Details payload of a batch.cooccurrence event.
type CooccurrenceStats struct {
	Items    int `json:"unique_items"`
	Pairs    int `json:"cooccurrence_pairs"`
	MaxCount int `json:"max_cooccurrence"`
}

// Store defines the interface for audit event persistence.
type Store interface {
	// Save persists an audit event.
	Save(ctx context.Context, event *Event) error

	// Get retrieves an event by ID.
	Get(ctx context.Context, id string) (*Event, error)

	// Query retrieves events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Count returns the number of events matching the filter.
	Count(ctx context.Context, filter QueryFilter) (int64, error)

	// Delete removes events older than the retention period.
	Delete(ctx context.Context, olderThan time.Time) (int64, error)
}

// QueryFilter defines filtering options for audit queries.
type QueryFilter struct {
	Types      []EventType `json:"types,omitempty"`
	Severities []Severity  `json:"severities,omitempty"`
	Outcomes   []Outcome   `json:"outcomes,omitempty"`

	RunID  string `json:"run_id,omitempty"`
	Source string `json:"source,omitempty"`

	// StartTime is the beginning of the time range.
	StartTime *time.Time `json:"start_time,omitempty"`

	// EndTime is the end of the time range.
	EndTime *time.Time `json:"end_time,omitempty"`

	// SearchText matches the message case-insensitively.
	SearchText string `json:"search_text,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset for pagination.
	Offset int `json:"offset,omitempty"`

	// OrderDesc returns newest events first.
	OrderDesc bool `json:"order_desc,omitempty"`
}

// DefaultQueryFilter returns a sensible default filter.
func DefaultQueryFilter() QueryFilter {
	return QueryFilter{
		Limit:     100,
		OrderDesc: true,
	}
}
