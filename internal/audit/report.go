// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package audit

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// maxReportSamples caps the record samples included in a report.
const maxReportSamples = 10

// Report summarizes one batch run.
type Report struct {
	RunID             string            `json:"run_id"`
	ProcessingSummary ProcessingSummary `json:"processing_summary"`
	QualityMetrics    json.RawMessage   `json:"quality_metrics,omitempty"`
	ErrorSummary      IssueSummary      `json:"error_summary"`
	SkipSummary       IssueSummary      `json:"skip_summary"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// ProcessingSummary holds the run's headline counts.
type ProcessingSummary struct {
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	ProcessingSeconds float64   `json:"processing_time_seconds"`
	RecordsProcessed  int       `json:"total_records_processed"`
	RecordsSkipped    int       `json:"total_records_skipped"`
	RecordsErrors     int       `json:"total_records_errors"`
	UniqueOrders      int       `json:"unique_orders"`
	UniqueItems       int       `json:"unique_items"`
	CooccurrencePairs int       `json:"cooccurrence_pairs"`
	Outcome           Outcome   `json:"outcome"`
	PublishedVariants int       `json:"published_variants"`
}

// IssueSummary groups skipped or failed records by reason.
type IssueSummary struct {
	Total   int            `json:"total"`
	Reasons map[string]int `json:"reasons"`
	Samples []IssueSample  `json:"samples"`
}

// IssueSample is one skipped or failed record.
type IssueSample struct {
	Line      int       `json:"line_number,omitempty"`
	Record    []string  `json:"record,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// qualityCounts picks the counts the report needs out of the
// ingest.quality details.
type qualityCounts struct {
	RowsAccepted int `json:"cleaned_record_count"`
	RowsRejected int `json:"records_removed"`
	UniqueOrders int `json:"unique_orders"`
	UniqueItems  int `json:"unique_items"`
}

// BuildReport assembles the report for runID from store.
func BuildReport(ctx context.Context, store Store, runID string) (*Report, error) {
	if runID == "" {
		return nil, errors.New("build report: empty run id")
	}
	events, err := store.Query(ctx, QueryFilter{RunID: runID})
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("build report: no events for run %s", runID)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	r := &Report{
		RunID:        runID,
		ErrorSummary: IssueSummary{Reasons: map[string]int{}, Samples: []IssueSample{}},
		SkipSummary:  IssueSummary{Reasons: map[string]int{}, Samples: []IssueSample{}},
		GeneratedAt:  time.Now().UTC(),
	}
	ps := &r.ProcessingSummary
	ps.StartTime = events[0].Timestamp
	ps.EndTime = events[len(events)-1].Timestamp

	haveQuality := false
	for i := range events {
		e := &events[i]
		switch e.Type {
		case EventTypeIngestStarted:
			ps.StartTime = e.Timestamp
		case EventTypeIngestRowRejected:
			var rej RowRejection
			if err := json.Unmarshal(e.Details, &rej); err != nil {
				rej.Reason = e.Message
			}
			r.SkipSummary.add(IssueSample{Line: rej.Line, Record: rej.Record, Reason: rej.Reason, Timestamp: e.Timestamp})
		case EventTypeIngestQuality:
			r.QualityMetrics = e.Details
			var q qualityCounts
			if err := json.Unmarshal(e.Details, &q); err == nil {
				haveQuality = true
				ps.RecordsProcessed = q.RowsAccepted
				ps.RecordsSkipped = q.RowsRejected
				ps.UniqueOrders = q.UniqueOrders
				ps.UniqueItems = q.UniqueItems
			}
		case EventTypeBatchCooccurrence:
			var c CooccurrenceStats
			if err := json.Unmarshal(e.Details, &c); err == nil {
				ps.CooccurrencePairs = c.Pairs
				if ps.UniqueItems == 0 {
					ps.UniqueItems = c.Items
				}
			}
		case EventTypeBatchPublished:
			if e.Outcome == OutcomeSuccess {
				ps.PublishedVariants++
			}
		case EventTypeBatchCompleted:
			ps.EndTime = e.Timestamp
			ps.Outcome = OutcomeSuccess
		case EventTypeBatchFailed:
			ps.EndTime = e.Timestamp
			ps.Outcome = OutcomeFailure
		}
		if e.Outcome == OutcomeFailure {
			r.ErrorSummary.add(IssueSample{Reason: e.Message, Timestamp: e.Timestamp})
		}
	}

	// Rejection details may be capped; the quality counts are complete.
	if haveQuality {
		r.SkipSummary.Total = ps.RecordsSkipped
	} else {
		ps.RecordsSkipped = r.SkipSummary.Total
	}
	ps.RecordsErrors = r.ErrorSummary.Total
	ps.ProcessingSeconds = ps.EndTime.Sub(ps.StartTime).Seconds()
	return r, nil
}

func (s *IssueSummary) add(sample IssueSample) {
	s.Total++
	s.Reasons[sample.Reason]++
	if len(s.Samples) < maxReportSamples {
		s.Samples = append(s.Samples, sample)
	}
}

// WriteReport builds the report for runID and writes it as indented JSON
// to path, creating parent directories.
func WriteReport(ctx context.Context, store Store, path, runID string) (*Report, error) {
	r, err := BuildReport(ctx, store, runID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil { //nolint:gosec // 0750 is acceptable for report output
			return nil, fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}
	return r, nil
}

// ReportPath returns path with "{run}" replaced by runID.
func ReportPath(path, runID string) string {
	return strings.ReplaceAll(path, "{run}", runID)
}

// WriteReport flushes pending events and writes the report for runID.
func (l *Logger) WriteReport(ctx context.Context, path, runID string) (*Report, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush audit events: %w", err)
	}
	return WriteReport(ctx, l.store, path, runID)
}
