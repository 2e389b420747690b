// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package audit

import (
	"context"
	"testing"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seedEvents() []Event {
	return []Event{
		{ID: "1", Timestamp: baseTime, Type: EventTypeIngestStarted, Severity: SeverityInfo, Outcome: OutcomeSuccess, RunID: "r1", Source: "orders.csv", Message: "Ingestion started"},
		{ID: "2", Timestamp: baseTime.Add(time.Second), Type: EventTypeIngestRowRejected, Severity: SeverityWarning, Outcome: OutcomeSkipped, RunID: "r1", Source: "orders.csv", Message: "Row skipped: missing_item_name"},
		{ID: "3", Timestamp: baseTime.Add(2 * time.Second), Type: EventTypeBatchCompleted, Severity: SeverityInfo, Outcome: OutcomeSuccess, RunID: "r1", Message: "Batch completed"},
		{ID: "4", Timestamp: baseTime.Add(time.Hour), Type: EventTypeBatchFailed, Severity: SeverityError, Outcome: OutcomeFailure, RunID: "r2", Message: "Encoding failed"},
	}
}

func seedStore(t *testing.T, s Store) {
	t.Helper()
	for _, e := range seedEvents() {
		e := e
		if err := s.Save(context.Background(), &e); err != nil {
			t.Fatalf("Save(%s) error = %v", e.ID, err)
		}
	}
}

func ids(events []Event) []string {
	out := make([]string, len(events))
	for i := range events {
		out[i] = events[i].ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type filterCase struct {
	name   string
	filter QueryFilter
	want   []string
}

func filterCases() []filterCase {
	start := baseTime.Add(500 * time.Millisecond)
	end := baseTime.Add(90 * time.Minute)
	return []filterCase{
		{name: "all ascending", filter: QueryFilter{}, want: []string{"1", "2", "3", "4"}},
		{name: "all descending", filter: QueryFilter{OrderDesc: true}, want: []string{"4", "3", "2", "1"}},
		{name: "by run", filter: QueryFilter{RunID: "r2"}, want: []string{"4"}},
		{name: "by type", filter: QueryFilter{Types: []EventType{EventTypeIngestStarted, EventTypeBatchCompleted}}, want: []string{"1", "3"}},
		{name: "by severity", filter: QueryFilter{Severities: []Severity{SeverityWarning}}, want: []string{"2"}},
		{name: "by outcome", filter: QueryFilter{Outcomes: []Outcome{OutcomeFailure}}, want: []string{"4"}},
		{name: "by source", filter: QueryFilter{Source: "orders.csv"}, want: []string{"1", "2"}},
		{name: "time range", filter: QueryFilter{StartTime: &start, EndTime: &end}, want: []string{"2", "3", "4"}},
		{name: "search text", filter: QueryFilter{SearchText: "MISSING"}, want: []string{"2"}},
		{name: "limit and offset", filter: QueryFilter{Limit: 2, Offset: 1}, want: []string{"2", "3"}},
	}
}

func TestMemoryStore_Query(t *testing.T) {
	store := NewMemoryStore(100)
	seedStore(t, store)

	for _, tt := range filterCases() {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if !equalIDs(ids(got), tt.want) {
				t.Errorf("Query() = %v, want %v", ids(got), tt.want)
			}

			count, err := store.Count(context.Background(), QueryFilter{
				Types: tt.filter.Types, Severities: tt.filter.Severities, Outcomes: tt.filter.Outcomes,
				RunID: tt.filter.RunID, Source: tt.filter.Source, StartTime: tt.filter.StartTime,
				EndTime: tt.filter.EndTime, SearchText: tt.filter.SearchText,
			})
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if tt.filter.Limit == 0 && count != int64(len(tt.want)) {
				t.Errorf("Count() = %d, want %d", count, len(tt.want))
			}
		})
	}
}

func TestMemoryStore_GetAndDelete(t *testing.T) {
	store := NewMemoryStore(100)
	seedStore(t, store)
	ctx := context.Background()

	e, err := store.Get(ctx, "3")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Type != EventTypeBatchCompleted {
		t.Errorf("Get() type = %s", e.Type)
	}
	if _, err := store.Get(ctx, "missing"); err == nil {
		t.Error("Get(missing) should fail")
	}

	deleted, err := store.Delete(ctx, baseTime.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted != 3 || store.Len() != 1 {
		t.Errorf("Delete() = %d, remaining %d; want 3, 1", deleted, store.Len())
	}
}

func TestMemoryStore_MaxLen(t *testing.T) {
	store := NewMemoryStore(10)
	for i := 0; i < 25; i++ {
		if err := store.Save(context.Background(), &Event{ID: string(rune('a' + i)), Timestamp: baseTime}); err != nil {
			t.Fatal(err)
		}
	}
	if store.Len() > 10 {
		t.Errorf("Len() = %d, want <= 10", store.Len())
	}

	events, _ := store.Query(context.Background(), QueryFilter{OrderDesc: true, Limit: 1})
	if len(events) != 1 || events[0].ID != "y" {
		t.Errorf("newest event = %v, want y", ids(events))
	}

	store.Clear()
	if store.Len() != 0 {
		t.Errorf("Len() after Clear = %d", store.Len())
	}
}
