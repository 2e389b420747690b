// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package ingest turns raw (order_id, item_name) rows into the order index
// and item frequencies used by the batch pipeline.
//
// Bad rows never abort a load. Each one is rejected with its line number
// and a reason, and shows up in the QualitySummary.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// RawRow is one row as read from a source.
type RawRow struct {
	Line     int
	OrderID  string
	ItemName string

	// Record is the raw field list, kept for the audit trail.
	Record []string

	// Err is set when the source could not parse the row.
	Err error
}

// Source yields raw rows in file order.
type Source interface {
	// Name identifies the source in logs and audit events.
	Name() string

	// Rows calls fn for every row. Returning an error from fn stops the scan.
	Rows(ctx context.Context, fn func(RawRow) error) error
}

// Record is one accepted row. Line is 0 when the source cannot tell.
type Record struct {
	Line     int
	OrderID  string
	ItemName string
}

// QualitySummary describes one ingestion pass.
type QualitySummary struct {
	Source           string         `json:"source"`
	RowsIn           int            `json:"original_record_count"`
	RowsAccepted     int            `json:"cleaned_record_count"`
	RowsRejected     int            `json:"records_removed"`
	RejectedByReason map[string]int `json:"rejected_by_reason"`
	UniqueOrders     int            `json:"unique_orders"`
	UniqueItems      int            `json:"unique_items"`
	AvgOrderSize     float64        `json:"avg_order_size"`
	MaxOrderSize     int            `json:"max_order_size"`
	AvgItemFrequency float64        `json:"avg_item_frequency"`
	MaxItemFrequency int            `json:"max_item_frequency"`
	Duration         time.Duration  `json:"duration_ns"`
}

// Result is the output of one ingestion pass.
type Result struct {
	Records   []Record
	Frequency map[string]int
	Orders    *recommend.OrderIndex
	Rejected  []*recommend.IngestionError
	Summary   QualitySummary
}

// TopItems returns up to n items by frequency descending, ties by item id.
// n <= 0 returns every item.
func (r *Result) TopItems(n int) []recommend.PopularItem {
	out := make([]recommend.PopularItem, 0, len(r.Frequency))
	for item, f := range r.Frequency {
		out = append(out, recommend.PopularItem{Item: item, Frequency: f})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Item < out[j].Item
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Ingester validates rows and accumulates the order index.
type Ingester struct {
	logger zerolog.Logger

	// maxRejections caps the rejection details kept in a Result. Counts
	// in the summary are always complete.
	maxRejections int
}

// NewIngester creates an ingester. maxRejections <= 0 keeps every rejection.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewIngester(maxRejections int, logger zerolog.Logger) *Ingester {
	return &Ingester{
		logger:        logger.With().Str("component", "ingest").Logger(),
		maxRejections: maxRejections,
	}
}

// Ingest reads every row of src.
func (in *Ingester) Ingest(ctx context.Context, src Source) (*Result, error) {
	start := time.Now()
	acc := newAccumulator(src.Name(), in.maxRejections)

	n := 0
	err := src.Rows(ctx, func(row RawRow) error {
		n++
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		acc.add(row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", src.Name(), err)
	}

	res := acc.result(time.Since(start))
	metrics.RecordIngest(res.Summary.RowsAccepted, res.Summary.RejectedByReason)
	in.logger.Info().
		Str("source", src.Name()).
		Int("rows_in", res.Summary.RowsIn).
		Int("accepted", res.Summary.RowsAccepted).
		Int("rejected", res.Summary.RowsRejected).
		Int("orders", res.Summary.UniqueOrders).
		Int("items", res.Summary.UniqueItems).
		Float64("avg_order_size", res.Summary.AvgOrderSize).
		Dur("duration", res.Summary.Duration).
		Msg("Ingestion complete")
	return res, nil
}

// IngestRows ingests rows already in memory.
func (in *Ingester) IngestRows(ctx context.Context, rows []RawRow) (*Result, error) {
	return in.Ingest(ctx, SliceSource(rows))
}

const cancelCheckInterval = 4096

type accumulator struct {
	source        string
	maxRejections int
	rowsIn        int
	records       []Record
	frequency     map[string]int
	orders        *recommend.OrderIndex
	rejected      []*recommend.IngestionError
	byReason      map[string]int
}

func newAccumulator(source string, maxRejections int) *accumulator {
	return &accumulator{
		source:        source,
		maxRejections: maxRejections,
		frequency:     make(map[string]int),
		orders:        recommend.NewOrderIndex(),
		byReason:      make(map[string]int),
	}
}

func (a *accumulator) add(row RawRow) {
	a.rowsIn++

	if row.Err != nil {
		reason := recommend.ReasonMalformedRow
		if errors.Is(row.Err, ErrTooManyFields) {
			reason = recommend.ReasonTooManyFields
		}
		a.reject(row, reason, row.Err)
		return
	}
	orderID := strings.TrimSpace(row.OrderID)
	item := strings.TrimSpace(row.ItemName)
	switch {
	case orderID == "":
		a.reject(row, recommend.ReasonMissingOrderID, nil)
		return
	case item == "":
		a.reject(row, recommend.ReasonMissingItemName, nil)
		return
	}

	a.records = append(a.records, Record{Line: row.Line, OrderID: orderID, ItemName: item})
	a.frequency[item]++
	a.orders.Add(orderID, item)
}

func (a *accumulator) reject(row RawRow, reason string, err error) {
	a.byReason[reason]++
	if a.maxRejections > 0 && len(a.rejected) >= a.maxRejections {
		return
	}
	a.rejected = append(a.rejected, &recommend.IngestionError{
		Line:   row.Line,
		Reason: reason,
		Record: row.Record,
		Err:    err,
	})
}

func (a *accumulator) result(elapsed time.Duration) *Result {
	s := QualitySummary{
		Source:           a.source,
		RowsIn:           a.rowsIn,
		RowsAccepted:     len(a.records),
		RowsRejected:     a.rowsIn - len(a.records),
		RejectedByReason: a.byReason,
		UniqueOrders:     a.orders.Len(),
		UniqueItems:      len(a.frequency),
		Duration:         elapsed,
	}
	if s.UniqueOrders > 0 {
		s.AvgOrderSize = float64(s.RowsAccepted) / float64(s.UniqueOrders)
	}
	for _, o := range a.orders.Orders() {
		if len(o.Items) > s.MaxOrderSize {
			s.MaxOrderSize = len(o.Items)
		}
	}
	for _, f := range a.frequency {
		if f > s.MaxItemFrequency {
			s.MaxItemFrequency = f
		}
	}
	if s.UniqueItems > 0 {
		s.AvgItemFrequency = float64(s.RowsAccepted) / float64(s.UniqueItems)
	}

	return &Result{
		Records:   a.records,
		Frequency: a.frequency,
		Orders:    a.orders,
		Rejected:  a.rejected,
		Summary:   s,
	}
}

// SliceSource serves rows from memory. Rows with Line == 0 are numbered
// from 2, after an implied header.
type SliceSource []RawRow

// Name implements Source.
func (s SliceSource) Name() string { return "memory" }

// Rows implements Source.
func (s SliceSource) Rows(_ context.Context, fn func(RawRow) error) error {
	for i, row := range s {
		if row.Line == 0 {
			row.Line = i + 2
		}
		if row.Record == nil && row.Err == nil {
			row.Record = []string{row.OrderID, row.ItemName}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}
