// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/recommend"
)

func ingestCSV(t *testing.T, data string) *Result {
	t.Helper()
	res, err := NewIngester(0, zerolog.Nop()).Ingest(context.Background(), NewCSVReaderSource("test.csv", strings.NewReader(data)))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return res
}

func TestIngestEndToEndFrequencies(t *testing.T) {
	res := ingestCSV(t, "order_id,item_name\no1,A\no1,B\no2,A\no2,C\no3,A\no3,B\no3,C\n")

	want := map[string]int{"A": 3, "B": 2, "C": 2}
	for item, f := range want {
		if res.Frequency[item] != f {
			t.Errorf("frequency[%s] = %d, want %d", item, res.Frequency[item], f)
		}
	}
	if res.Summary.UniqueOrders != 3 || res.Summary.UniqueItems != 3 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Summary.AvgOrderSize != 7.0/3.0 {
		t.Errorf("avg order size = %v", res.Summary.AvgOrderSize)
	}
	if res.Summary.MaxOrderSize != 3 || res.Summary.MaxItemFrequency != 3 {
		t.Errorf("maxima = %+v", res.Summary)
	}
	top := res.TopItems(1)
	if len(top) != 1 || top[0].Item != "A" || top[0].Frequency != 3 {
		t.Errorf("TopItems(1) = %+v", top)
	}
	o3, ok := res.Orders.Get("o3")
	if !ok || len(o3.Items) != 3 {
		t.Errorf("o3 = %+v", o3)
	}
}

func TestIngestRejectsBadRows(t *testing.T) {
	data := strings.Join([]string{
		"order_id,item_name",
		"o1,  Milk  ",
		",Bread",
		"o2,   ",
		"o3",
		"o4,Eggs",
	}, "\n") + "\n"

	res := ingestCSV(t, data)

	if res.Summary.RowsIn != 5 || res.Summary.RowsAccepted != 2 || res.Summary.RowsRejected != 3 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if res.Frequency["Milk"] != 1 {
		t.Errorf("item names not trimmed: %v", res.Frequency)
	}

	wantReasons := []struct {
		line   int
		reason string
	}{
		{3, recommend.ReasonMissingOrderID},
		{4, recommend.ReasonMissingItemName},
		{5, recommend.ReasonMalformedRow},
	}
	if len(res.Rejected) != len(wantReasons) {
		t.Fatalf("rejected = %v", res.Rejected)
	}
	for i, w := range wantReasons {
		got := res.Rejected[i]
		if got.Line != w.line || got.Reason != w.reason {
			t.Errorf("rejected[%d] = line %d %s, want line %d %s", i, got.Line, got.Reason, w.line, w.reason)
		}
	}
	if res.Summary.RejectedByReason[recommend.ReasonMissingItemName] != 1 {
		t.Errorf("by reason = %v", res.Summary.RejectedByReason)
	}
}

func TestCSVQuotingAndEscapes(t *testing.T) {
	data := "item_name,order_id\n" +
		"\"Bag, Paper\",o1\n" +
		"\"12\\\" Pizza\",o1\n" +
		"\"Multi\nLine\",o2\n" +
		"Plain,o2\n"

	res := ingestCSV(t, data)

	for _, item := range []string{"Bag, Paper", `12" Pizza`, "Multi\nLine", "Plain"} {
		if res.Frequency[item] != 1 {
			t.Errorf("item %q missing, frequencies: %v", item, res.Frequency)
		}
	}
	if res.Summary.RowsRejected != 0 {
		t.Errorf("rejected = %v", res.Rejected)
	}
	if res.Records[3].Line != 6 {
		t.Errorf("line of last record = %d, want 6", res.Records[3].Line)
	}
}

func TestCSVUnquotedEscapes(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		items    []string
		rejected map[string]int
	}{
		{
			name:  "escaped delimiter stays in field",
			data:  "order_id,item_name\no1,Widget\\, large\n",
			items: []string{"Widget, large"},
		},
		{
			name:  "escaped quote is literal",
			data:  "order_id,item_name\no1,12\\\" pipe\n",
			items: []string{`12" pipe`},
		},
		{
			name:  "escaped backslash",
			data:  "order_id,item_name\no1,a\\\\b\n",
			items: []string{`a\b`},
		},
		{
			name:     "extra fields rejected",
			data:     "order_id,item_name\no1,Widget, large\no2,Bolt\n",
			items:    []string{"Bolt"},
			rejected: map[string]int{recommend.ReasonTooManyFields: 1},
		},
		{
			name:     "unterminated quote rejected",
			data:     "order_id,item_name\no1,Bolt\no2,\"open\n",
			items:    []string{"Bolt"},
			rejected: map[string]int{recommend.ReasonMalformedRow: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ingestCSV(t, tt.data)
			if len(res.Frequency) != len(tt.items) {
				t.Fatalf("frequencies = %q, want items %q", res.Frequency, tt.items)
			}
			for _, item := range tt.items {
				if res.Frequency[item] != 1 {
					t.Errorf("item %q missing, frequencies: %q", item, res.Frequency)
				}
			}
			if res.Summary.RowsRejected != len(tt.rejected) {
				t.Errorf("rejected = %d, want %d", res.Summary.RowsRejected, len(tt.rejected))
			}
			for reason, n := range tt.rejected {
				if res.Summary.RejectedByReason[reason] != n {
					t.Errorf("by reason = %v, want %s=%d", res.Summary.RejectedByReason, reason, n)
				}
			}
		})
	}
}

func TestCSVMissingHeaderColumns(t *testing.T) {
	_, err := NewIngester(0, zerolog.Nop()).Ingest(context.Background(),
		NewCSVReaderSource("bad.csv", strings.NewReader("order,item\n1,A\n")))
	if err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestCSVEmptyInput(t *testing.T) {
	res := ingestCSV(t, "")
	if res.Summary.RowsIn != 0 || res.Orders.Len() != 0 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestIngestRowsAndRejectionCap(t *testing.T) {
	rows := []RawRow{
		{OrderID: "o1", ItemName: "A"},
		{OrderID: "", ItemName: "B"},
		{OrderID: "", ItemName: "C"},
		{OrderID: "", ItemName: "D"},
	}
	res, err := NewIngester(2, zerolog.Nop()).IngestRows(context.Background(), rows)
	if err != nil {
		t.Fatalf("IngestRows: %v", err)
	}
	if len(res.Rejected) != 2 {
		t.Errorf("kept %d rejections, want 2", len(res.Rejected))
	}
	if res.Summary.RowsRejected != 3 {
		t.Errorf("RowsRejected = %d, want 3", res.Summary.RowsRejected)
	}
	if res.Rejected[0].Line != 3 {
		t.Errorf("first rejection line = %d, want 3", res.Rejected[0].Line)
	}
}

func TestIngestCancelled(t *testing.T) {
	rows := make([]RawRow, cancelCheckInterval+1)
	for i := range rows {
		rows[i] = RawRow{OrderID: "o", ItemName: "A"}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewIngester(0, zerolog.Nop()).IngestRows(ctx, rows); err == nil {
		t.Error("expected cancellation error")
	}
}

func TestCSVFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte("order_id,item_name\n1,A\n1,B\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	src := NewCSVFileSource(path)
	for i := 0; i < 2; i++ {
		res, err := NewIngester(0, zerolog.Nop()).Ingest(context.Background(), src)
		if err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		if res.Summary.RowsAccepted != 2 {
			t.Errorf("pass %d accepted %d rows", i, res.Summary.RowsAccepted)
		}
	}

	if _, err := NewIngester(0, zerolog.Nop()).Ingest(context.Background(), NewCSVFileSource(path+".missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
