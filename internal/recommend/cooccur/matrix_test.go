// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package cooccur

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tomtom215/basketrec/internal/recommend"
)

func indexOf(orders map[string][]string, order []string) *recommend.OrderIndex {
	idx := recommend.NewOrderIndex()
	for _, id := range order {
		for _, it := range orders[id] {
			idx.Add(id, it)
		}
	}
	return idx
}

func TestBuildEndToEndCounts(t *testing.T) {
	idx := indexOf(map[string][]string{
		"o1": {"A", "B"},
		"o2": {"A", "C"},
		"o3": {"A", "B", "C"},
	}, []string{"o1", "o2", "o3"})

	m, err := NewBuilder(2, zerolog.Nop()).Build(context.Background(), idx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		a, b string
		want int
	}{
		{"A", "B", 2},
		{"A", "C", 2},
		{"B", "C", 1},
		{"B", "A", 2},
		{"C", "B", 1},
		{"A", "A", 0},
		{"A", "Z", 0},
	}
	for _, tt := range tests {
		t.Run(tt.a+tt.b, func(t *testing.T) {
			if got := m.Count(tt.a, tt.b); got != tt.want {
				t.Errorf("count(%s,%s) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}

	if m.MaxCount() != 2 {
		t.Errorf("MaxCount() = %d, want 2", m.MaxCount())
	}
	if m.NumPairs() != 3 {
		t.Errorf("NumPairs() = %d, want 3", m.NumPairs())
	}
	vocab := m.Vocabulary()
	if len(vocab) != 3 || vocab[0] != "A" || vocab[1] != "B" || vocab[2] != "C" {
		t.Errorf("Vocabulary() = %v", vocab)
	}
}

func TestBuildDuplicatesAndSelfPairs(t *testing.T) {
	idx := indexOf(map[string][]string{
		"o1": {"A", "A", "B"},
		"o2": {"C", "C"},
		"o3": {"D"},
	}, []string{"o1", "o2", "o3"})

	m, err := NewBuilder(1, zerolog.Nop()).Build(context.Background(), idx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := m.Count("A", "B"); got != 1 {
		t.Errorf("count(A,B) = %d, want 1", got)
	}
	if got := m.Count("A", "A"); got != 0 {
		t.Errorf("count(A,A) = %d, want 0", got)
	}
	for _, p := range m.Pairs() {
		if p.A == p.B {
			t.Errorf("self pair materialized: %+v", p)
		}
	}
	if _, ok := m.Index("C"); ok {
		t.Error("C has no partner but is in the vocabulary")
	}
	if _, ok := m.Index("D"); ok {
		t.Error("D has no partner but is in the vocabulary")
	}
}

func TestBuildSymmetricAndWorkerIndependent(t *testing.T) {
	orders := make(map[string][]string)
	var ids []string
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("o%03d", i)
		ids = append(ids, id)
		for j := 0; j < 1+i%5; j++ {
			orders[id] = append(orders[id], fmt.Sprintf("item-%d", (i*7+j*3)%23))
		}
	}
	idx := indexOf(orders, ids)

	ref, err := NewBuilder(1, zerolog.Nop()).Build(context.Background(), idx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, workers := range []int{2, 3, 8, 64} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			m, err := NewBuilder(workers, zerolog.Nop()).Build(context.Background(), idx)
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if fmt.Sprint(m.Vocabulary()) != fmt.Sprint(ref.Vocabulary()) {
				t.Fatal("vocabulary depends on worker count")
			}
			if fmt.Sprint(m.Pairs()) != fmt.Sprint(ref.Pairs()) {
				t.Fatal("pairs depend on worker count")
			}
		})
	}

	for _, a := range ref.Vocabulary() {
		for _, b := range ref.Vocabulary() {
			if ref.Count(a, b) != ref.Count(b, a) {
				t.Fatalf("count(%s,%s) != count(%s,%s)", a, b, b, a)
			}
		}
	}
}

func TestDense(t *testing.T) {
	idx := indexOf(map[string][]string{
		"o1": {"B", "A"},
		"o2": {"A", "B", "C"},
	}, []string{"o1", "o2"})

	m, err := NewBuilder(1, zerolog.Nop()).Build(context.Background(), idx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dense := m.Dense()
	if len(dense) != 3 {
		t.Fatalf("dense has %d rows", len(dense))
	}
	a, _ := m.Index("A")
	b, _ := m.Index("B")
	c, _ := m.Index("C")
	if a != 0 || b != 1 || c != 2 {
		t.Fatalf("indices not lexicographic: A=%d B=%d C=%d", a, b, c)
	}
	if math.Abs(dense[a][b]-math.Log(3)) > 1e-12 {
		t.Errorf("dense[A][B] = %v, want log(3)", dense[a][b])
	}
	if math.Abs(dense[b][c]-math.Log(2)) > 1e-12 {
		t.Errorf("dense[B][C] = %v, want log(2)", dense[b][c])
	}
	for i := range dense {
		if dense[i][i] != 0 {
			t.Errorf("diagonal[%d] = %v", i, dense[i][i])
		}
		for j := range dense {
			if dense[i][j] != dense[j][i] {
				t.Errorf("dense not symmetric at %d,%d", i, j)
			}
		}
	}
}

func TestTopPartners(t *testing.T) {
	idx := indexOf(map[string][]string{
		"o1": {"A", "B"},
		"o2": {"A", "C"},
		"o3": {"A", "B", "C", "D"},
	}, []string{"o1", "o2", "o3"})
	m, err := NewBuilder(1, zerolog.Nop()).Build(context.Background(), idx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	got := m.TopPartners("A", 2)
	if len(got) != 2 || got[0].Item != "B" || got[1].Item != "C" || got[0].Count != 2 {
		t.Errorf("TopPartners(A,2) = %+v", got)
	}
	all := m.TopPartners("A", 0)
	if len(all) != 3 || all[2].Item != "D" {
		t.Errorf("TopPartners(A,0) = %+v", all)
	}
	if m.TopPartners("Z", 5) != nil {
		t.Error("unknown item has partners")
	}
}

func TestBuildCancelled(t *testing.T) {
	idx := indexOf(map[string][]string{"o1": {"A", "B"}}, []string{"o1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewBuilder(1, zerolog.Nop()).Build(ctx, idx); err == nil {
		t.Error("expected error from cancelled context")
	}
}

func TestBuildEmpty(t *testing.T) {
	m, err := NewBuilder(4, zerolog.Nop()).Build(context.Background(), recommend.NewOrderIndex())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Len() != 0 || m.NumPairs() != 0 {
		t.Errorf("empty build: len=%d pairs=%d", m.Len(), m.NumPairs())
	}
}
