// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package cooccur builds the item co-occurrence matrix from an order index.
//
// count(a, b) is the number of orders containing both a and b. Each order
// contributes at most one increment per pair of distinct item names, so
// repeated items and same-name pairs never inflate counts. Counts are
// stored once per unordered pair, which makes the matrix symmetric by
// construction.
//
// The vocabulary is every item with at least one partner, sorted
// lexicographically. It is fixed before accumulation so index assignment
// does not depend on worker scheduling.
package cooccur

import (
	"math"
	"sort"

	"github.com/tomtom215/basketrec/internal/recommend"
)

// Pair is one unordered co-occurrence with A < B.
type Pair struct {
	A     string
	B     string
	Count int
}

// pairKey holds vocabulary indices with a < b.
type pairKey struct {
	a, b int32
}

func makeKey(i, j int) pairKey {
	if i > j {
		i, j = j, i
	}
	return pairKey{a: int32(i), b: int32(j)}
}

// Matrix is a symmetric sparse co-occurrence count matrix.
type Matrix struct {
	vocab  []string
	index  map[string]int
	counts map[pairKey]int

	// neighbours[i] lists partner indices of item i in ascending order.
	neighbours [][]int32
	maxCount   int
}

func newMatrix(vocab []string, counts map[pairKey]int) *Matrix {
	m := &Matrix{
		vocab:      vocab,
		index:      make(map[string]int, len(vocab)),
		counts:     counts,
		neighbours: make([][]int32, len(vocab)),
	}
	for i, v := range vocab {
		m.index[v] = i
	}
	for k, c := range counts {
		m.neighbours[k.a] = append(m.neighbours[k.a], k.b)
		m.neighbours[k.b] = append(m.neighbours[k.b], k.a)
		if c > m.maxCount {
			m.maxCount = c
		}
	}
	for i := range m.neighbours {
		n := m.neighbours[i]
		sort.Slice(n, func(x, y int) bool { return n[x] < n[y] })
	}
	return m
}

// Len returns the vocabulary size.
func (m *Matrix) Len() int {
	return len(m.vocab)
}

// Vocabulary returns the sorted vocabulary. Callers must not modify it.
func (m *Matrix) Vocabulary() []string {
	return m.vocab
}

// Index returns the row of item in the dense matrix.
func (m *Matrix) Index(item string) (int, bool) {
	i, ok := m.index[item]
	return i, ok
}

// Count returns count(a, b). It is always 0 when a == b.
func (m *Matrix) Count(a, b string) int {
	if a == b {
		return 0
	}
	i, ok := m.index[a]
	if !ok {
		return 0
	}
	j, ok := m.index[b]
	if !ok {
		return 0
	}
	return m.counts[makeKey(i, j)]
}

// NumPairs returns the number of distinct unordered pairs.
func (m *Matrix) NumPairs() int {
	return len(m.counts)
}

// MaxCount returns the largest pair count.
func (m *Matrix) MaxCount() int {
	return m.maxCount
}

// Pairs returns every pair ordered by A then B.
func (m *Matrix) Pairs() []Pair {
	out := make([]Pair, 0, len(m.counts))
	for k, c := range m.counts {
		out = append(out, Pair{A: m.vocab[k.a], B: m.vocab[k.b], Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// TopPartners returns up to n partners of item by count descending, with
// ties broken by ascending item id. n <= 0 returns every partner.
func (m *Matrix) TopPartners(item string, n int) []recommend.Partner {
	i, ok := m.index[item]
	if !ok {
		return nil
	}
	out := make([]recommend.Partner, 0, len(m.neighbours[i]))
	for _, j := range m.neighbours[i] {
		out = append(out, recommend.Partner{
			Item:  m.vocab[j],
			Count: m.counts[makeKey(i, int(j))],
		})
	}
	sort.Slice(out, func(x, y int) bool {
		if out[x].Count != out[y].Count {
			return out[x].Count > out[y].Count
		}
		return out[x].Item < out[y].Item
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Dense returns the log(1+count) matrix over the sorted vocabulary. Row
// and column i belong to Vocabulary()[i]. The diagonal is zero.
func (m *Matrix) Dense() [][]float64 {
	n := len(m.vocab)
	backing := make([]float64, n*n)
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = backing[i*n : (i+1)*n]
	}
	for k, c := range m.counts {
		v := math.Log1p(float64(c))
		rows[k.a][k.b] = v
		rows[k.b][k.a] = v
	}
	return rows
}
