// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package cooccur

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/basketrec/internal/recommend"
)

// cancelCheckInterval is how many orders a worker processes between
// context checks.
const cancelCheckInterval = 1024

// Builder accumulates co-occurrence counts across worker shards.
type Builder struct {
	workers int
	logger  zerolog.Logger
}

// NewBuilder creates a builder. workers <= 0 uses GOMAXPROCS.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewBuilder(workers int, logger zerolog.Logger) *Builder {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Builder{
		workers: workers,
		logger:  logger.With().Str("component", "cooccur").Logger(),
	}
}

// Build counts co-occurrences over every order in idx.
func (b *Builder) Build(ctx context.Context, idx *recommend.OrderIndex) (*Matrix, error) {
	start := time.Now()
	orders := idx.Orders()

	vocab := vocabulary(orders)
	index := make(map[string]int, len(vocab))
	for i, v := range vocab {
		index[v] = i
	}

	workers := b.workers
	if workers > len(orders) {
		workers = len(orders)
	}
	if workers < 1 {
		workers = 1
	}
	chunkSize := (len(orders) + workers - 1) / workers

	shards := make([]map[pairKey]int, workers)
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * chunkSize
		hi := lo + chunkSize
		if hi > len(orders) {
			hi = len(orders)
		}
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			local := make(map[pairKey]int)
			members := make([]int, 0, 16)
			for n, order := range orders[lo:hi] {
				if n%cancelCheckInterval == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				members = distinctIndices(order.Items, index, members[:0])
				for x := 0; x < len(members); x++ {
					for y := x + 1; y < len(members); y++ {
						local[makeKey(members[x], members[y])]++
					}
				}
			}
			shards[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build co-occurrence: %w", err)
	}

	counts := make(map[pairKey]int)
	for _, shard := range shards {
		for k, c := range shard {
			counts[k] += c
		}
	}

	m := newMatrix(vocab, counts)
	b.logger.Info().
		Int("orders", len(orders)).
		Int("vocabulary", m.Len()).
		Int("pairs", m.NumPairs()).
		Int("max_count", m.MaxCount()).
		Int("workers", workers).
		Dur("duration", time.Since(start)).
		Msg("Co-occurrence matrix built")
	return m, nil
}

// vocabulary returns, sorted, every item that shares an order with a
// different item.
func vocabulary(orders []recommend.Order) []string {
	set := make(map[string]struct{})
	for _, o := range orders {
		if len(o.Items) < 2 {
			continue
		}
		first := o.Items[0]
		mixed := false
		for _, it := range o.Items[1:] {
			if it != first {
				mixed = true
				break
			}
		}
		if !mixed {
			continue
		}
		for _, it := range o.Items {
			set[it] = struct{}{}
		}
	}
	vocab := make([]string, 0, len(set))
	for it := range set {
		vocab = append(vocab, it)
	}
	sort.Strings(vocab)
	return vocab
}

// distinctIndices appends the vocabulary index of each distinct item to dst.
func distinctIndices(items []string, index map[string]int, dst []int) []int {
	for _, it := range items {
		i, ok := index[it]
		if !ok {
			continue
		}
		dup := false
		for _, seen := range dst {
			if seen == i {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, i)
		}
	}
	return dst
}
