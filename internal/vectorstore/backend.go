// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package vectorstore persists embedding vectors and the catalog snapshot
// in a key-value backend and serves them to the recommendation layer.
//
// Every namespace (one per variant, plus the catalog) is written as an
// immutable generation under versioned keys:
//
//	<namespace>v<generation>:<key>   record
//	<namespace>current               generation readers use
//
// A publish writes the whole generation first and then swaps the current
// pointer, so readers see either the old generation or the new one, never
// a mix. Old generations are pruned after the swap.
package vectorstore

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned by backends for a missing key.
var ErrNotFound = errors.New("vectorstore: key not found")

var errClosed = errors.New("vectorstore: backend closed")

// Backend is a raw versioned key-value store.
type Backend interface {
	// Name identifies the backend in logs, metrics and errors.
	Name() string

	// CurrentGeneration returns the namespace's current generation, or 0
	// when nothing has been published.
	CurrentGeneration(ctx context.Context, namespace string) (int64, error)

	// WriteGeneration stores every entry under generation gen. The
	// generation is not visible to readers until SwapCurrent.
	WriteGeneration(ctx context.Context, namespace string, gen int64, entries map[string][]byte) error

	// SwapCurrent points readers at gen.
	SwapCurrent(ctx context.Context, namespace string, gen int64) error

	// Get returns one record. ErrNotFound when absent.
	Get(ctx context.Context, namespace string, gen int64, key string) ([]byte, error)

	// Scan calls fn for every record of a generation, in key order. fn may
	// see a record more than once if the scan is retried, and must not
	// keep value after it returns.
	Scan(ctx context.Context, namespace string, gen int64, fn func(key string, value []byte) error) error

	// ListGenerations returns every written generation, ascending.
	ListGenerations(ctx context.Context, namespace string) ([]int64, error)

	// DropGeneration deletes a generation's records.
	DropGeneration(ctx context.Context, namespace string, gen int64) error

	Ping(ctx context.Context) error
	Close() error
}

// CatalogNamespace holds the popularity, co-occurrence and order snapshot.
const CatalogNamespace = "catalog:"

func generationPrefix(namespace string, gen int64) string {
	return namespace + "v" + formatGeneration(gen) + ":"
}

func recordKey(namespace string, gen int64, key string) string {
	return generationPrefix(namespace, gen) + key
}

func pointerKey(namespace string) string {
	return namespace + "current"
}

// registryKey lists the generations written to a namespace.
func registryKey(namespace string) string {
	return namespace + "generations"
}

func formatGeneration(gen int64) string {
	return strconv.FormatInt(gen, 10)
}

func parseGeneration(s string) (int64, error) {
	gen, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || gen < 0 {
		return 0, errors.New("vectorstore: invalid generation " + strconv.Quote(s))
	}
	return gen, nil
}
