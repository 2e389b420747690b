// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package recommend

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below wrap one of these so callers can
// branch with errors.Is.
var (
	// ErrUnavailable means the backing store could not be read or written
	// after retries. It is never a synonym for "no results".
	ErrUnavailable = errors.New("recommend: backend unavailable")

	// ErrNoEmbedding means the item, or every basket member, has no vector
	// for the requested variant.
	ErrNoEmbedding = errors.New("recommend: no embedding available")

	// ErrNotFound means a catalog record does not exist.
	ErrNotFound = errors.New("recommend: not found")

	// ErrMalformedRecord means a stored record failed structural validation.
	ErrMalformedRecord = errors.New("recommend: malformed record")

	ErrEmptyVocabulary    = errors.New("recommend: empty vocabulary")
	ErrRankTooLarge       = errors.New("recommend: rank exceeds matrix dimension")
	ErrInvalidRank        = errors.New("recommend: rank must be positive")
	ErrBackendUnavailable = errors.New("recommend: embedding backend unavailable")
	ErrDimensionMismatch  = errors.New("recommend: dimension mismatch")
	ErrUnknownModel       = errors.New("recommend: unknown text model")
)

// Row rejection reasons.
const (
	ReasonMalformedRow    = "malformed_row"
	ReasonMissingOrderID  = "missing_order_id"
	ReasonMissingItemName = "missing_item_name"
	ReasonTooManyFields   = "too_many_fields"
)

// IngestionError records one rejected input row. Ingestion continues past it.
type IngestionError struct {
	Line   int      `json:"line,omitempty"`
	Reason string   `json:"reason"`
	Record []string `json:"record"`
	Err    error    `json:"-"`
}

func (e *IngestionError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *IngestionError) Unwrap() error { return e.Err }

// ModelError aborts a batch job. Nothing from the failed job is published.
type ModelError struct {
	Variant Variant
	Op      string
	Err     error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s: %s: %v", e.Variant, e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError builds a ModelError.
func NewModelError(variant Variant, op string, err error) *ModelError {
	return &ModelError{Variant: variant, Op: op, Err: err}
}

// StoreError is a read or write failure against the persisted store.
// It always matches ErrUnavailable.
type StoreError struct {
	Backend string
	Op      string
	Key     string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s: %s %q: %v", e.Backend, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrUnavailable
}

// Query error kinds.
const (
	QueryUnknownItem    = "unknown_item"
	QueryUnknownVariant = "unknown_variant"
	QueryEmptyBasket    = "empty_basket"
	QueryUnknownOrder   = "unknown_order"
)

// QueryError describes a query that cannot be answered from similarity
// data. It is reported on a Result, not returned as an error.
type QueryError struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
}

func (e *QueryError) Error() string {
	if e.Subject == "" {
		return e.Kind
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Subject)
}

// IsUnavailable reports whether err means the store could not be reached.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
