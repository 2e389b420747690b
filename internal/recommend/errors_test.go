// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package recommend

import (
	"errors"
	"fmt"
	"testing"
)

func TestStoreErrorIsUnavailable(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("lookup: %w", &StoreError{Backend: "redis", Op: "get", Key: "item:v1:A", Err: cause})

	if !errors.Is(err, ErrUnavailable) {
		t.Error("StoreError does not match ErrUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Error("StoreError does not unwrap to its cause")
	}
	if !IsUnavailable(err) {
		t.Error("IsUnavailable = false")
	}

	var se *StoreError
	if !errors.As(err, &se) || se.Backend != "redis" {
		t.Errorf("errors.As failed: %v", se)
	}
}

func TestModelErrorUnwrap(t *testing.T) {
	err := NewModelError(VariantCooccurrence, "fit", ErrRankTooLarge)
	if !errors.Is(err, ErrRankTooLarge) {
		t.Error("ModelError does not unwrap")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("ModelError must not read as unavailable")
	}
	want := "model cooccurrence: fit: recommend: rank exceeds matrix dimension"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestIngestionErrorMessage(t *testing.T) {
	tests := []struct {
		err  *IngestionError
		want string
	}{
		{&IngestionError{Line: 4, Reason: ReasonMissingItemName}, "line 4: missing_item_name"},
		{&IngestionError{Line: 9, Reason: ReasonMalformedRow, Err: errors.New("bare quote")}, "line 9: malformed_row: bare quote"},
		{&IngestionError{Reason: ReasonMissingItemName}, "missing_item_name"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestQueryErrorMessage(t *testing.T) {
	if got := (&QueryError{Kind: QueryEmptyBasket}).Error(); got != "empty_basket" {
		t.Errorf("got %q", got)
	}
	if got := (&QueryError{Kind: QueryUnknownItem, Subject: "X"}).Error(); got != "unknown_item: X" {
		t.Errorf("got %q", got)
	}
}
