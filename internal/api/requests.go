// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package api

// Request structs validated with go-playground/validator. Field names in
// error messages come from the json tags.

// LimitRequest covers endpoints that only take a limit.
type LimitRequest struct {
	Limit int `json:"limit" validate:"min=1,max=50"`
}

// SimilarItemsRequest is GET /similar-items/{item}.
type SimilarItemsRequest struct {
	Item    string `json:"item" validate:"itemname,max=512"`
	Limit   int    `json:"limit" validate:"min=1,max=20"`
	Variant string `json:"variant" validate:"omitempty,variant"`
}

// FusedRequest is GET /similar-items/{item}/fused.
type FusedRequest struct {
	Item     string   `json:"item" validate:"itemname,max=512"`
	Limit    int      `json:"limit" validate:"min=1,max=20"`
	Variants []string `json:"variants" validate:"max=8,dive,variant"`
}

// CoPurchasedRequest is GET /co-purchased/{item}.
type CoPurchasedRequest struct {
	Item  string `json:"item" validate:"itemname,max=512"`
	Limit int    `json:"limit" validate:"min=1,max=50"`
}

// OrderRequest is GET /recommendations/{orderID}.
type OrderRequest struct {
	OrderID string `json:"order_id" validate:"required,max=128"`
	Limit   int    `json:"limit" validate:"min=1,max=50"`
}

// BasketRequest is the body of POST /basket.
type BasketRequest struct {
	Items   []string `json:"items" validate:"min=1,max=100,dive,itemname,max=512"`
	Limit   int      `json:"limit" validate:"min=1,max=50"`
	Variant string   `json:"variant" validate:"omitempty,variant"`
}

// EmbeddingRequest is GET /embeddings/{item}.
type EmbeddingRequest struct {
	Item    string `json:"item" validate:"itemname,max=512"`
	Variant string `json:"variant" validate:"omitempty,variant"`
}
