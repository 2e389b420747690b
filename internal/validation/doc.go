// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package validation validates API requests with go-playground/validator v10.
//
// A single validator is shared process-wide. Field names in messages come
// from json tags, so errors name the parameter the client actually sent.
//
// Custom rules:
//   - variant: a known variant string ("cooccurrence" or "huggingface:<model>")
//   - itemname: non-blank and free of control characters
//
// Usage:
//
//	type BasketRequest struct {
//	    Items []string `json:"items" validate:"min=1,max=100,dive,itemname"`
//	    Limit int      `json:"limit" validate:"min=1,max=50"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    respondError(w, http.StatusBadRequest, validation.ErrorCode, verr.Error(), nil)
//	    return
//	}
package validation
