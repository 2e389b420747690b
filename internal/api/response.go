// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/basketrec/internal/logging"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// Response is the envelope of every API response.
type Response struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata describes how a response was produced.
type Metadata struct {
	Timestamp   time.Time         `json:"timestamp"`
	QueryTimeMS int64             `json:"query_time_ms"`
	Source      recommend.Source  `json:"source,omitempty"`
	Variant     recommend.Variant `json:"variant,omitempty"`
	Generation  int64             `json:"generation,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
}

// APIError is the error part of the envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// ResultData is the payload of every recommendation endpoint.
type ResultData struct {
	Items      []recommend.SimilarityResult `json:"items"`
	Count      int                          `json:"count"`
	QueryError *recommend.QueryError        `json:"query_error,omitempty"`
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *Response) {
	response.Metadata.RequestID = logging.RequestIDFromContext(r.Context())

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, r *http.Request, start time.Time, data interface{}, meta Metadata) {
	meta.Timestamp = time.Now().UTC()
	meta.QueryTimeMS = time.Since(start).Milliseconds()
	respondJSON(w, r, http.StatusOK, &Response{
		Status:   "success",
		Data:     data,
		Metadata: meta,
	})
}

// respondResult writes an orchestrator result.
func respondResult(w http.ResponseWriter, r *http.Request, start time.Time, res *recommend.Result) {
	items := res.Items
	if items == nil {
		items = []recommend.SimilarityResult{}
	}
	respondSuccess(w, r, start, ResultData{
		Items:      items,
		Count:      len(items),
		QueryError: res.QueryError,
	}, Metadata{
		Source:     res.Source,
		Variant:    res.Variant,
		Generation: res.Generation,
		Degraded:   res.Degraded,
	})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Err(err).
			Str("code", code).
			Int("status", status).
			Msg("API error")
	}
	respondJSON(w, r, status, &Response{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &APIError{Code: code, Message: message},
	})
}

// respondQueryError maps recommend errors to HTTP statuses. An
// unavailable store is 503, never an empty 200.
func respondQueryError(w http.ResponseWriter, r *http.Request, err error) {
	var qerr *recommend.QueryError
	switch {
	case errors.As(err, &qerr):
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, qerr.Error(), nil)
	case errors.Is(err, recommend.ErrUnavailable):
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable,
			"Recommendation data is temporarily unavailable", err)
	case errors.Is(err, recommend.ErrNoEmbedding):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "No embedding for this item", nil)
	case errors.Is(err, recommend.ErrNotFound):
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	case errors.Is(err, r.Context().Err()) && r.Context().Err() != nil:
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Request canceled", err)
	default:
		respondError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Internal error", err)
	}
}
