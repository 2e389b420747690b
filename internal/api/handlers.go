// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/basketrec/internal/recommend"
	"github.com/tomtom215/basketrec/internal/recommend/pipeline"
	"github.com/tomtom215/basketrec/internal/validation"
)

// maxBasketBody bounds the POST /basket request body.
const maxBasketBody = 1 << 20

// HealthChecker reports the state of the vector store.
type HealthChecker interface {
	Ping(ctx context.Context) error
	CatalogGeneration(ctx context.Context) (int64, error)
}

// BatchStatus reports the state of the batch job.
type BatchStatus interface {
	Status() pipeline.Status
}

// Handler serves the recommendation API.
type Handler struct {
	orch         *recommend.Orchestrator
	health       HealthChecker
	batch        BatchStatus
	queryTimeout time.Duration
}

// HandlerOption configures optional Handler collaborators.
type HandlerOption func(*Handler)

// WithBatchStatus adds the batch job status to /health.
func WithBatchStatus(b BatchStatus) HandlerOption {
	return func(h *Handler) { h.batch = b }
}

// WithQueryTimeout bounds each orchestrator call. Default 10s.
func WithQueryTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		if d > 0 {
			h.queryTimeout = d
		}
	}
}

// NewHandler creates a handler over orch. health may be nil.
func NewHandler(orch *recommend.Orchestrator, health HealthChecker, opts ...HandlerOption) *Handler {
	h := &Handler{
		orch:         orch,
		health:       health,
		queryTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthData is the payload of GET /health.
type HealthData struct {
	Status            string           `json:"status"`
	StoreReachable    bool             `json:"store_reachable"`
	CatalogGeneration int64            `json:"catalog_generation"`
	Batch             *pipeline.Status `json:"batch,omitempty"`
}

// Health handles GET /api/v1/health. An unreachable store is 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	data := HealthData{Status: "healthy", StoreReachable: true}
	if h.batch != nil {
		st := h.batch.Status()
		data.Batch = &st
	}

	if h.health != nil {
		if err := h.health.Ping(ctx); err != nil {
			data.Status = "unhealthy"
			data.StoreReachable = false
			respondJSON(w, r, http.StatusServiceUnavailable, &Response{
				Status:   "error",
				Data:     data,
				Metadata: Metadata{Timestamp: time.Now().UTC()},
				Error:    &APIError{Code: ErrCodeServiceUnavailable, Message: "Vector store unreachable"},
			})
			return
		}
		gen, err := h.health.CatalogGeneration(ctx)
		if err != nil {
			data.Status = "degraded"
		}
		data.CatalogGeneration = gen
		if gen == 0 && data.Status == "healthy" {
			data.Status = "empty"
		}
	}

	respondSuccess(w, r, start, data, Metadata{Generation: data.CatalogGeneration})
}

// Popular handles GET /api/v1/popular.
func (h *Handler) Popular(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	if !validate(w, r, &LimitRequest{Limit: limit}) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	res, err := h.orch.Popular(ctx, limit)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondResult(w, r, start, res)
}

// ForOrder handles GET /api/v1/recommendations/{orderID}.
func (h *Handler) ForOrder(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	req := OrderRequest{OrderID: chi.URLParam(r, "orderID"), Limit: limit}
	if !validate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	res, err := h.orch.ForOrder(ctx, req.OrderID, req.Limit)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondResult(w, r, start, res)
}

// SimilarItems handles GET /api/v1/similar-items/{item}.
func (h *Handler) SimilarItems(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	req := SimilarItemsRequest{
		Item:    chi.URLParam(r, "item"),
		Limit:   limit,
		Variant: r.URL.Query().Get("variant"),
	}
	if !validate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	res, err := h.orch.SimilarToItem(ctx, req.Item, req.Limit, recommend.Variant(req.Variant))
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondResult(w, r, start, res)
}

// SimilarItemsFused handles GET /api/v1/similar-items/{item}/fused.
// variants is a comma-separated list; empty means every enabled variant.
func (h *Handler) SimilarItemsFused(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	req := FusedRequest{
		Item:     chi.URLParam(r, "item"),
		Limit:    limit,
		Variants: splitList(r.URL.Query().Get("variants")),
	}
	if !validate(w, r, &req) {
		return
	}

	variants := make([]recommend.Variant, len(req.Variants))
	for i, v := range req.Variants {
		variants[i] = recommend.Variant(v)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	res, err := h.orch.SimilarToItemFused(ctx, req.Item, req.Limit, variants)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondResult(w, r, start, res)
}

// CoPurchased handles GET /api/v1/co-purchased/{item}.
func (h *Handler) CoPurchased(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	limit, ok := h.parseLimit(w, r)
	if !ok {
		return
	}
	req := CoPurchasedRequest{Item: chi.URLParam(r, "item"), Limit: limit}
	if !validate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	res, err := h.orch.CoPurchased(ctx, req.Item, req.Limit)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondResult(w, r, start, res)
}

// Basket handles POST /api/v1/basket.
func (h *Handler) Basket(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBasketBody)

	var req BasketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON body", nil)
		return
	}
	if req.Limit == 0 {
		req.Limit = h.orch.Config().Limits.DefaultLimit
	}
	if !validate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	res, err := h.orch.SimilarToBasket(ctx, req.Items, req.Limit, recommend.Variant(req.Variant))
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondResult(w, r, start, res)
}

// Embedding handles GET /api/v1/embeddings/{item}.
func (h *Handler) Embedding(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := EmbeddingRequest{
		Item:    chi.URLParam(r, "item"),
		Variant: r.URL.Query().Get("variant"),
	}
	if !validate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()
	vec, err := h.orch.GetEmbedding(ctx, req.Item, recommend.Variant(req.Variant))
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondSuccess(w, r, start, vec, Metadata{Variant: vec.Variant})
}

// Snapshot handles GET /api/v1/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	meta, err := h.orch.Snapshot(ctx)
	if err != nil {
		respondQueryError(w, r, err)
		return
	}
	respondSuccess(w, r, start, meta, Metadata{Generation: meta.Generation})
}

// parseLimit reads ?limit=. Absent means the configured default.
func (h *Handler) parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.orch.Config().Limits.DefaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "limit must be an integer", nil)
		return 0, false
	}
	return limit, true
}

// validate runs struct validation and writes a 400 on failure.
func validate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if verr := validation.ValidateStruct(req); verr != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, verr.Error(), nil)
		return false
	}
	return true
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
