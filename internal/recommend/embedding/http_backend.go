// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/basketrec/internal/breaker"
	"github.com/tomtom215/basketrec/internal/metrics"
)

// HTTPConfig configures the remote embedding backend.
type HTTPConfig struct {
	// Endpoint is the base URL of a Text-Embeddings-Inference server.
	Endpoint string

	// ModelEndpoints overrides Endpoint per registry key, for deployments
	// that run one server per model.
	ModelEndpoints map[string]string

	Timeout time.Duration

	// RequestsPerSecond and Burst limit calls from this process.
	RequestsPerSecond float64
	Burst             int

	Breaker breaker.Config
}

// DefaultHTTPConfig returns the default remote backend settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint:          "http://localhost:8080",
		Timeout:           30 * time.Second,
		RequestsPerSecond: 20,
		Burst:             5,
		Breaker:           breaker.DefaultConfig(),
	}
}

// HTTPBackend calls a Text-Embeddings-Inference style server:
// GET /health to check the model is loaded, POST /embed to embed.
type HTTPBackend struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[interface{}]
	logger  zerolog.Logger
}

// NewHTTPBackend creates a remote backend.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewHTTPBackend(cfg HTTPConfig, logger zerolog.Logger) *HTTPBackend {
	def := DefaultHTTPConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &HTTPBackend{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		cb:      breaker.New("embedding-http", cfg.Breaker, logger),
		logger:  logger.With().Str("component", "embedding_http").Logger(),
	}
}

// Name implements Backend.
func (b *HTTPBackend) Name() string { return "http" }

func (b *HTTPBackend) endpoint(spec ModelSpec) string {
	if u, ok := b.cfg.ModelEndpoints[spec.Key]; ok && u != "" {
		return strings.TrimRight(u, "/")
	}
	return strings.TrimRight(b.cfg.Endpoint, "/")
}

// Load implements Backend by probing the server's health route.
func (b *HTTPBackend) Load(ctx context.Context, spec ModelSpec) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint(spec)+"/health", http.NoBody)
		if err != nil {
			return nil, err
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close() //nolint:errcheck // body drained below
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("health check returned %s", resp.Status)
		}
		return nil, nil
	})
	if err != nil {
		b.logger.Warn().Err(err).Str("model", spec.Key).Msg("Embedding backend not ready")
		return err
	}
	return nil
}

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
	Truncate  bool     `json:"truncate"`
}

// Embed implements Backend.
func (b *HTTPBackend) Embed(ctx context.Context, spec ModelSpec, texts []string) ([][]float64, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(embedRequest{Inputs: texts, Normalize: true, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.post(ctx, b.endpoint(spec)+"/embed", body)
	})
	metrics.RecordEmbedRequest(b.Name(), spec.Key, time.Since(start))
	if err != nil {
		if breaker.IsRejected(err) {
			b.logger.Warn().Err(err).Str("model", spec.Key).Msg("Embedding request rejected by circuit breaker")
		}
		return nil, err
	}

	vectors, ok := result.([][]float64)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return vectors, nil
}

var errServer = errors.New("embedding server error")

func (b *HTTPBackend) post(ctx context.Context, url string, body []byte) ([][]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s: %s", errServer, resp.Status, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return vectors, nil
}
