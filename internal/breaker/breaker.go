// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package breaker builds the circuit breakers that guard the store backends
// and the remote embedding service. State changes are logged and exported
// as metrics.
package breaker

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/basketrec/internal/metrics"
)

// Config holds circuit breaker settings.
type Config struct {
	// MaxRequests is the number of probe requests allowed while half-open.
	MaxRequests uint32 `koanf:"max_requests"`

	// Interval is the closed-state period after which counts are cleared.
	Interval time.Duration `koanf:"interval"`

	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `koanf:"timeout"`

	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	FailureThreshold uint32 `koanf:"failure_threshold"`
}

// DefaultConfig returns the default breaker settings.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      3,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 5,
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.MaxRequests == 0 {
		return errors.New("breaker max_requests must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("breaker timeout must be positive, got %s", c.Timeout)
	}
	if c.FailureThreshold == 0 {
		return errors.New("breaker failure_threshold must be positive")
	}
	return nil
}

// New creates a named circuit breaker. Zero fields in cfg take defaults.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(name string, cfg Config, logger zerolog.Logger) *gobreaker.CircuitBreaker[interface{}] {
	def := DefaultConfig()
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	log := logger.With().Str("component", "breaker").Str("breaker", name).Logger()

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= cfg.FailureThreshold
			if trip {
				log.Warn().Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("Opening circuit")
			}
			return trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().Str("from", StateString(from)).Str("to", StateString(to)).Msg("Circuit breaker state transition")
			metrics.RecordCircuitBreakerTransition(name, StateString(from), StateString(to))
		},
	})
}

// IsRejected reports whether err came from the breaker refusing the call
// rather than from the call itself.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// StateString converts a breaker state for logs and metric labels.
func StateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
