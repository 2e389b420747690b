// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/basketrec/internal/breaker"
	"github.com/tomtom215/basketrec/internal/metrics"
	"github.com/tomtom215/basketrec/internal/recommend"
)

// RetryConfig bounds retries of a backend operation.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}

// Resilient wraps a Backend with bounded exponential-backoff retries and
// a circuit breaker. Failures that survive both come back as a
// *recommend.StoreError, which matches recommend.ErrUnavailable.
// ErrNotFound passes through untouched and does not count as a failure.
type Resilient struct {
	inner  Backend
	retry  RetryConfig
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger zerolog.Logger

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResilient wraps inner.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func NewResilient(inner Backend, retry RetryConfig, cbCfg breaker.Config, logger zerolog.Logger) *Resilient {
	def := DefaultRetryConfig()
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = def.MaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = def.InitialBackoff
	}
	if retry.MaxBackoff < retry.InitialBackoff {
		retry.MaxBackoff = retry.InitialBackoff
	}
	return &Resilient{
		inner:  inner,
		retry:  retry,
		cb:     breaker.New("store-"+inner.Name(), cbCfg, logger),
		logger: logger.With().Str("component", "store_backend").Str("backend", inner.Name()).Logger(),
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// do runs op with retries. key is only used for error context.
func (r *Resilient) do(ctx context.Context, op, key string, fn func() error) error {
	start := time.Now()
	delay := r.retry.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			metrics.RecordStoreRetry(r.inner.Name(), op)
			r.logger.Debug().
				Str("operation", op).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying store operation")
			if err := r.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			delay *= 2
			if delay > r.retry.MaxBackoff {
				delay = r.retry.MaxBackoff
			}
		}

		_, err := r.cb.Execute(func() (interface{}, error) {
			err := fn()
			if errors.Is(err, ErrNotFound) {
				// A miss is an answer, not a failure.
				return nil, nil
			}
			return nil, err
		})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		if breaker.IsRejected(err) || ctx.Err() != nil {
			break
		}
		r.logger.Warn().
			Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Int("max_attempts", r.retry.MaxAttempts).
			Msg("Store operation failed")
	}

	metrics.RecordStoreOperation(r.inner.Name(), op, time.Since(start), lastErr)
	if lastErr == nil {
		return nil
	}
	return &recommend.StoreError{
		Backend: r.inner.Name(),
		Op:      op,
		Key:     key,
		Err:     fmt.Errorf("after %d attempts: %w", r.retry.MaxAttempts, lastErr),
	}
}

// Name implements Backend.
func (r *Resilient) Name() string { return r.inner.Name() }

// CurrentGeneration implements Backend.
func (r *Resilient) CurrentGeneration(ctx context.Context, namespace string) (int64, error) {
	var gen int64
	err := r.do(ctx, "current", pointerKey(namespace), func() error {
		var err error
		gen, err = r.inner.CurrentGeneration(ctx, namespace)
		return err
	})
	return gen, err
}

// WriteGeneration implements Backend.
func (r *Resilient) WriteGeneration(ctx context.Context, namespace string, gen int64, entries map[string][]byte) error {
	return r.do(ctx, "write", generationPrefix(namespace, gen), func() error {
		return r.inner.WriteGeneration(ctx, namespace, gen, entries)
	})
}

// SwapCurrent implements Backend.
func (r *Resilient) SwapCurrent(ctx context.Context, namespace string, gen int64) error {
	return r.do(ctx, "swap", pointerKey(namespace), func() error {
		return r.inner.SwapCurrent(ctx, namespace, gen)
	})
}

// Get implements Backend.
func (r *Resilient) Get(ctx context.Context, namespace string, gen int64, key string) ([]byte, error) {
	var (
		out    []byte
		gotErr error
	)
	err := r.do(ctx, "get", recordKey(namespace, gen, key), func() error {
		var err error
		out, err = r.inner.Get(ctx, namespace, gen, key)
		gotErr = err
		return err
	})
	if err != nil {
		return nil, err
	}
	if errors.Is(gotErr, ErrNotFound) {
		return nil, ErrNotFound
	}
	return out, nil
}

// Scan implements Backend.
func (r *Resilient) Scan(ctx context.Context, namespace string, gen int64, fn func(key string, value []byte) error) error {
	return r.do(ctx, "scan", generationPrefix(namespace, gen), func() error {
		return r.inner.Scan(ctx, namespace, gen, fn)
	})
}

// ListGenerations implements Backend.
func (r *Resilient) ListGenerations(ctx context.Context, namespace string) ([]int64, error) {
	var out []int64
	err := r.do(ctx, "list", registryKey(namespace), func() error {
		var err error
		out, err = r.inner.ListGenerations(ctx, namespace)
		return err
	})
	return out, err
}

// DropGeneration implements Backend.
func (r *Resilient) DropGeneration(ctx context.Context, namespace string, gen int64) error {
	return r.do(ctx, "drop", generationPrefix(namespace, gen), func() error {
		return r.inner.DropGeneration(ctx, namespace, gen)
	})
}

// Ping implements Backend.
func (r *Resilient) Ping(ctx context.Context) error {
	return r.do(ctx, "ping", "", func() error {
		return r.inner.Ping(ctx)
	})
}

// Close implements Backend.
func (r *Resilient) Close() error {
	return r.inner.Close()
}
