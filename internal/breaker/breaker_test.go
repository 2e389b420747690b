// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/basketrec/internal/metrics"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := New("test-open", Config{MaxRequests: 1, Timeout: time.Hour, FailureThreshold: 2}, zerolog.Nop())
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}

	_, err := cb.Execute(func() (interface{}, error) { return "ok", nil })
	if !IsRejected(err) {
		t.Fatalf("err = %v, want rejection", err)
	}
	if cb.State() != gobreaker.StateOpen {
		t.Errorf("state = %s, want open", StateString(cb.State()))
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("test-open")); got != 2 {
		t.Errorf("state gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.CircuitBreakerTransitions.WithLabelValues("test-open", "closed", "open")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"zero max requests", Config{Timeout: time.Second, FailureThreshold: 1}, true},
		{"zero timeout", Config{MaxRequests: 1, FailureThreshold: 1}, true},
		{"zero threshold", Config{MaxRequests: 1, Timeout: time.Second}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	tests := map[gobreaker.State]string{
		gobreaker.StateClosed:   "closed",
		gobreaker.StateHalfOpen: "half-open",
		gobreaker.StateOpen:     "open",
		gobreaker.State(42):     "unknown",
	}
	for state, want := range tests {
		if got := StateString(state); got != want {
			t.Errorf("StateString(%d) = %s, want %s", state, got, want)
		}
	}
}
