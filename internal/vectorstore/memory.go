// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend keeps everything in process memory. It is used in tests
// and for single-process deployments that rebuild on startup.
type MemoryBackend struct {
	mu          sync.RWMutex
	data        map[string][]byte
	generations map[string]map[int64]struct{}
	closed      bool
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:        make(map[string][]byte),
		generations: make(map[string]map[int64]struct{}),
	}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// CurrentGeneration implements Backend.
func (m *MemoryBackend) CurrentGeneration(_ context.Context, namespace string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, errClosed
	}
	v, ok := m.data[pointerKey(namespace)]
	if !ok {
		return 0, nil
	}
	return parseGeneration(string(v))
}

// WriteGeneration implements Backend.
func (m *MemoryBackend) WriteGeneration(_ context.Context, namespace string, gen int64, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	for k, v := range entries {
		m.data[recordKey(namespace, gen, k)] = append([]byte(nil), v...)
	}
	gens, ok := m.generations[namespace]
	if !ok {
		gens = make(map[int64]struct{})
		m.generations[namespace] = gens
	}
	gens[gen] = struct{}{}
	return nil
}

// SwapCurrent implements Backend.
func (m *MemoryBackend) SwapCurrent(_ context.Context, namespace string, gen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	m.data[pointerKey(namespace)] = []byte(formatGeneration(gen))
	return nil
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, namespace string, gen int64, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	v, ok := m.data[recordKey(namespace, gen, key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Scan implements Backend.
func (m *MemoryBackend) Scan(ctx context.Context, namespace string, gen int64, fn func(key string, value []byte) error) error {
	prefix := generationPrefix(namespace, gen)

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errClosed
	}
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.data[k]
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(strings.TrimPrefix(k, prefix), values[i]); err != nil {
			return err
		}
	}
	return nil
}

// ListGenerations implements Backend.
func (m *MemoryBackend) ListGenerations(_ context.Context, namespace string) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	out := make([]int64, 0, len(m.generations[namespace]))
	for g := range m.generations[namespace] {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DropGeneration implements Backend.
func (m *MemoryBackend) DropGeneration(_ context.Context, namespace string, gen int64) error {
	prefix := generationPrefix(namespace, gen)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	delete(m.generations[namespace], gen)
	return nil
}

// Ping implements Backend.
func (m *MemoryBackend) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return errClosed
	}
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Put writes a raw record without touching the generation registry.
// Tests use it to plant corrupt data.
func (m *MemoryBackend) Put(namespace string, gen int64, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[recordKey(namespace, gen, key)] = value
}
