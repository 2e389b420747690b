// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// redisPageSize bounds keys per SCAN page, pipeline flush and MGET.
const redisPageSize = 500

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisBackend stores generations in Redis as plain string keys. The
// generation registry is a set per namespace.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to Redis and verifies the connection.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", cfg.Addr, err)
	}
	return &RedisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

// Name implements Backend.
func (r *RedisBackend) Name() string { return "redis" }

// CurrentGeneration implements Backend.
func (r *RedisBackend) CurrentGeneration(ctx context.Context, namespace string) (int64, error) {
	v, err := r.client.Get(ctx, pointerKey(namespace)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGeneration(v)
}

// WriteGeneration implements Backend.
func (r *RedisBackend) WriteGeneration(ctx context.Context, namespace string, gen int64, entries map[string][]byte) error {
	pipe := r.client.Pipeline()
	n := 0
	for k, v := range entries {
		pipe.Set(ctx, recordKey(namespace, gen, k), v, 0)
		n++
		if n%redisPageSize == 0 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("write generation %d: %w", gen, err)
			}
		}
	}
	pipe.SAdd(ctx, registryKey(namespace), formatGeneration(gen))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write generation %d: %w", gen, err)
	}
	return nil
}

// SwapCurrent implements Backend.
func (r *RedisBackend) SwapCurrent(ctx context.Context, namespace string, gen int64) error {
	return r.client.Set(ctx, pointerKey(namespace), formatGeneration(gen), 0).Err()
}

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, namespace string, gen int64, key string) ([]byte, error) {
	v, err := r.client.Get(ctx, recordKey(namespace, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

// Scan implements Backend. Keys are collected with SCAN, sorted, and read
// back with MGET in pages.
func (r *RedisBackend) Scan(ctx context.Context, namespace string, gen int64, fn func(key string, value []byte) error) error {
	prefix := generationPrefix(namespace, gen)
	keys, err := r.keys(ctx, prefix)
	if err != nil {
		return err
	}
	sort.Strings(keys)

	for lo := 0; lo < len(keys); lo += redisPageSize {
		hi := lo + redisPageSize
		if hi > len(keys) {
			hi = len(keys)
		}
		vals, err := r.client.MGet(ctx, keys[lo:hi]...).Result()
		if err != nil {
			return fmt.Errorf("mget: %w", err)
		}
		for i, v := range vals {
			s, ok := v.(string)
			if !ok {
				// Deleted between SCAN and MGET.
				continue
			}
			if err := fn(strings.TrimPrefix(keys[lo+i], prefix), []byte(s)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RedisBackend) keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	pattern := escapeGlob(prefix) + "*"
	for {
		page, next, err := r.client.Scan(ctx, cursor, pattern, redisPageSize).Result()
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", prefix, err)
		}
		keys = append(keys, page...)
		if next == 0 {
			break
		}
		cursor = next
	}
	// SCAN may return a key more than once.
	sort.Strings(keys)
	out := keys[:0]
	for i, k := range keys {
		if i > 0 && k == keys[i-1] {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

var globReplacer = strings.NewReplacer(`\`, `\\`, "*", `\*`, "?", `\?`, "[", `\[`, "]", `\]`)

func escapeGlob(s string) string {
	return globReplacer.Replace(s)
}

// ListGenerations implements Backend.
func (r *RedisBackend) ListGenerations(ctx context.Context, namespace string) ([]int64, error) {
	members, err := r.client.SMembers(ctx, registryKey(namespace)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(members))
	for _, m := range members {
		gen, err := parseGeneration(m)
		if err != nil {
			return nil, err
		}
		out = append(out, gen)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DropGeneration implements Backend.
func (r *RedisBackend) DropGeneration(ctx context.Context, namespace string, gen int64) error {
	keys, err := r.keys(ctx, generationPrefix(namespace, gen))
	if err != nil {
		return err
	}
	for lo := 0; lo < len(keys); lo += redisPageSize {
		hi := lo + redisPageSize
		if hi > len(keys) {
			hi = len(keys)
		}
		if err := r.client.Unlink(ctx, keys[lo:hi]...).Err(); err != nil {
			return fmt.Errorf("unlink generation %d: %w", gen, err)
		}
	}
	return r.client.SRem(ctx, registryKey(namespace), formatGeneration(gen)).Err()
}

// Ping implements Backend.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
