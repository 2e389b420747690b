// BasketRec - Item Similarity Recommendations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/basketrec

// Package testinfra starts backing services in Docker for integration
// tests. Files in this package build only with the integration tag:
//
//	go test -tags integration ./internal/testinfra/...
//
// # Redis Container
//
// RedisContainer runs a throwaway Redis for the vector store's Redis
// backend:
//
//	redisC, err := testinfra.NewRedisContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer testinfra.CleanupContainer(t, ctx, redisC)
//
//	backend, err := vectorstore.NewRedisBackend(ctx, vectorstore.RedisConfig{Addr: redisC.Addr})
//
// Tests call SkipIfNoDocker first so they pass on machines without Docker.
package testinfra
