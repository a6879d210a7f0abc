// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"net/url"

	"github.com/LeeDigitalWorks/icbucket/pkg/batcher"
	"github.com/LeeDigitalWorks/icbucket/pkg/bucket"
	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/chunk"
)

// openBucket connects to the configured canister.
func openBucket() (*bucket.Bucket, *canister.Client, error) {
	id, err := cfg.CanisterID()
	if err != nil {
		return nil, nil, err
	}
	client, err := canister.NewClient(cfg.Endpoint(), id)
	if err != nil {
		return nil, nil, err
	}
	base, err := url.Parse(cfg.CanisterURL(id))
	if err != nil {
		return nil, nil, err
	}
	encodings, err := cfg.Encodings()
	if err != nil {
		return nil, nil, err
	}

	registry := batcher.NewRegistry(batcher.WithGuard(guard))
	b := bucket.New(id, base, client,
		bucket.WithRegistry(registry),
		bucket.WithEncodings(encodings...),
		bucket.WithConcurrency(cfg.Upload.Concurrency),
		bucket.WithChunkOptions(
			chunk.WithChunkSize(cfg.Upload.ChunkSize.Int()),
			chunk.WithRateLimit(cfg.Upload.RateLimit.Int()),
		),
	)
	return b, client, nil
}
