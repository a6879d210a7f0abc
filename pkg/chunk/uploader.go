// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk splits encoded content into fixed-size chunks and uploads
// them into an open batch.
package chunk

import (
	"context"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"golang.org/x/time/rate"
)

// ChunkSize is the default size of each uploaded chunk.
const ChunkSize = 2 * 1024 * 1024

// Creator stores one chunk under a batch.
type Creator interface {
	CreateChunk(ctx context.Context, batch types.BatchID, content []byte) (types.ChunkID, error)
}

// Uploader uploads chunks sequentially, in order.
type Uploader struct {
	creator   Creator
	chunkSize int

	bytesPerSecond int
	limiter        *rate.Limiter
}

// Option configures an Uploader
type Option func(*Uploader)

// WithChunkSize overrides ChunkSize. Non-positive sizes are ignored.
func WithChunkSize(size int) Option {
	return func(u *Uploader) {
		if size > 0 {
			u.chunkSize = size
		}
	}
}

// WithRateLimit caps upload throughput. Zero disables the limit.
func WithRateLimit(bytesPerSecond int) Option {
	return func(u *Uploader) {
		u.bytesPerSecond = bytesPerSecond
	}
}

// NewUploader returns an Uploader writing through creator.
func NewUploader(creator Creator, opts ...Option) *Uploader {
	u := &Uploader{
		creator:   creator,
		chunkSize: ChunkSize,
	}
	for _, opt := range opts {
		opt(u)
	}

	if u.bytesPerSecond > 0 {
		// WaitN rejects requests larger than the burst.
		burst := max(u.bytesPerSecond, u.chunkSize)
		u.limiter = rate.NewLimiter(rate.Limit(u.bytesPerSecond), burst)
	}
	return u
}

// ChunkSize returns the configured chunk size.
func (u *Uploader) ChunkSize() int {
	return u.chunkSize
}

// Count returns the number of chunks size bytes are split into.
func (u *Uploader) Count(size int) int {
	return (size + u.chunkSize - 1) / u.chunkSize
}

// Upload stores data as consecutive chunks of batch and returns their ids in
// order. Empty data yields no chunks. progress, when set, receives the length
// of each chunk once it is stored.
func (u *Uploader) Upload(ctx context.Context, batch types.BatchID, data []byte, progress func(n int)) ([]types.ChunkID, error) {
	ids := make([]types.ChunkID, 0, u.Count(len(data)))

	for off := 0; off < len(data); off += u.chunkSize {
		part := data[off:min(off+u.chunkSize, len(data))]

		if u.limiter != nil {
			if err := u.limiter.WaitN(ctx, len(part)); err != nil {
				return nil, fmt.Errorf("chunk %d: %w", len(ids), err)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		id, err := u.creator.CreateChunk(ctx, batch, part)
		if err != nil {
			ChunkErrors.Inc()
			return nil, fmt.Errorf("chunk %d of batch %s: %w", len(ids), batch, err)
		}
		ChunksUploaded.Inc()
		BytesUploaded.Add(float64(len(part)))
		ChunkDuration.Observe(time.Since(start).Seconds())

		logger.Ctx(ctx).Trace().
			Stringer("batch", batch).
			Stringer("chunk", id).
			Int("bytes", len(part)).
			Msg("chunk: uploaded")

		ids = append(ids, id)
		if progress != nil {
			progress(len(part))
		}
	}

	return ids, nil
}
