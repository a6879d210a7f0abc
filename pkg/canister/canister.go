// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package canister defines the remote asset canister interface and an HTTP
// client for it.
package canister

import (
	"context"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

// AssetCanister is the subset of the asset canister interface the client
// drives. Implementations must be safe for concurrent use.
type AssetCanister interface {
	// List returns the full inventory of stored assets.
	List(ctx context.Context) ([]types.AssetDetails, error)
	// CreateBatch opens a batch that chunks can be uploaded into.
	CreateBatch(ctx context.Context) (types.BatchID, error)
	// CreateChunk stores content under batch and returns its handle.
	CreateChunk(ctx context.Context, batch types.BatchID, content []byte) (types.ChunkID, error)
	// CommitBatch applies operations atomically and closes the batch.
	CommitBatch(ctx context.Context, batch types.BatchID, operations []types.Operation) error
}

// Management reports canister status.
type Management interface {
	Status(ctx context.Context) (types.CanisterStatus, error)
}

// Method names as they appear in call URLs.
const (
	MethodList        = "list"
	MethodCreateBatch = "create_batch"
	MethodCreateChunk = "create_chunk"
	MethodCommitBatch = "commit_batch"
	MethodStatus      = "canister_status"
)

// Request and response bodies.
type (
	ListRequest struct{}

	CreateBatchRequest  struct{}
	CreateBatchResponse struct {
		BatchID types.BatchID `cbor:"batch_id"`
	}

	CreateChunkRequest struct {
		BatchID types.BatchID `cbor:"batch_id"`
		Content []byte        `cbor:"content"`
	}
	CreateChunkResponse struct {
		ChunkID types.ChunkID `cbor:"chunk_id"`
	}

	CommitBatchRequest struct {
		BatchID    types.BatchID     `cbor:"batch_id"`
		Operations []types.Operation `cbor:"operations"`
	}
)
