// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package replica is a local stand-in for asset canisters. It enforces the
// batch and chunk rules of the real service on top of a Store, and serves
// both the canister API and the stored assets over HTTP.
package replica

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/minio/sha256-simd"
)

// ModuleHash identifies the replica's asset canister implementation.
var ModuleHash = sha256.Sum256([]byte("icbucket-replica-assets-v1"))

type openBatch struct {
	chunks  map[types.ChunkID][]byte
	created time.Time
}

// Canister is one asset canister hosted by the replica.
type Canister struct {
	id    types.CanisterID
	store store.Store
	now   func() time.Time

	// commitMu serialises commits so staged reads stay consistent
	commitMu sync.Mutex

	mu        sync.Mutex
	nextBatch types.BatchID
	nextChunk types.ChunkID
	batches   map[types.BatchID]*openBatch
}

var (
	_ canister.AssetCanister = (*Canister)(nil)
	_ canister.Management    = (*Canister)(nil)
)

func newCanister(id types.CanisterID, s store.Store, now func() time.Time) *Canister {
	return &Canister{
		id:      id,
		store:   s,
		now:     now,
		batches: make(map[types.BatchID]*openBatch),
	}
}

// ID returns the canister id.
func (c *Canister) ID() types.CanisterID {
	return c.id
}

func (c *Canister) List(ctx context.Context) ([]types.AssetDetails, error) {
	assets, err := c.store.List(ctx, c.id)
	if err != nil {
		return nil, canister.Reject(canister.CodeInternal, "list: %v", err)
	}
	out := make([]types.AssetDetails, 0, len(assets))
	for _, a := range assets {
		out = append(out, a.Details())
	}
	return out, nil
}

// Asset returns the stored asset key.
func (c *Canister) Asset(ctx context.Context, key string) (*store.Asset, error) {
	return c.store.Get(ctx, c.id, key)
}

func (c *Canister) CreateBatch(ctx context.Context) (types.BatchID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextBatch++
	c.batches[c.nextBatch] = &openBatch{
		chunks:  make(map[types.ChunkID][]byte),
		created: c.now(),
	}
	OpenBatches.Inc()
	return c.nextBatch, nil
}

func (c *Canister) CreateChunk(ctx context.Context, batch types.BatchID, content []byte) (types.ChunkID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.batches[batch]
	if !ok {
		return 0, canister.Reject(canister.CodeNotFound, "batch %s not found", batch)
	}
	c.nextChunk++
	b.chunks[c.nextChunk] = bytes.Clone(content)
	ChunksStored.Inc()
	ChunkBytesStored.Add(float64(len(content)))
	return c.nextChunk, nil
}

// CommitBatch applies operations in order. Any failing operation rejects the
// whole commit and leaves the stored assets untouched. The batch is closed
// either way.
func (c *Canister) CommitBatch(ctx context.Context, batch types.BatchID, operations []types.Operation) error {
	c.mu.Lock()
	b, ok := c.batches[batch]
	delete(c.batches, batch)
	c.mu.Unlock()
	if !ok {
		return canister.Reject(canister.CodeNotFound, "batch %s not found", batch)
	}
	OpenBatches.Dec()

	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	tx := &commitTx{
		ctx:     ctx,
		c:       c,
		batch:   batch,
		chunks:  b.chunks,
		staged:  make(map[string]*store.Asset),
		deleted: make(map[string]bool),
		now:     c.now().UnixNano(),
	}
	for i, op := range operations {
		if err := tx.apply(op); err != nil {
			var rerr *canister.RemoteError
			if errors.As(err, &rerr) {
				rerr.Message = fmt.Sprintf("operation %d (%s): %s", i, op.Kind(), rerr.Message)
				return rerr
			}
			return canister.Reject(canister.CodeInternal, "operation %d (%s): %v", i, op.Kind(), err)
		}
	}

	puts, deletes := tx.changes()
	if err := c.store.Apply(ctx, c.id, puts, deletes); err != nil {
		return canister.Reject(canister.CodeInternal, "store: %v", err)
	}

	CommittedOperations.Add(float64(len(operations)))
	logger.Ctx(ctx).Debug().
		Stringer("canister", c.id).
		Stringer("batch", batch).
		Int("operations", len(operations)).
		Int("puts", len(puts)).
		Int("deletes", len(deletes)).
		Msg("replica: batch committed")
	return nil
}

func (c *Canister) Status(ctx context.Context) (types.CanisterStatus, error) {
	assets, err := c.store.List(ctx, c.id)
	if err != nil {
		return types.CanisterStatus{}, canister.Reject(canister.CodeInternal, "status: %v", err)
	}
	var size int64
	for _, a := range assets {
		size += a.Size()
	}
	return types.CanisterStatus{
		Status:     "running",
		MemorySize: uint64(size),
		ModuleHash: ModuleHash[:],
		AssetCount: uint64(len(assets)),
	}, nil
}

// commitTx stages the effect of a batch's operations on top of the store.
type commitTx struct {
	ctx    context.Context
	c      *Canister
	batch  types.BatchID
	chunks map[types.ChunkID][]byte
	now    int64

	staged  map[string]*store.Asset
	deleted map[string]bool
	order   []string
}

func (tx *commitTx) lookup(key string) (*store.Asset, error) {
	if a, ok := tx.staged[key]; ok {
		return a, nil
	}
	if tx.deleted[key] {
		return nil, nil
	}
	a, err := tx.c.store.Get(tx.ctx, tx.c.id, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (tx *commitTx) stage(a *store.Asset) {
	if _, ok := tx.staged[a.Key]; !ok {
		tx.order = append(tx.order, a.Key)
	}
	tx.staged[a.Key] = a
	delete(tx.deleted, a.Key)
}

func (tx *commitTx) apply(op types.Operation) error {
	if err := op.Validate(); err != nil {
		return canister.Reject(canister.CodeInvalidArgument, "%v", err)
	}

	key := op.Key()
	existing, err := tx.lookup(key)
	if err != nil {
		return err
	}

	switch {
	case op.CreateAsset != nil:
		if existing != nil {
			return canister.Reject(canister.CodeConflict, "asset %q already exists", key)
		}
		tx.stage(&store.Asset{Key: key, ContentType: op.CreateAsset.ContentType})

	case op.SetAssetContent != nil:
		if existing == nil {
			return canister.Reject(canister.CodeNotFound, "asset %q not found", key)
		}
		args := op.SetAssetContent

		var body bytes.Buffer
		for _, id := range args.ChunkIDs {
			part, ok := tx.chunks[id]
			if !ok {
				return canister.Reject(canister.CodeInvalidArgument, "chunk %s does not belong to batch %s", id, tx.batch)
			}
			body.Write(part)
		}
		sum := sha256.Sum256(body.Bytes())
		if args.SHA256 != nil && !bytes.Equal(args.SHA256, sum[:]) {
			return canister.Reject(canister.CodeInvalidArgument, "sha256 mismatch for %q (%s)", key, args.ContentEncoding)
		}

		next := existing.Clone()
		next.SetEncoding(store.Encoding{
			ContentEncoding: args.ContentEncoding,
			Content:         body.Bytes(),
			SHA256:          sum[:],
			Modified:        tx.now,
		})
		tx.stage(next)

	case op.DeleteAsset != nil:
		if existing == nil {
			return canister.Reject(canister.CodeNotFound, "asset %q not found", key)
		}
		if _, ok := tx.staged[key]; !ok {
			tx.order = append(tx.order, key)
		}
		delete(tx.staged, key)
		tx.deleted[key] = true
	}
	return nil
}

// changes returns the net puts and deletes of the transaction.
func (tx *commitTx) changes() ([]*store.Asset, []string) {
	var puts []*store.Asset
	var deletes []string
	seen := make(map[string]bool, len(tx.order))
	for _, key := range tx.order {
		if seen[key] {
			continue
		}
		seen[key] = true
		if a, ok := tx.staged[key]; ok {
			puts = append(puts, a)
		} else if tx.deleted[key] {
			deletes = append(deletes, key)
		}
	}
	return puts, deletes
}
