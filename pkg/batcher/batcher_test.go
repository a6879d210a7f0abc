// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type commitCall struct {
	batch types.BatchID
	ops   []types.Operation
}

// fakeCanister scopes chunks to batches the way a canister does.
type fakeCanister struct {
	createDelay time.Duration
	commitDelay time.Duration

	mu         sync.Mutex
	nextBatch  types.BatchID
	nextChunk  types.ChunkID
	chunkOwner map[types.ChunkID]types.BatchID
	creates    int
	commits    []commitCall
	events     []string
	createErr  error
	commitErr  error
}

func newFakeCanister() *fakeCanister {
	return &fakeCanister{chunkOwner: make(map[types.ChunkID]types.BatchID)}
}

func (f *fakeCanister) CreateBatch(ctx context.Context) (types.BatchID, error) {
	time.Sleep(f.createDelay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		f.events = append(f.events, "create failed")
		return 0, f.createErr
	}
	f.nextBatch++
	f.events = append(f.events, fmt.Sprintf("create %d", f.nextBatch))
	return f.nextBatch, nil
}

func (f *fakeCanister) CreateChunk(ctx context.Context, batch types.BatchID, content []byte) (types.ChunkID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChunk++
	f.chunkOwner[f.nextChunk] = batch
	return f.nextChunk, nil
}

func (f *fakeCanister) CommitBatch(ctx context.Context, batch types.BatchID, ops []types.Operation) error {
	time.Sleep(f.commitDelay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits = append(f.commits, commitCall{batch: batch, ops: ops})
	f.events = append(f.events, fmt.Sprintf("commit %d", batch))
	if f.commitErr != nil {
		return f.commitErr
	}
	for _, op := range ops {
		if op.SetAssetContent == nil {
			continue
		}
		for _, id := range op.SetAssetContent.ChunkIDs {
			if f.chunkOwner[id] != batch {
				return fmt.Errorf("chunk %s does not belong to batch %s", id, batch)
			}
		}
	}
	return nil
}

func (f *fakeCanister) snapshot() (int, []commitCall, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, append([]commitCall(nil), f.commits...), append([]string(nil), f.events...)
}

// recordingGuard tracks Block/Unblock with the same idempotent semantics as
// a signal guard.
type recordingGuard struct {
	mu      sync.Mutex
	blocked bool
	calls   []string
}

func (g *recordingGuard) Block() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked = true
	g.calls = append(g.calls, "block")
}

func (g *recordingGuard) Unblock() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.blocked = false
	g.calls = append(g.calls, "unblock")
}

func (g *recordingGuard) isBlocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

func deleteOp(key string) Producer {
	return func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
		return []types.Operation{types.DeleteAsset(key)}, nil
	}
}

func keysOf(ops []types.Operation) []string {
	out := make([]string, 0, len(ops))
	for _, op := range ops {
		out = append(out, op.Key())
	}
	return out
}

func TestBatch_ConcurrentCallsShareOneBatch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.createDelay = time.Second
		b := New(c)
		ctx := context.Background()

		const n = 5
		errs := make(chan error, n)
		for i := range n {
			go func() {
				// later registrations finish their work first
				errs <- b.Batch(ctx, func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
					time.Sleep(time.Duration(n-i) * 100 * time.Millisecond)
					return []types.Operation{types.DeleteAsset(fmt.Sprintf("/%d", i))}, nil
				})
			}()
			synctest.Wait()
		}

		for range n {
			require.NoError(t, <-errs)
		}

		creates, commits, _ := c.snapshot()
		assert.Equal(t, 1, creates)
		require.Len(t, commits, 1)
		assert.Equal(t, []string{"/0", "/1", "/2", "/3", "/4"}, keysOf(commits[0].ops))
	})
}

func TestBatch_OrdersByRegistrationTime(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.createDelay = time.Second
		b := New(c)
		ctx := context.Background()

		errs := make(chan error, 2)
		go func() {
			errs <- b.Batch(ctx, func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
				time.Sleep(time.Minute)
				return []types.Operation{types.DeleteAsset("/first")}, nil
			})
		}()
		time.Sleep(100 * time.Millisecond)
		go func() {
			errs <- b.Batch(ctx, deleteOp("/second"))
		}()

		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		_, commits, _ := c.snapshot()
		require.Len(t, commits, 1)
		assert.Equal(t, []string{"/first", "/second"}, keysOf(commits[0].ops))
	})
}

func TestBatch_ChunksStayInTheirBatch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.commitDelay = time.Second
		b := New(c)
		ctx := context.Background()

		upload := func(key string) Producer {
			return func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
				chunk, err := c.CreateChunk(ctx, id, []byte(key))
				if err != nil {
					return nil, err
				}
				return []types.Operation{
					types.CreateAsset(key, "text/plain"),
					types.SetAssetContent(key, types.EncodingIdentity, nil, []types.ChunkID{chunk}),
				}, nil
			}
		}

		errs := make(chan error, 2)
		go func() { errs <- b.Batch(ctx, upload("/a")) }()
		// wait until the first batch is committing
		time.Sleep(500 * time.Millisecond)
		go func() { errs <- b.Batch(ctx, upload("/b")) }()

		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		creates, commits, events := c.snapshot()
		assert.Equal(t, 2, creates)
		require.Len(t, commits, 2)
		assert.Equal(t, []string{"/a", "/a"}, keysOf(commits[0].ops))
		assert.Equal(t, []string{"/b", "/b"}, keysOf(commits[1].ops))
		assert.NotEqual(t, commits[0].batch, commits[1].batch)

		// the second batch is only opened after the first one settled
		assert.Equal(t, []string{"create 1", "commit 1", "create 2", "commit 2"}, events)
	})
}

func TestBatch_ProducerFailureDoesNotStarve(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.createDelay = time.Second
		b := New(c)
		ctx := context.Background()
		boom := errors.New("encode failed")

		errs := make(chan error, 2)
		go func() {
			errs <- b.Batch(ctx, func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
				return nil, boom
			})
		}()
		synctest.Wait()
		ok := make(chan error, 1)
		go func() {
			ok <- b.Batch(ctx, func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
				time.Sleep(time.Second)
				return []types.Operation{types.DeleteAsset("/kept")}, nil
			})
		}()

		assert.ErrorIs(t, <-errs, boom)
		require.NoError(t, <-ok)

		_, commits, _ := c.snapshot()
		require.Len(t, commits, 1)
		assert.Equal(t, []string{"/kept"}, keysOf(commits[0].ops))
	})
}

func TestBatch_ProducerPanicStillLeaves(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		guard := &recordingGuard{}
		b := New(c, WithGuard(guard))
		ctx := context.Background()

		func() {
			defer func() { assert.NotNil(t, recover()) }()
			b.Batch(ctx, func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
				panic("producer bug")
			})
		}()

		require.NoError(t, b.Batch(ctx, deleteOp("/after")))
		assert.False(t, guard.isBlocked())

		creates, commits, _ := c.snapshot()
		assert.Equal(t, 2, creates)
		require.Len(t, commits, 1)
		assert.Equal(t, []string{"/after"}, keysOf(commits[0].ops))
	})
}

func TestBatch_CreateBatchFailure(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.createDelay = time.Second
		c.createErr = errors.New("out of cycles")
		guard := &recordingGuard{}
		b := New(c, WithGuard(guard))
		ctx := context.Background()

		errs := make(chan error, 3)
		for _, key := range []string{"/a", "/b", "/c"} {
			go func() { errs <- b.Batch(ctx, deleteOp(key)) }()
		}
		for range 3 {
			err := <-errs
			assert.ErrorIs(t, err, c.createErr)
		}

		creates, commits, _ := c.snapshot()
		assert.Equal(t, 1, creates)
		assert.Empty(t, commits)
		assert.False(t, guard.isBlocked())

		// a fresh batch opens once the remote recovers
		c.mu.Lock()
		c.createErr = nil
		c.mu.Unlock()
		require.NoError(t, b.Batch(ctx, deleteOp("/d")))

		creates, commits, _ = c.snapshot()
		assert.Equal(t, 2, creates)
		require.Len(t, commits, 1)
	})
}

func TestBatch_CommitFailureReleasesGuard(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.commitErr = errors.New("asset exists")
		guard := &recordingGuard{}
		b := New(c, WithGuard(guard))
		ctx := context.Background()

		err := b.Batch(ctx, deleteOp("/a"))
		assert.ErrorIs(t, err, c.commitErr)
		assert.False(t, guard.isBlocked())

		c.mu.Lock()
		c.commitErr = nil
		c.mu.Unlock()
		require.NoError(t, b.Batch(ctx, deleteOp("/a")))

		_, commits, _ := c.snapshot()
		require.Len(t, commits, 2)
		assert.NotEqual(t, commits[0].batch, commits[1].batch)
	})
}

func TestBatch_GuardHeldWhileAnotherBatchOpen(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.commitDelay = time.Second
		guard := &recordingGuard{}
		b := New(c, WithGuard(guard))
		ctx := context.Background()

		first := make(chan error, 1)
		go func() { first <- b.Batch(ctx, deleteOp("/a")) }()
		synctest.Wait()
		assert.True(t, guard.isBlocked())

		// the first batch is committing; this opens a second one
		second := make(chan error, 1)
		go func() { second <- b.Batch(ctx, deleteOp("/b")) }()

		require.NoError(t, <-first)
		assert.True(t, guard.isBlocked(), "guard released while a batch is still open")

		require.NoError(t, <-second)
		assert.False(t, guard.isBlocked())
	})
}

func TestBatch_EmptyOperationsSkipCommit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		b := New(c)

		err := b.Batch(context.Background(), func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
			return nil, nil
		})
		require.NoError(t, err)

		creates, commits, _ := c.snapshot()
		assert.Equal(t, 1, creates)
		assert.Empty(t, commits)
	})
}

func TestBatch_OnSettledRunsBeforeRelease(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		var mu sync.Mutex
		var settled []string
		b := New(c, WithOnSettled(func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			settled = append(settled, "option")
			return nil
		}))
		b.OnSettled(func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			settled = append(settled, "hook")
			return errors.New("refetch failed")
		})

		require.NoError(t, b.Batch(context.Background(), deleteOp("/a")))

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"option", "hook"}, settled)
	})
}

func TestBatch_OnSettledRemove(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		b := New(c)

		var calls atomic.Int32
		remove := b.OnSettled(func(ctx context.Context) error {
			calls.Add(1)
			return nil
		})
		require.Equal(t, 1, b.Hooks())

		require.NoError(t, b.Batch(context.Background(), deleteOp("/a")))
		assert.EqualValues(t, 1, calls.Load())

		remove()
		remove()
		assert.Equal(t, 0, b.Hooks())

		require.NoError(t, b.Batch(context.Background(), deleteOp("/b")))
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestBatch_CanceledParticipantLeaves(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.createDelay = time.Second
		b := New(c)

		ctx, cancel := context.WithCancel(context.Background())
		canceled := make(chan error, 1)
		go func() { canceled <- b.Batch(ctx, deleteOp("/canceled")) }()
		ok := make(chan error, 1)
		go func() { ok <- b.Batch(context.Background(), deleteOp("/ok")) }()

		synctest.Wait()
		cancel()

		assert.ErrorIs(t, <-canceled, context.Canceled)
		require.NoError(t, <-ok)

		_, commits, _ := c.snapshot()
		require.Len(t, commits, 1)
		assert.Equal(t, []string{"/ok"}, keysOf(commits[0].ops))
	})
}

func TestBatch_AllParticipantsCanceled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := newFakeCanister()
		c.createDelay = time.Second
		guard := &recordingGuard{}
		b := New(c, WithGuard(guard))

		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan error, 1)
		go func() { errs <- b.Batch(ctx, deleteOp("/a")) }()
		synctest.Wait()
		cancel()
		assert.ErrorIs(t, <-errs, context.Canceled)

		// the opener still finishes and the batch settles without a commit
		synctest.Wait()
		time.Sleep(2 * time.Second)
		assert.False(t, guard.isBlocked())

		creates, commits, _ := c.snapshot()
		assert.Equal(t, 1, creates)
		assert.Empty(t, commits)
	})
}
