// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"context"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/minio/sha256-simd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testID, _  = types.CanisterIDFromBytes([]byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1})
	otherID, _ = types.CanisterIDFromBytes([]byte{0, 0, 0, 0, 0, 0, 0, 2, 1, 1})
)

func newTestCanister(t *testing.T) *Canister {
	t.Helper()
	r := New(store.NewMemory(), WithClock(func() time.Time { return time.Unix(100, 0) }))
	t.Cleanup(func() { r.Close() })
	c, err := r.Canister(testID)
	require.NoError(t, err)
	return c
}

func sum(b []byte) []byte {
	s := sha256.Sum256(b)
	return s[:]
}

// upload stores body in a fresh batch and commits a create for key.
func upload(t *testing.T, c *Canister, key, body string) {
	t.Helper()
	ctx := context.Background()
	b, err := c.CreateBatch(ctx)
	require.NoError(t, err)
	chunk, err := c.CreateChunk(ctx, b, []byte(body))
	require.NoError(t, err)
	require.NoError(t, c.CommitBatch(ctx, b, []types.Operation{
		types.CreateAsset(key, "text/plain"),
		types.SetAssetContent(key, types.EncodingIdentity, sum([]byte(body)), []types.ChunkID{chunk}),
	}))
}

func TestCanister_CommitAssemblesChunks(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()

	b, err := c.CreateBatch(ctx)
	require.NoError(t, err)
	c1, err := c.CreateChunk(ctx, b, []byte("hel"))
	require.NoError(t, err)
	c2, err := c.CreateChunk(ctx, b, []byte("lo"))
	require.NoError(t, err)

	require.NoError(t, c.CommitBatch(ctx, b, []types.Operation{
		types.CreateAsset("/a.txt", "text/plain"),
		types.SetAssetContent("/a.txt", types.EncodingIdentity, sum([]byte("hello")), []types.ChunkID{c1, c2}),
	}))

	a, err := c.Asset(ctx, "/a.txt")
	require.NoError(t, err)
	enc, ok := a.Encoding(types.EncodingIdentity)
	require.True(t, ok)
	assert.Equal(t, "hello", string(enc.Content))
	assert.Equal(t, time.Unix(100, 0).UnixNano(), enc.Modified)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint64(5), list[0].Encodings[0].Length)
}

func TestCanister_ForeignChunkRejected(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()

	b1, _ := c.CreateBatch(ctx)
	foreign, err := c.CreateChunk(ctx, b1, []byte("x"))
	require.NoError(t, err)

	b2, _ := c.CreateBatch(ctx)
	err = c.CommitBatch(ctx, b2, []types.Operation{
		types.CreateAsset("/a.txt", "text/plain"),
		types.SetAssetContent("/a.txt", types.EncodingIdentity, nil, []types.ChunkID{foreign}),
	})
	assert.ErrorIs(t, err, canister.ErrInvalidArgument)

	// nothing from the rejected commit is visible
	_, err = c.Asset(ctx, "/a.txt")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// the rejected batch is closed
	_, err = c.CreateChunk(ctx, b2, []byte("y"))
	assert.ErrorIs(t, err, canister.ErrNotFound)
}

func TestCanister_SHA256Mismatch(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()

	b, _ := c.CreateBatch(ctx)
	chunk, _ := c.CreateChunk(ctx, b, []byte("hello"))
	err := c.CommitBatch(ctx, b, []types.Operation{
		types.CreateAsset("/a.txt", "text/plain"),
		types.SetAssetContent("/a.txt", types.EncodingIdentity, sum([]byte("other")), []types.ChunkID{chunk}),
	})
	assert.ErrorIs(t, err, canister.ErrInvalidArgument)

	var rerr *canister.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Message, "operation 1")
}

func TestCanister_CreateConflict(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()
	upload(t, c, "/a.txt", "one")

	b, _ := c.CreateBatch(ctx)
	err := c.CommitBatch(ctx, b, []types.Operation{types.CreateAsset("/a.txt", "text/plain")})
	assert.ErrorIs(t, err, canister.ErrConflict)
}

func TestCanister_DeleteThenCreateInOneBatch(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()
	upload(t, c, "/a.txt", "one")

	b, _ := c.CreateBatch(ctx)
	chunk, _ := c.CreateChunk(ctx, b, []byte("two"))
	require.NoError(t, c.CommitBatch(ctx, b, []types.Operation{
		types.DeleteAsset("/a.txt"),
		types.CreateAsset("/a.txt", "text/markdown"),
		types.SetAssetContent("/a.txt", types.EncodingIdentity, nil, []types.ChunkID{chunk}),
	}))

	a, err := c.Asset(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", a.ContentType)
	enc, _ := a.Encoding(types.EncodingIdentity)
	assert.Equal(t, "two", string(enc.Content))
	assert.Equal(t, sum([]byte("two")), enc.SHA256)
}

func TestCanister_MissingKeys(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()

	b, _ := c.CreateBatch(ctx)
	err := c.CommitBatch(ctx, b, []types.Operation{types.DeleteAsset("/nope")})
	assert.ErrorIs(t, err, canister.ErrNotFound)

	b, _ = c.CreateBatch(ctx)
	err = c.CommitBatch(ctx, b, []types.Operation{
		types.SetAssetContent("/nope", types.EncodingIdentity, nil, nil),
	})
	assert.ErrorIs(t, err, canister.ErrNotFound)

	err = c.CommitBatch(ctx, 999, nil)
	assert.ErrorIs(t, err, canister.ErrNotFound)
}

func TestCanister_FailedCommitAppliesNothing(t *testing.T) {
	c := newTestCanister(t)
	ctx := context.Background()
	upload(t, c, "/keep.txt", "keep")

	b, _ := c.CreateBatch(ctx)
	err := c.CommitBatch(ctx, b, []types.Operation{
		types.DeleteAsset("/keep.txt"),
		types.CreateAsset("/new.txt", "text/plain"),
		types.DeleteAsset("/missing.txt"),
	})
	require.Error(t, err)

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/keep.txt", list[0].Key)
}

func TestCanister_Status(t *testing.T) {
	c := newTestCanister(t)
	upload(t, c, "/a.txt", "hello")
	upload(t, c, "/b.txt", "hi")

	st, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, uint64(2), st.AssetCount)
	assert.Equal(t, uint64(7), st.MemorySize)
	assert.Equal(t, ModuleHash[:], st.ModuleHash)
}

func TestReplica_Canisters(t *testing.T) {
	r := New(store.NewMemory(), WithCanisters(testID))

	a, err := r.Canister(testID)
	require.NoError(t, err)
	b, err := r.Canister(testID)
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = r.Canister(otherID)
	assert.ErrorIs(t, err, ErrUnknownCanister)
}
