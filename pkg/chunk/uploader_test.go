// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCreator struct {
	mu      sync.Mutex
	next    types.ChunkID
	batches []types.BatchID
	chunks  [][]byte
	failAt  int
}

func (c *recordingCreator) CreateChunk(_ context.Context, batch types.BatchID, content []byte) (types.ChunkID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failAt > 0 && len(c.chunks)+1 == c.failAt {
		return 0, errors.New("replica unavailable")
	}
	c.next++
	c.batches = append(c.batches, batch)
	c.chunks = append(c.chunks, append([]byte(nil), content...))
	return c.next, nil
}

func TestUpload_SplitsIntoChunks(t *testing.T) {
	creator := &recordingCreator{}
	u := NewUploader(creator, WithChunkSize(8))

	data := bytes.Repeat([]byte("x"), 2*8+1)
	var progress []int
	ids, err := u.Upload(context.Background(), 5, data, func(n int) {
		progress = append(progress, n)
	})
	require.NoError(t, err)

	assert.Equal(t, []types.ChunkID{1, 2, 3}, ids)
	assert.Equal(t, []int{8, 8, 1}, progress)
	assert.Equal(t, []types.BatchID{5, 5, 5}, creator.batches)
	assert.Equal(t, data, bytes.Join(creator.chunks, nil))
}

func TestUpload_DefaultChunkSize(t *testing.T) {
	creator := &recordingCreator{}
	u := NewUploader(creator)
	require.Equal(t, ChunkSize, u.ChunkSize())

	data := make([]byte, 2*ChunkSize+1)
	total := 0
	ids, err := u.Upload(context.Background(), 1, data, func(n int) { total += n })
	require.NoError(t, err)

	assert.Len(t, ids, 3)
	assert.Equal(t, len(data), total)
	assert.Len(t, creator.chunks[2], 1)
}

func TestUpload_Empty(t *testing.T) {
	creator := &recordingCreator{}
	u := NewUploader(creator)

	called := false
	ids, err := u.Upload(context.Background(), 1, nil, func(int) { called = true })
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.False(t, called)
	assert.Empty(t, creator.chunks)
}

func TestUpload_StopsAtFirstError(t *testing.T) {
	creator := &recordingCreator{failAt: 2}
	u := NewUploader(creator, WithChunkSize(4))

	var progress int
	_, err := u.Upload(context.Background(), 1, make([]byte, 12), func(n int) { progress += n })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica unavailable")
	assert.Len(t, creator.chunks, 1)
	assert.Equal(t, 4, progress)
}

func TestUpload_Canceled(t *testing.T) {
	creator := &recordingCreator{}
	u := NewUploader(creator, WithChunkSize(4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := u.Upload(ctx, 1, make([]byte, 8), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, creator.chunks)
}

func TestCount(t *testing.T) {
	u := NewUploader(&recordingCreator{}, WithChunkSize(10))

	tests := []struct {
		size int
		want int
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{21, 3},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, u.Count(tt.size), "size %d", tt.size)
	}
}

func TestUpload_RateLimit_Synctest(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		creator := &recordingCreator{}
		u := NewUploader(creator, WithChunkSize(10), WithRateLimit(10))

		start := time.Now()
		ids, err := u.Upload(context.Background(), 1, make([]byte, 30), nil)
		require.NoError(t, err)
		assert.Len(t, ids, 3)

		// first chunk is covered by the burst, the other two wait a second each
		elapsed := time.Since(start)
		assert.GreaterOrEqual(t, elapsed, 1900*time.Millisecond)
		assert.Less(t, elapsed, 3*time.Second)
	})
}
