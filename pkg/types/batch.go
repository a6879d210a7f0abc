// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import "strconv"

// BatchID is issued by the canister for each create_batch call. Chunks and
// the operations that reference them belong to exactly one batch.
type BatchID uint64

func (b BatchID) String() string {
	return strconv.FormatUint(uint64(b), 10)
}

// ChunkID is the remote handle for one uploaded chunk. It is only valid in
// the batch it was created under.
type ChunkID uint64

func (c ChunkID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}
