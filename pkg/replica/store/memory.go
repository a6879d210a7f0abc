// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/google/btree"
)

const btreeDegree = 16

// Memory keeps assets in one ordered B-tree per canister.
type Memory struct {
	mu    sync.RWMutex
	trees map[types.CanisterID]*btree.BTreeG[*Asset]
}

func NewMemory() *Memory {
	return &Memory{trees: make(map[types.CanisterID]*btree.BTreeG[*Asset])}
}

func assetLess(a, b *Asset) bool {
	return strings.Compare(a.Key, b.Key) < 0
}

func (m *Memory) Get(_ context.Context, id types.CanisterID, key string) (*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trees[id]
	if !ok {
		return nil, ErrNotFound
	}
	a, ok := t.Get(&Asset{Key: key})
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *Memory) List(_ context.Context, id types.CanisterID) ([]*Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.trees[id]
	if !ok {
		return nil, nil
	}
	out := make([]*Asset, 0, t.Len())
	t.Ascend(func(a *Asset) bool {
		out = append(out, a.Clone())
		return true
	})
	return out, nil
}

func (m *Memory) Apply(_ context.Context, id types.CanisterID, puts []*Asset, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trees[id]
	if !ok {
		t = btree.NewG(btreeDegree, assetLess)
		m.trees[id] = t
	}
	for _, key := range deletes {
		t.Delete(&Asset{Key: key})
	}
	for _, a := range puts {
		t.ReplaceOrInsert(a.Clone())
	}
	return nil
}

func (m *Memory) Close() error {
	return nil
}
