// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package batcher

import (
	"sync"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

// Registry hands out one Batcher per canister so that every mutation of a
// canister shares its open batch.
type Registry struct {
	mu       sync.RWMutex
	batchers map[types.CanisterID]*Batcher
	opts     []Option
}

// NewRegistry returns a registry whose batchers are built with opts.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		batchers: make(map[types.CanisterID]*Batcher),
		opts:     opts,
	}
}

// ForCanister returns the Batcher of id, creating it on first use with c.
// Later calls for the same id return the same Batcher and ignore c.
func (r *Registry) ForCanister(id types.CanisterID, c Canister) *Batcher {
	r.mu.RLock()
	b, exists := r.batchers[id]
	r.mu.RUnlock()
	if exists {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if b, exists := r.batchers[id]; exists {
		return b
	}

	b = New(c, r.opts...)
	r.batchers[id] = b

	logger.Debug().Stringer("canister", id).Msg("batcher: created")
	return b
}

// Len returns the number of canisters with a Batcher.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.batchers)
}
