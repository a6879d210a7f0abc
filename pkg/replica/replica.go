// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

var ErrUnknownCanister = errors.New("unknown canister")

// Replica hosts asset canisters backed by one Store.
type Replica struct {
	store store.Store
	now   func() time.Time

	// allowed restricts the hosted canisters; nil hosts any id on first use
	allowed map[types.CanisterID]bool

	mu        sync.RWMutex
	canisters map[types.CanisterID]*Canister
}

// Option configures a Replica
type Option func(*Replica)

// WithCanisters only hosts the given canisters.
func WithCanisters(ids ...types.CanisterID) Option {
	return func(r *Replica) {
		if len(ids) == 0 {
			return
		}
		r.allowed = make(map[types.CanisterID]bool, len(ids))
		for _, id := range ids {
			r.allowed[id] = true
		}
	}
}

// WithClock replaces time.Now for asset modification times.
func WithClock(now func() time.Time) Option {
	return func(r *Replica) {
		r.now = now
	}
}

func New(s store.Store, opts ...Option) *Replica {
	r := &Replica{
		store:     s,
		now:       time.Now,
		canisters: make(map[types.CanisterID]*Canister),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Canister returns the hosted canister id, creating it on first use.
func (r *Replica) Canister(id types.CanisterID) (*Canister, error) {
	if r.allowed != nil && !r.allowed[id] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCanister, id)
	}

	r.mu.RLock()
	c, ok := r.canisters[id]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.canisters[id]; ok {
		return c, nil
	}
	c = newCanister(id, r.store, r.now)
	r.canisters[id] = c

	logger.Info().Stringer("canister", id).Msg("replica: canister created")
	return c, nil
}

// Close releases the store.
func (r *Replica) Close() error {
	return r.store.Close()
}
