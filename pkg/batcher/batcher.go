// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package batcher coalesces concurrent asset mutations into one atomic
// commit per canister.
//
// Every call to Batch joins the currently open batch (opening one if
// needed), runs its producer with the batch id and records the operations
// it returns. When the last participant leaves, the operations of all
// participants are committed together, ordered by the time each call was
// registered.
package batcher

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
	"github.com/LeeDigitalWorks/icbucket/pkg/unload"
)

// Canister opens and commits batches.
type Canister interface {
	CreateBatch(ctx context.Context) (types.BatchID, error)
	CommitBatch(ctx context.Context, batch types.BatchID, operations []types.Operation) error
}

// Producer does the work of one participant inside batch id, typically
// uploading chunks, and returns the operations to commit.
type Producer func(ctx context.Context, id types.BatchID) ([]types.Operation, error)

// SettledFunc runs after a batch is committed or has failed, before any
// participant is released.
type SettledFunc func(ctx context.Context) error

type hook struct {
	fn SettledFunc
}

// record holds the operations contributed by one participant.
type record struct {
	at  time.Time
	seq uint64
	ops []types.Operation
}

type batch struct {
	// ready is closed once CreateBatch returned; id or createErr is set.
	ready     chan struct{}
	id        types.BatchID
	createErr error

	refs    int
	records []record
	opened  time.Time

	// done is closed once the batch settled; err is the commit result.
	done chan struct{}
	err  error
}

// Batcher owns the single open batch of one canister.
type Batcher struct {
	canister Canister
	guard    unload.Guard
	now      func() time.Time

	mu      sync.Mutex
	open    *batch
	last    *batch
	seq     uint64
	settled []*hook
}

// Option configures a Batcher
type Option func(*Batcher)

// WithGuard sets the guard raised while a batch is open.
func WithGuard(g unload.Guard) Option {
	return func(b *Batcher) {
		if g != nil {
			b.guard = g
		}
	}
}

// WithOnSettled registers fn to run whenever a batch settles.
func WithOnSettled(fn SettledFunc) Option {
	return func(b *Batcher) {
		b.settled = append(b.settled, &hook{fn: fn})
	}
}

// WithClock replaces time.Now for registration timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Batcher) {
		b.now = now
	}
}

// New returns a Batcher committing through c.
func New(c Canister, opts ...Option) *Batcher {
	b := &Batcher{
		canister: c,
		guard:    unload.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnSettled adds fn to the hooks run whenever a batch settles and returns
// a func that removes it again.
func (b *Batcher) OnSettled(fn SettledFunc) func() {
	h := &hook{fn: fn}

	b.mu.Lock()
	b.settled = append(b.settled, h)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.settled = slices.DeleteFunc(b.settled, func(x *hook) bool { return x == h })
		})
	}
}

// Hooks returns the number of registered settle hooks.
func (b *Batcher) Hooks() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.settled)
}

// Batch runs produce inside the open batch and returns once its operations
// are committed. It fails if the batch could not be opened, if produce
// fails, or if the commit fails. ctx only bounds this call's own wait and
// producer; the batch is committed regardless.
func (b *Batcher) Batch(ctx context.Context, produce Producer) error {
	bt, rec := b.join(ctx)

	if err := b.participate(ctx, bt, rec, produce); err != nil {
		return err
	}

	select {
	case <-bt.done:
		return bt.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// join registers a participant, opening a batch if none is open.
func (b *Batcher) join(ctx context.Context) (*batch, *record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bt := b.open
	if bt == nil {
		bt = b.openLocked(ctx)
	}
	bt.refs++
	OpenParticipants.Inc()

	rec := &record{at: b.now(), seq: b.seq}
	b.seq++
	return bt, rec
}

func (b *Batcher) openLocked(ctx context.Context) *batch {
	prev := b.last
	bt := &batch{
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		opened: b.now(),
	}
	b.open = bt
	b.last = bt
	b.guard.Block()
	BatchesOpened.Inc()

	go b.create(context.WithoutCancel(ctx), bt, prev)
	return bt
}

// create waits for the previous batch to settle, then obtains a batch id.
func (b *Batcher) create(ctx context.Context, bt, prev *batch) {
	if prev != nil {
		<-prev.done
	}

	id, err := b.canister.CreateBatch(ctx)

	b.mu.Lock()
	bt.id = id
	bt.createErr = err
	if err != nil && b.open == bt {
		// later calls must not join a batch that never opened
		b.open = nil
	}
	b.mu.Unlock()
	close(bt.ready)

	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("batcher: create batch failed")
		return
	}
	logger.Ctx(ctx).Debug().Stringer("batch", id).Msg("batcher: opened")
}

// participate waits for the batch id and runs produce. It always leaves the
// batch, recording the operations only when produce succeeded.
func (b *Batcher) participate(ctx context.Context, bt *batch, rec *record, produce Producer) error {
	produced := false
	defer func() {
		b.leave(ctx, bt, rec, produced)
	}()

	select {
	case <-bt.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if bt.createErr != nil {
		return fmt.Errorf("create batch: %w", bt.createErr)
	}

	ops, err := produce(ctx, bt.id)
	if err != nil {
		return err
	}
	rec.ops = ops
	produced = true
	return nil
}

func (b *Batcher) leave(ctx context.Context, bt *batch, rec *record, ok bool) {
	b.mu.Lock()
	if ok {
		bt.records = append(bt.records, *rec)
	}
	bt.refs--
	OpenParticipants.Dec()
	if bt.refs > 0 {
		b.mu.Unlock()
		return
	}
	if b.open == bt {
		b.open = nil
	}
	records := bt.records
	b.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	select {
	case <-bt.ready:
		b.commit(ctx, bt, records)
	default:
		// every participant gave up before the batch id arrived
		go b.commit(ctx, bt, records)
	}
}

// commit sends the operations of all participants in registration order.
func (b *Batcher) commit(ctx context.Context, bt *batch, records []record) {
	<-bt.ready

	err := bt.createErr
	if err == nil {
		slices.SortFunc(records, func(x, y record) int {
			if c := x.at.Compare(y.at); c != 0 {
				return c
			}
			return cmp.Compare(x.seq, y.seq)
		})

		var ops []types.Operation
		for _, r := range records {
			ops = append(ops, r.ops...)
		}

		if len(ops) > 0 {
			start := time.Now()
			err = b.canister.CommitBatch(ctx, bt.id, ops)
			CommitDuration.Observe(time.Since(start).Seconds())
			OperationsPerCommit.Observe(float64(len(ops)))
		}

		log := logger.Ctx(ctx).With().
			Stringer("batch", bt.id).
			Int("participants", len(records)).
			Int("operations", len(ops)).
			Dur("open_for", b.now().Sub(bt.opened)).
			Logger()
		if err != nil {
			log.Warn().Err(err).Msg("batcher: commit failed")
			err = fmt.Errorf("commit batch %s: %w", bt.id, err)
		} else {
			log.Debug().Msg("batcher: committed")
		}
	}

	if err != nil {
		BatchesFailed.Inc()
	} else {
		BatchesCommitted.Inc()
	}
	b.settle(ctx, bt, err)
}

func (b *Batcher) settle(ctx context.Context, bt *batch, err error) {
	b.mu.Lock()
	bt.err = err
	// the guard stays up while a newer batch is open
	if b.open == nil {
		b.guard.Unblock()
	}
	hooks := slices.Clone(b.settled)
	b.mu.Unlock()

	for _, h := range hooks {
		if herr := h.fn(ctx); herr != nil {
			logger.Ctx(ctx).Warn().Err(herr).Msg("batcher: settle hook failed")
		}
	}
	close(bt.done)
}
