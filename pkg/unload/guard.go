// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package unload keeps the process from being interrupted while batches are
// still open.
package unload

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
)

// Guard is raised while work that must not be lost is in flight.
// Block and Unblock are idempotent: Block twice then Unblock once leaves the
// guard released.
type Guard interface {
	Block()
	Unblock()
}

// Nop is a Guard that does nothing.
type Nop struct{}

func (Nop) Block()   {}
func (Nop) Unblock() {}

// WarningMessage is logged when an interrupt arrives while blocked.
const WarningMessage = "Jobs are still being executed."

// SignalGuard intercepts SIGINT and SIGTERM while blocked. The first signal
// only logs a warning; a second one calls the abort func. While released the
// default signal behaviour applies.
type SignalGuard struct {
	abort func()

	notify func(c chan<- os.Signal, sig ...os.Signal)
	stop   func(c chan<- os.Signal)

	mu      sync.Mutex
	blocked bool
	sigs    chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSignalGuard returns a released guard. abort runs on the second signal
// received while blocked, typically cancelling the root context. It must
// not call Unblock itself.
func NewSignalGuard(abort func()) *SignalGuard {
	if abort == nil {
		abort = func() { os.Exit(130) }
	}
	return &SignalGuard{
		abort:  abort,
		notify: signal.Notify,
		stop:   signal.Stop,
	}
}

// Blocked reports whether interrupts are currently intercepted.
func (g *SignalGuard) Blocked() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.blocked
}

func (g *SignalGuard) Block() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.blocked {
		return
	}
	g.blocked = true
	g.sigs = make(chan os.Signal, 1)
	g.done = make(chan struct{})
	g.notify(g.sigs, os.Interrupt, syscall.SIGTERM)

	g.wg.Add(1)
	go g.watch(g.sigs, g.done)
	logger.Trace().Msg("unload: blocked")
}

func (g *SignalGuard) Unblock() {
	g.mu.Lock()
	if !g.blocked {
		g.mu.Unlock()
		return
	}
	g.blocked = false
	g.stop(g.sigs)
	close(g.done)
	g.mu.Unlock()

	g.wg.Wait()
	logger.Trace().Msg("unload: released")
}

func (g *SignalGuard) watch(sigs <-chan os.Signal, done <-chan struct{}) {
	defer g.wg.Done()

	warned := false
	for {
		select {
		case <-done:
			return
		case sig := <-sigs:
			if !warned {
				warned = true
				logger.Warn().Stringer("signal", sig).Msg(WarningMessage + " Interrupt again to abort them.")
				continue
			}
			logger.Error().Stringer("signal", sig).Msg("unload: aborting open batches")
			g.abort()
			return
		}
	}
}
