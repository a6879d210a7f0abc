// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CallsTotal tracks canister API calls by method and result code
	CallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "calls_total",
		Help:      "Total number of canister calls handled",
	}, []string{"method", "code"}) // code: "ok" or a reject code

	CallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "call_duration_seconds",
		Help:      "Time spent handling a canister call",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method"})

	OpenBatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "open_batches",
		Help:      "Number of batches created and not yet committed",
	})

	ChunksStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "chunks_stored_total",
		Help:      "Total number of chunks received",
	})

	ChunkBytesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "chunk_bytes_stored_total",
		Help:      "Total chunk bytes received",
	})

	CommittedOperations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "committed_operations_total",
		Help:      "Total number of operations applied by commit_batch",
	})

	// AssetsServed tracks asset GETs by the encoding that was sent
	AssetsServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "replica",
		Name:      "assets_served_total",
		Help:      "Total number of asset responses by content encoding",
	}, []string{"encoding"})
)

func init() {
	debug.Register(
		CallsTotal,
		CallDuration,
		OpenBatches,
		ChunksStored,
		ChunkBytesStored,
		CommittedOperations,
		AssetsServed,
	)
}
