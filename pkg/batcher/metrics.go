// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package batcher

import (
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BatchesOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "batcher",
		Name:      "batches_opened_total",
		Help:      "Total number of batches opened",
	})

	BatchesCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "batcher",
		Name:      "batches_committed_total",
		Help:      "Total number of batches committed successfully",
	})

	// BatchesFailed counts batches whose create_batch or commit_batch failed
	BatchesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "batcher",
		Name:      "batches_failed_total",
		Help:      "Total number of batches that failed to open or commit",
	})

	OperationsPerCommit = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "icbucket",
		Subsystem: "batcher",
		Name:      "operations_per_commit",
		Help:      "Number of operations sent in one commit_batch call",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	CommitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "icbucket",
		Subsystem: "batcher",
		Name:      "commit_duration_seconds",
		Help:      "Time spent in commit_batch",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// OpenParticipants tracks calls currently registered in an open batch
	OpenParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "icbucket",
		Subsystem: "batcher",
		Name:      "open_participants",
		Help:      "Number of mutations registered in a batch that has not been committed",
	})
)

func init() {
	debug.Register(
		BatchesOpened,
		BatchesCommitted,
		BatchesFailed,
		OperationsPerCommit,
		CommitDuration,
		OpenParticipants,
	)
}
