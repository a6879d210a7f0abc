// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ChunksUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "chunk",
		Name:      "uploaded_total",
		Help:      "Total number of chunks uploaded",
	})

	BytesUploaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "chunk",
		Name:      "bytes_uploaded_total",
		Help:      "Total chunk bytes uploaded",
	})

	ChunkErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "icbucket",
		Subsystem: "chunk",
		Name:      "errors_total",
		Help:      "Total number of failed chunk uploads",
	})

	// ChunkDuration tracks the latency of a single create_chunk call
	ChunkDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "icbucket",
		Subsystem: "chunk",
		Name:      "upload_duration_seconds",
		Help:      "Time spent uploading one chunk",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
)

func init() {
	debug.Register(ChunksUploaded, BytesUploaded, ChunkErrors, ChunkDuration)
}
