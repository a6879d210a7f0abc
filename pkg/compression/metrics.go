// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"github.com/LeeDigitalWorks/icbucket/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CompressionRatioHist tracks compression ratios (original_size / compressed_size)
	CompressionRatioHist = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "icbucket",
			Subsystem: "compression",
			Name:      "ratio",
			Help:      "Compression ratio (original_size / compressed_size)",
			Buckets:   []float64{1.0, 1.25, 1.5, 2.0, 3.0, 4.0, 5.0, 10.0},
		},
		[]string{"encoding"},
	)

	// CompressionBytesIn tracks original bytes before compression
	CompressionBytesIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "icbucket",
			Subsystem: "compression",
			Name:      "bytes_in_total",
			Help:      "Total bytes before compression (original size)",
		},
		[]string{"encoding"},
	)

	// CompressionBytesOut tracks compressed bytes after compression
	CompressionBytesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "icbucket",
			Subsystem: "compression",
			Name:      "bytes_out_total",
			Help:      "Total bytes after compression (compressed size)",
		},
		[]string{"encoding"},
	)
)

func init() {
	debug.Register(CompressionRatioHist, CompressionBytesIn, CompressionBytesOut)
}

// RecordCompression records metrics for a compression operation
func RecordCompression(algo Algorithm, originalSize, compressedSize int) {
	algoStr := algo.String()

	CompressionBytesIn.WithLabelValues(algoStr).Add(float64(originalSize))
	CompressionBytesOut.WithLabelValues(algoStr).Add(float64(compressedSize))
	CompressionRatioHist.WithLabelValues(algoStr).Observe(CompressionRatio(originalSize, compressedSize))
}
