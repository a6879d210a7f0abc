// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bytes"
	"fmt"
	"io"
)

// Compress compresses data using the specified algorithm.
// Returns the original data unchanged for Identity.
func Compress(algo Algorithm, data []byte) ([]byte, error) {
	if algo == Identity || algo == "" {
		return data, nil
	}

	var buf bytes.Buffer
	w, err := CompressWriter(algo, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, fmt.Errorf("%s compress: %w", algo, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%s compress: %w", algo, err)
	}

	RecordCompression(algo, len(data), buf.Len())
	return buf.Bytes(), nil
}

// Decompress decompresses data using the specified algorithm.
// Returns the original data unchanged for Identity.
func Decompress(algo Algorithm, data []byte) ([]byte, error) {
	if algo == Identity || algo == "" {
		return data, nil
	}

	r, err := DecompressReader(algo, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s decompress: %w", algo, err)
	}
	return out, nil
}

// CompressWriter wraps a writer to compress data as it's written.
// The returned WriteCloser must be closed when done to flush remaining data;
// closing it does not close w.
func CompressWriter(algo Algorithm, w io.Writer) (io.WriteCloser, error) {
	switch algo {
	case Identity, "":
		return &nopWriteCloser{w}, nil
	case Gzip:
		return newGzipWriter(w), nil
	case Deflate:
		return newDeflateWriter(w)
	case Brotli:
		return newBrotliWriter(w), nil
	case ZSTD:
		return newZSTDCompressWriter(w), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", algo)
	}
}

// DecompressReader wraps a reader to decompress data as it's read.
// The returned ReadCloser must be closed when done.
func DecompressReader(algo Algorithm, r io.Reader) (io.ReadCloser, error) {
	switch algo {
	case Identity, "":
		return io.NopCloser(r), nil
	case Gzip:
		return newGzipReader(r)
	case Deflate:
		return newDeflateReader(r), nil
	case Brotli:
		return newBrotliReader(r), nil
	case ZSTD:
		return newZSTDDecompressReader(r)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", algo)
	}
}

// CompressionRatio calculates the compression ratio (original / compressed).
// Returns 1.0 if compressed size is zero or larger than original.
func CompressionRatio(originalSize, compressedSize int) float64 {
	if compressedSize <= 0 || compressedSize >= originalSize {
		return 1.0
	}
	return float64(originalSize) / float64(compressedSize)
}

// nopWriteCloser wraps a Writer to add a no-op Close method
type nopWriteCloser struct {
	io.Writer
}

func (w *nopWriteCloser) Close() error {
	return nil
}
