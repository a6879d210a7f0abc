// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

var gzipWriterPool = sync.Pool{
	New: func() any {
		w, _ := gzip.NewWriterLevel(nil, gzip.DefaultCompression)
		return w
	},
}

type pooledGzipWriter struct {
	*gzip.Writer
}

func newGzipWriter(w io.Writer) io.WriteCloser {
	gw := gzipWriterPool.Get().(*gzip.Writer)
	gw.Reset(w)
	return &pooledGzipWriter{Writer: gw}
}

func (w *pooledGzipWriter) Close() error {
	err := w.Writer.Close()
	gzipWriterPool.Put(w.Writer)
	return err
}

func newGzipReader(r io.Reader) (io.ReadCloser, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return gr, nil
}

func newDeflateWriter(w io.Writer) (io.WriteCloser, error) {
	fw, err := flate.NewWriter(w, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("deflate writer: %w", err)
	}
	return fw, nil
}

func newDeflateReader(r io.Reader) io.ReadCloser {
	return flate.NewReader(r)
}

func newBrotliWriter(w io.Writer) io.WriteCloser {
	return brotli.NewWriterLevel(w, brotli.DefaultCompression)
}

func newBrotliReader(r io.Reader) io.ReadCloser {
	return io.NopCloser(brotli.NewReader(r))
}
