// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package compression

import (
	"bytes"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var compressed = []Algorithm{Gzip, Deflate, Brotli, ZSTD}

func TestAlgorithmIsValid(t *testing.T) {
	tests := []struct {
		algo  Algorithm
		valid bool
	}{
		{Identity, true},
		{Gzip, true},
		{Deflate, true},
		{Brotli, true},
		{ZSTD, true},
		{"", false},
		{"lz4", false},
		{"compress", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.algo), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.algo.IsValid())
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	algo, err := ParseAlgorithm(" GZIP ")
	require.NoError(t, err)
	assert.Equal(t, Gzip, algo)

	_, err = ParseAlgorithm("snappy")
	assert.Error(t, err)
}

func TestParseAlgorithms(t *testing.T) {
	algos, err := ParseAlgorithms([]string{"identity", "gzip", "br", "gzip"})
	require.NoError(t, err)
	assert.Equal(t, []Algorithm{Gzip, Brotli}, algos)

	_, err = ParseAlgorithms([]string{"gzip", "lz4"})
	assert.Error(t, err)
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	compressibleData := []byte(strings.Repeat("hello world this is compressible data ", 100))

	for _, algo := range append([]Algorithm{Identity}, compressed...) {
		t.Run(algo.String(), func(t *testing.T) {
			out, err := Compress(algo, compressibleData)
			require.NoError(t, err)

			decompressed, err := Decompress(algo, out)
			require.NoError(t, err)
			assert.Equal(t, compressibleData, decompressed)

			if algo != Identity {
				assert.Less(t, len(out), len(compressibleData),
					"compressed data should be smaller for compressible input")
			}
		})
	}
}

func TestCompressEmptyData(t *testing.T) {
	for _, algo := range compressed {
		t.Run(algo.String(), func(t *testing.T) {
			out, err := Compress(algo, []byte{})
			require.NoError(t, err)
			assert.NotEmpty(t, out, "empty input still has a stream header")

			decompressed, err := Decompress(algo, out)
			require.NoError(t, err)
			assert.Empty(t, decompressed)
		})
	}
}

func TestCompressRandomData(t *testing.T) {
	randomData := make([]byte, 4096)
	_, err := rand.Read(randomData)
	require.NoError(t, err)

	for _, algo := range compressed {
		t.Run(algo.String(), func(t *testing.T) {
			out, err := Compress(algo, randomData)
			require.NoError(t, err)

			decompressed, err := Decompress(algo, out)
			require.NoError(t, err)
			assert.Equal(t, randomData, decompressed)
		})
	}
}

func TestGzipIsDeterministic(t *testing.T) {
	data := []byte(strings.Repeat("same bytes ", 50))

	a, err := Compress(Gzip, data)
	require.NoError(t, err)
	b, err := Compress(Gzip, data)
	require.NoError(t, err)

	assert.Equal(t, a, b, "content hashes depend on stable gzip output")
}

func TestDecompressInvalidData(t *testing.T) {
	invalidData := []byte("this is not compressed data")

	for _, algo := range []Algorithm{Gzip, ZSTD} {
		t.Run(algo.String(), func(t *testing.T) {
			_, err := Decompress(algo, invalidData)
			assert.Error(t, err, "decompressing invalid data should fail")
		})
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := CompressWriter("lz4", io.Discard)
	assert.Error(t, err)

	_, err = DecompressReader("lz4", bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestStreamingCompressDecompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("streaming compression test data ", 1000))

	for _, algo := range append([]Algorithm{Identity}, compressed...) {
		t.Run(algo.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := CompressWriter(algo, &buf)
			require.NoError(t, err)

			// write in uneven pieces
			for off := 0; off < len(data); off += 777 {
				_, err = w.Write(data[off:min(off+777, len(data))])
				require.NoError(t, err)
			}
			require.NoError(t, w.Close())

			r, err := DecompressReader(algo, bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			out, err := io.ReadAll(r)
			require.NoError(t, err)
			require.NoError(t, r.Close())

			assert.Equal(t, data, out)
		})
	}
}

func TestCompressionRatio(t *testing.T) {
	tests := []struct {
		original   int
		compressed int
		expected   float64
	}{
		{1000, 500, 2.0},
		{1000, 250, 4.0},
		{1000, 1000, 1.0},
		{1000, 1100, 1.0},
		{1000, 0, 1.0},
		{0, 0, 1.0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CompressionRatio(tt.original, tt.compressed))
	}
}
