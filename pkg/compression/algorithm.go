// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression implements the HTTP content codings an asset canister
// can store next to the identity encoding of an asset.
package compression

import (
	"fmt"
	"strings"
)

// Algorithm is an HTTP content coding name as stored in SetAssetContent.
type Algorithm string

const (
	// Identity stores the bytes unchanged
	Identity Algorithm = "identity"
	// Gzip is the default compressed encoding, understood by every browser
	Gzip Algorithm = "gzip"
	// Deflate is the raw DEFLATE coding
	Deflate Algorithm = "deflate"
	// Brotli compresses better than gzip for text assets
	Brotli Algorithm = "br"
	// ZSTD is the Zstandard coding (RFC 8878)
	ZSTD Algorithm = "zstd"
)

// IsValid returns true if the algorithm is recognized
func (a Algorithm) IsValid() bool {
	switch a {
	case Identity, Gzip, Deflate, Brotli, ZSTD:
		return true
	default:
		return false
	}
}

// String returns the string representation of the algorithm
func (a Algorithm) String() string {
	return string(a)
}

// ParseAlgorithm parses a content coding name. Matching is case-insensitive
// as in Accept-Encoding.
func ParseAlgorithm(s string) (Algorithm, error) {
	algo := Algorithm(strings.ToLower(strings.TrimSpace(s)))
	if !algo.IsValid() {
		return "", fmt.Errorf("unsupported content encoding %q", s)
	}
	return algo, nil
}

// ParseAlgorithms parses a list of coding names, dropping duplicates and
// identity, which is always stored.
func ParseAlgorithms(names []string) ([]Algorithm, error) {
	seen := make(map[Algorithm]bool, len(names))
	out := make([]Algorithm, 0, len(names))
	for _, n := range names {
		algo, err := ParseAlgorithm(n)
		if err != nil {
			return nil, err
		}
		if algo == Identity || seen[algo] {
			continue
		}
		seen[algo] = true
		out = append(out, algo)
	}
	return out, nil
}
