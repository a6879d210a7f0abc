// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package content turns a file's bytes into the set of encodings an asset
// canister stores for it, each with the SHA-256 the canister verifies.
package content

import (
	"bytes"
	"fmt"
	"hash"
	"io"

	"github.com/LeeDigitalWorks/icbucket/pkg/compression"

	"github.com/minio/sha256-simd"
)

// DefaultEncodings are stored next to identity when none are configured.
var DefaultEncodings = []compression.Algorithm{compression.Gzip}

// compressWriter is replaced in tests.
var compressWriter = compression.CompressWriter

// Encoded is one representation of an asset's content.
type Encoded struct {
	Encoding compression.Algorithm
	Data     []byte
	SHA256   []byte
}

// Encoder produces the identity encoding plus a fixed set of compressed ones.
type Encoder struct {
	encodings []compression.Algorithm
}

// NewEncoder returns an Encoder for the given compressed encodings.
// Identity is always produced first; with no arguments DefaultEncodings apply.
func NewEncoder(encodings ...compression.Algorithm) *Encoder {
	if len(encodings) == 0 {
		encodings = DefaultEncodings
	}
	out := make([]compression.Algorithm, 0, len(encodings))
	for _, e := range encodings {
		if e != compression.Identity {
			out = append(out, e)
		}
	}
	return &Encoder{encodings: out}
}

// Encodings returns the encodings produced, identity first.
func (e *Encoder) Encodings() []compression.Algorithm {
	return append([]compression.Algorithm{compression.Identity}, e.encodings...)
}

// sink collects one encoding and its digest.
type sink struct {
	algo compression.Algorithm
	buf  bytes.Buffer
	hash hash.Hash
	w    io.WriteCloser
}

// Encode reads r exactly once. Every read is fanned out to the identity sink
// and to each compressor, so r may be a non-seekable stream.
func (e *Encoder) Encode(r io.Reader) ([]Encoded, error) {
	sinks := make([]*sink, 0, 1+len(e.encodings))
	writers := make([]io.Writer, 0, cap(sinks))

	for _, algo := range e.Encodings() {
		s := &sink{algo: algo, hash: sha256.New()}
		w, err := compressWriter(algo, io.MultiWriter(&s.buf, s.hash))
		if err != nil {
			closeSinks(sinks)
			return nil, err
		}
		s.w = w
		sinks = append(sinks, s)
		writers = append(writers, w)
	}

	if _, err := io.Copy(io.MultiWriter(writers...), r); err != nil {
		closeSinks(sinks)
		return nil, fmt.Errorf("read content: %w", err)
	}

	out := make([]Encoded, 0, len(sinks))
	for i, s := range sinks {
		if err := s.w.Close(); err != nil {
			closeSinks(sinks[i+1:])
			return nil, fmt.Errorf("finish %s encoding: %w", s.algo, err)
		}
		out = append(out, Encoded{
			Encoding: s.algo,
			Data:     s.buf.Bytes(),
			SHA256:   s.hash.Sum(nil),
		})
	}

	if len(out) > 1 {
		compression.RecordCompression(out[1].Encoding, len(out[0].Data), len(out[1].Data))
	}
	return out, nil
}

func closeSinks(sinks []*sink) {
	for _, s := range sinks {
		s.w.Close()
	}
}

// Encode is NewEncoder(encodings...).Encode(r).
func Encode(r io.Reader, encodings ...compression.Algorithm) ([]Encoded, error) {
	return NewEncoder(encodings...).Encode(r)
}

// Total is the number of bytes that uploading all encodings transfers.
func Total(encs []Encoded) int64 {
	var n int64
	for _, e := range encs {
		n += int64(len(e.Data))
	}
	return n
}

// Digest returns the SHA-256 of data.
func Digest(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
