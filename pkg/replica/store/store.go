// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists the assets of local replica canisters.
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

var ErrNotFound = errors.New("asset not found")

// Store holds committed assets, namespaced by canister.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the asset key of canister, or ErrNotFound.
	Get(ctx context.Context, id types.CanisterID, key string) (*Asset, error)
	// List returns every asset of canister ordered by key.
	List(ctx context.Context, id types.CanisterID) ([]*Asset, error)
	// Apply writes puts and removes deletes as one unit.
	Apply(ctx context.Context, id types.CanisterID, puts []*Asset, deletes []string) error
	Close() error
}

// Encoding is one stored representation of an asset.
type Encoding struct {
	ContentEncoding string `cbor:"content_encoding"`
	Content         []byte `cbor:"content"`
	SHA256          []byte `cbor:"sha256"`
	Modified        int64  `cbor:"modified"`
}

// Asset is the stored record of one key.
type Asset struct {
	Key         string     `cbor:"key"`
	ContentType string     `cbor:"content_type"`
	Encodings   []Encoding `cbor:"encodings"`
}

// Encoding returns the stored encoding named name.
func (a *Asset) Encoding(name string) (*Encoding, bool) {
	for i := range a.Encodings {
		if a.Encodings[i].ContentEncoding == name {
			return &a.Encodings[i], true
		}
	}
	return nil, false
}

// SetEncoding adds enc or replaces the encoding of the same name.
func (a *Asset) SetEncoding(enc Encoding) {
	if e, ok := a.Encoding(enc.ContentEncoding); ok {
		*e = enc
		return
	}
	a.Encodings = append(a.Encodings, enc)
}

// Size is the sum of all encoding lengths.
func (a *Asset) Size() int64 {
	var n int64
	for _, e := range a.Encodings {
		n += int64(len(e.Content))
	}
	return n
}

// Details returns the list() view of a.
func (a *Asset) Details() types.AssetDetails {
	d := types.AssetDetails{
		Key:         a.Key,
		ContentType: a.ContentType,
		Encodings:   make([]types.AssetEncodingDetails, 0, len(a.Encodings)),
	}
	for _, e := range a.Encodings {
		d.Encodings = append(d.Encodings, types.AssetEncodingDetails{
			ContentEncoding: e.ContentEncoding,
			SHA256:          e.SHA256,
			Length:          uint64(len(e.Content)),
			Modified:        e.Modified,
		})
	}
	return d
}

// Clone returns a deep copy of a. Content slices are shared; they are never
// mutated once stored.
func (a *Asset) Clone() *Asset {
	c := *a
	c.Encodings = slices.Clone(a.Encodings)
	return &c
}
