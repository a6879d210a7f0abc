// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"net/url"
	"path"
	"strings"
)

// KeepFile is the empty asset that materialises a directory.
const KeepFile = ".keep"

// EmptyContentType marks directory placeholder assets.
const EmptyContentType = "empty"

// AssetEncodingDetails describes one stored encoding of an asset.
type AssetEncodingDetails struct {
	ContentEncoding string `cbor:"content_encoding" json:"content_encoding"`
	SHA256          []byte `cbor:"sha256,omitempty" json:"sha256,omitempty"`
	Length          uint64 `cbor:"length" json:"length"`
	Modified        int64  `cbor:"modified" json:"modified"`
}

// AssetDetails is one entry of the canister's list() response.
type AssetDetails struct {
	Key         string                 `cbor:"key" json:"key"`
	ContentType string                 `cbor:"content_type" json:"content_type"`
	Encodings   []AssetEncodingDetails `cbor:"encodings" json:"encodings"`
}

// UploadingState tracks an upload in progress. Both fields are
// IndeterminateBytes until the encoded size is known.
type UploadingState struct {
	UploadedBytes          int64
	TotalBytesToBeUploaded int64
}

// IndeterminateBytes marks an upload whose size is not known yet.
const IndeterminateBytes = -1

// Indeterminate returns the placeholder state for a freshly queued upload.
func Indeterminate() *UploadingState {
	return &UploadingState{UploadedBytes: IndeterminateBytes, TotalBytesToBeUploaded: IndeterminateBytes}
}

func (u *UploadingState) IsIndeterminate() bool {
	return u != nil && u.TotalBytesToBeUploaded < 0
}

// Asset is the client-side view of a stored or pending asset.
type Asset struct {
	AssetDetails

	URL *url.URL
	// Uploading is nil once the asset is settled.
	Uploading *UploadingState
}

// Size returns the identity encoding length, or the first encoding's length.
func (a Asset) Size() uint64 {
	for _, e := range a.Encodings {
		if e.ContentEncoding == "identity" {
			return e.Length
		}
	}
	if len(a.Encodings) > 0 {
		return a.Encodings[0].Length
	}
	return 0
}

// Name returns the last path segment of the key.
func (a Asset) Name() string {
	return path.Base(a.Key)
}

// Dir returns the directory key containing the asset, with a trailing slash.
func (a Asset) Dir() string {
	dir := path.Dir(a.Key)
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir
}

// Clone returns a copy that shares no mutable state with a.
func (a Asset) Clone() Asset {
	c := a
	if a.Encodings != nil {
		c.Encodings = append([]AssetEncodingDetails(nil), a.Encodings...)
	}
	if a.URL != nil {
		u := *a.URL
		c.URL = &u
	}
	if a.Uploading != nil {
		u := *a.Uploading
		c.Uploading = &u
	}
	return c
}
