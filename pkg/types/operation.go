// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"
)

// Content encodings understood by asset canisters.
const (
	EncodingIdentity = "identity"
	EncodingGzip     = "gzip"
)

// OperationKind names the variant carried by an Operation.
type OperationKind string

const (
	OpCreateAsset     OperationKind = "CreateAsset"
	OpSetAssetContent OperationKind = "SetAssetContent"
	OpDeleteAsset     OperationKind = "DeleteAsset"
)

var ErrInvalidOperation = errors.New("invalid operation")

type CreateAssetArguments struct {
	Key         string `cbor:"key"`
	ContentType string `cbor:"content_type"`
}

type SetAssetContentArguments struct {
	Key             string    `cbor:"key"`
	ContentEncoding string    `cbor:"content_encoding"`
	SHA256          []byte    `cbor:"sha256,omitempty"`
	ChunkIDs        []ChunkID `cbor:"chunk_ids"`
}

type DeleteAssetArguments struct {
	Key string `cbor:"key"`
}

// Operation is one mutation inside a batch commit. Exactly one field is set;
// on the wire it is a single-key map named after the variant.
type Operation struct {
	CreateAsset     *CreateAssetArguments     `cbor:"CreateAsset,omitempty"`
	SetAssetContent *SetAssetContentArguments `cbor:"SetAssetContent,omitempty"`
	DeleteAsset     *DeleteAssetArguments     `cbor:"DeleteAsset,omitempty"`
}

func CreateAsset(key, contentType string) Operation {
	return Operation{CreateAsset: &CreateAssetArguments{Key: key, ContentType: contentType}}
}

func SetAssetContent(key, encoding string, sha256 []byte, chunks []ChunkID) Operation {
	return Operation{SetAssetContent: &SetAssetContentArguments{
		Key:             key,
		ContentEncoding: encoding,
		SHA256:          sha256,
		ChunkIDs:        chunks,
	}}
}

func DeleteAsset(key string) Operation {
	return Operation{DeleteAsset: &DeleteAssetArguments{Key: key}}
}

// Kind returns the variant name, or "" for an empty operation.
func (o Operation) Kind() OperationKind {
	switch {
	case o.CreateAsset != nil:
		return OpCreateAsset
	case o.SetAssetContent != nil:
		return OpSetAssetContent
	case o.DeleteAsset != nil:
		return OpDeleteAsset
	}
	return ""
}

// Key returns the asset key the operation applies to.
func (o Operation) Key() string {
	switch {
	case o.CreateAsset != nil:
		return o.CreateAsset.Key
	case o.SetAssetContent != nil:
		return o.SetAssetContent.Key
	case o.DeleteAsset != nil:
		return o.DeleteAsset.Key
	}
	return ""
}

// Validate checks that exactly one variant is set and carries a key.
func (o Operation) Validate() error {
	n := 0
	for _, set := range []bool{o.CreateAsset != nil, o.SetAssetContent != nil, o.DeleteAsset != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("%w: %d variants set", ErrInvalidOperation, n)
	}
	if o.Key() == "" {
		return fmt.Errorf("%w: %s without key", ErrInvalidOperation, o.Kind())
	}
	if o.SetAssetContent != nil && o.SetAssetContent.ContentEncoding == "" {
		return fmt.Errorf("%w: SetAssetContent %q without encoding", ErrInvalidOperation, o.Key())
	}
	return nil
}

func (o Operation) String() string {
	if o.SetAssetContent != nil {
		return fmt.Sprintf("%s(%s, %s, %d chunks)", o.Kind(), o.Key(), o.SetAssetContent.ContentEncoding, len(o.SetAssetContent.ChunkIDs))
	}
	return fmt.Sprintf("%s(%s)", o.Kind(), o.Key())
}
