// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation_KindAndKey(t *testing.T) {
	tests := []struct {
		op   Operation
		kind OperationKind
		key  string
	}{
		{CreateAsset("/a.txt", "text/plain"), OpCreateAsset, "/a.txt"},
		{SetAssetContent("/a.txt", EncodingGzip, []byte{1}, []ChunkID{1, 2}), OpSetAssetContent, "/a.txt"},
		{DeleteAsset("/b"), OpDeleteAsset, "/b"},
		{Operation{}, "", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.kind, tt.op.Kind())
		assert.Equal(t, tt.key, tt.op.Key())
	}
}

func TestOperation_Validate(t *testing.T) {
	assert.NoError(t, CreateAsset("/a", "text/plain").Validate())
	assert.NoError(t, DeleteAsset("/a").Validate())

	assert.ErrorIs(t, Operation{}.Validate(), ErrInvalidOperation)
	assert.ErrorIs(t, DeleteAsset("").Validate(), ErrInvalidOperation)
	assert.ErrorIs(t, SetAssetContent("/a", "", nil, nil).Validate(), ErrInvalidOperation)

	both := CreateAsset("/a", "x")
	both.DeleteAsset = &DeleteAssetArguments{Key: "/a"}
	assert.ErrorIs(t, both.Validate(), ErrInvalidOperation)
}

func TestAsset_CloneIsIndependent(t *testing.T) {
	a := Asset{
		AssetDetails: AssetDetails{Key: "/a", Encodings: []AssetEncodingDetails{{ContentEncoding: EncodingIdentity, Length: 5}}},
		Uploading:    Indeterminate(),
	}
	c := a.Clone()
	c.Uploading.UploadedBytes = 3
	c.Encodings[0].Length = 9

	assert.True(t, a.Uploading.IsIndeterminate())
	assert.Equal(t, uint64(5), a.Size())
	assert.Equal(t, "/", a.Dir())
	assert.Equal(t, "a", a.Name())
}
