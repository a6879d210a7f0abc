// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCanister(t *testing.T) CanisterID {
	t.Helper()
	id, err := CanisterIDFromBytes([]byte{0, 0, 0, 0, 0, 0, 0, 1, 1, 1})
	require.NoError(t, err)
	return id
}

func TestCanisterURL(t *testing.T) {
	id := testCanister(t)

	local := CanisterURL(id, LocalHost, false)
	assert.Equal(t, "http://"+id.String()+".localhost:8000/", local.String())

	host, secure := NetworkIC.Host()
	prod := CanisterURL(id, host, secure)
	assert.Equal(t, "https://"+id.String()+".ic0.app/", prod.String())
}

func TestAssetURL(t *testing.T) {
	base := CanisterURL(testCanister(t), LocalHost, false)

	tests := []struct {
		key  string
		path string
	}{
		{"/index.html", "/index.html"},
		{"/Docs/.keep", "/Docs/.keep"},
		{"/My Docs/a b.txt", "/My%20Docs/a%20b.txt"},
		{"/q?/x#y", "/q%3F/x%23y"},
		{"/a%b", "/a%25b"},
		{"nested/file", "/nested/file"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			u := AssetURL(base, tt.key)
			assert.Equal(t, tt.path, u.EscapedPath())
			assert.Equal(t, base.Host, u.Host)

			want := tt.key
			if want[0] != '/' {
				want = "/" + want
			}
			assert.Equal(t, want, KeyFromURL(u))
		})
	}
}

func TestDirectoryAndChildURL(t *testing.T) {
	base := CanisterURL(testCanister(t), LocalHost, false)

	root := DirectoryURL(base, "/")
	assert.Equal(t, "/", KeyFromURL(root))
	assert.Equal(t, "/a.txt", KeyFromURL(ChildURL(root, "a.txt")))

	docs := DirectoryURL(base, "/My Docs")
	assert.Equal(t, "/My%20Docs/", docs.EscapedPath())
	assert.Equal(t, "/My Docs/New Folder", KeyFromURL(ChildURL(docs, "New Folder")))
}

func TestCanisterFromHost(t *testing.T) {
	id := testCanister(t)

	got, err := CanisterFromHost(id.String() + ".localhost:8000")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = CanisterFromHost("localhost:8000")
	assert.ErrorIs(t, err, ErrInvalidCanisterID)
}
