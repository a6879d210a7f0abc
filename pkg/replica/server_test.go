// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/replica/store"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, *Replica) {
	t.Helper()
	r := New(store.NewMemory(), opts...)
	srv := httptest.NewServer(NewServer(r))
	t.Cleanup(srv.Close)
	return srv, r
}

func newServerClient(t *testing.T, srv *httptest.Server, id types.CanisterID) *canister.Client {
	t.Helper()
	c, err := canister.NewClient(srv.URL, id)
	require.NoError(t, err)
	return c
}

func TestServer_CallRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newServerClient(t, srv, testID)
	ctx := context.Background()

	b, err := c.CreateBatch(ctx)
	require.NoError(t, err)
	chunk, err := c.CreateChunk(ctx, b, []byte("hello"))
	require.NoError(t, err)
	require.NoError(t, c.CommitBatch(ctx, b, []types.Operation{
		types.CreateAsset("/a.txt", "text/plain"),
		types.SetAssetContent("/a.txt", types.EncodingIdentity, sum([]byte("hello")), []types.ChunkID{chunk}),
	}))

	list, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "/a.txt", list[0].Key)
	assert.Equal(t, sum([]byte("hello")), list[0].Encodings[0].SHA256)

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.AssetCount)
}

func TestServer_RejectCodes(t *testing.T) {
	srv, _ := newTestServer(t, WithCanisters(testID))
	ctx := context.Background()
	c := newServerClient(t, srv, testID)

	err := c.CommitBatch(ctx, 42, nil)
	var rerr *canister.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusNotFound, rerr.Status)
	assert.ErrorIs(t, err, canister.ErrNotFound)

	b, err := c.CreateBatch(ctx)
	require.NoError(t, err)
	err = c.CommitBatch(ctx, b, []types.Operation{{}})
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusBadRequest, rerr.Status)

	_, err = newServerClient(t, srv, otherID).List(ctx)
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, canister.CodeNotFound, rerr.Code)
}

func TestServer_UnknownMethod(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+canister.CallPath(testID, "reboot"), canister.ContentType, bytes.NewReader([]byte{0xa0}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var rerr canister.RemoteError
	require.NoError(t, canister.Decode(resp.Body, &rerr))
	assert.Equal(t, canister.CodeNotFound, rerr.Code)
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// seed stores key with an identity body and, when gz is non-empty, a gzip
// representation.
func seed(t *testing.T, r *Replica, key, contentType, body, gz string) {
	t.Helper()
	c, err := r.Canister(testID)
	require.NoError(t, err)
	ctx := context.Background()

	b, err := c.CreateBatch(ctx)
	require.NoError(t, err)
	id, err := c.CreateChunk(ctx, b, []byte(body))
	require.NoError(t, err)
	ops := []types.Operation{
		types.CreateAsset(key, contentType),
		types.SetAssetContent(key, types.EncodingIdentity, nil, []types.ChunkID{id}),
	}
	if gz != "" {
		gid, err := c.CreateChunk(ctx, b, []byte(gz))
		require.NoError(t, err)
		ops = append(ops, types.SetAssetContent(key, types.EncodingGzip, nil, []types.ChunkID{gid}))
	}
	require.NoError(t, c.CommitBatch(ctx, b, ops))
}

func getAsset(t *testing.T, srv *httptest.Server, path, acceptEncoding string, header ...string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)
	req.Host = testID.String() + ".localhost"
	req.Header.Set("Accept-Encoding", acceptEncoding)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_AssetEncodingSelection(t *testing.T) {
	srv, r := newTestServer(t)
	seed(t, r, "/a.txt", "text/plain", "hello hello hello hello", "GZ")

	resp, body := getAsset(t, srv, "/a.txt", "gzip, deflate")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "GZ", body)
	assert.Equal(t, "gzip", resp.Header.Get("Content-Encoding"))
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Accept-Encoding", resp.Header.Get("Vary"))

	resp, body = getAsset(t, srv, "/a.txt", "identity")
	assert.Equal(t, "hello hello hello hello", body)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	resp, body = getAsset(t, srv, "/a.txt", "gzip;q=0")
	assert.Equal(t, "hello hello hello hello", body)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestServer_AssetSmallerIdentityWins(t *testing.T) {
	srv, r := newTestServer(t)
	seed(t, r, "/a.txt", "text/plain", "hi", "longer gzip output")

	resp, body := getAsset(t, srv, "/a.txt", "gzip")
	assert.Equal(t, "hi", body)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
}

func TestServer_AssetETag(t *testing.T) {
	srv, r := newTestServer(t)
	seed(t, r, "/a.txt", "text/plain", "hello", "")

	resp, _ := getAsset(t, srv, "/a.txt", "identity")
	etag := resp.Header.Get("ETag")
	assert.Equal(t, strconv.Quote(hex.EncodeToString(sum([]byte("hello")))), etag)

	resp, body := getAsset(t, srv, "/a.txt", "identity", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
	assert.Empty(t, body)
}

func TestServer_AssetIndexAndMissing(t *testing.T) {
	srv, r := newTestServer(t)
	seed(t, r, "/index.html", "text/html", "<h1>root</h1>", "")
	seed(t, r, "/Docs/.keep", types.EmptyContentType, "", "")

	resp, body := getAsset(t, srv, "/", "identity")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<h1>root</h1>", body)

	resp, _ = getAsset(t, srv, "/missing.txt", "identity")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = getAsset(t, srv, "/Docs/", "identity")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_AssetByQuery(t *testing.T) {
	srv, r := newTestServer(t)
	seed(t, r, "/a.txt", "text/plain", "hello", "")

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/a.txt?canisterId="+testID.String(), nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
}

func TestParseAcceptEncoding(t *testing.T) {
	tests := []struct {
		header string
		enc    string
		want   bool
	}{
		{"", "identity", true},
		{"", "gzip", false},
		{"gzip", "gzip", true},
		{"gzip;q=0", "gzip", false},
		{"*", "br", true},
		{"*;q=0", "identity", false},
		{"*;q=0, identity", "identity", true},
		{"identity;q=0", "identity", false},
		{" GZIP ; q=0.5", "gzip", true},
	}
	for _, tt := range tests {
		t.Run(tt.header+"/"+tt.enc, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAcceptEncoding(tt.header).allows(tt.enc))
		})
	}
}
