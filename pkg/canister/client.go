// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package canister

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"github.com/google/uuid"
)

// RequestIDHeader carries a per-call id for correlating client and replica logs.
const RequestIDHeader = "X-Request-Id"

// maxErrorBody bounds how much of a reject body is read.
const maxErrorBody = 64 * 1024

// CallPath returns the path a method of canister id is called on.
func CallPath(id types.CanisterID, method string) string {
	return "/api/v2/canister/" + id.String() + "/call/" + method
}

// Client calls an asset canister over HTTP with CBOR bodies.
type Client struct {
	endpoint *url.URL
	id       types.CanisterID
	http     *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient returns a client for canister id behind endpoint
// (e.g. "http://localhost:8000").
func NewClient(endpoint string, id types.CanisterID, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("endpoint %q: scheme must be http or https", endpoint)
	}

	c := &Client{
		endpoint: u,
		id:       id,
		http: &http.Client{
			Timeout: 5 * time.Minute,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CanisterID returns the canister this client talks to.
func (c *Client) CanisterID() types.CanisterID {
	return c.id
}

func (c *Client) List(ctx context.Context) ([]types.AssetDetails, error) {
	var out []types.AssetDetails
	if err := c.call(ctx, MethodList, ListRequest{}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBatch(ctx context.Context) (types.BatchID, error) {
	var out CreateBatchResponse
	if err := c.call(ctx, MethodCreateBatch, CreateBatchRequest{}, &out); err != nil {
		return 0, err
	}
	return out.BatchID, nil
}

func (c *Client) CreateChunk(ctx context.Context, batch types.BatchID, content []byte) (types.ChunkID, error) {
	var out CreateChunkResponse
	if err := c.call(ctx, MethodCreateChunk, CreateChunkRequest{BatchID: batch, Content: content}, &out); err != nil {
		return 0, err
	}
	return out.ChunkID, nil
}

func (c *Client) CommitBatch(ctx context.Context, batch types.BatchID, operations []types.Operation) error {
	return c.call(ctx, MethodCommitBatch, CommitBatchRequest{BatchID: batch, Operations: operations}, nil)
}

func (c *Client) Status(ctx context.Context) (types.CanisterStatus, error) {
	var out types.CanisterStatus
	err := c.call(ctx, MethodStatus, struct{}{}, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method string, req, resp any) error {
	body, err := Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", method, err)
	}

	u := c.endpoint.JoinPath(CallPath(c.id, method))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set("Content-Type", ContentType)
	httpReq.Header.Set("Accept", ContentType)
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer httpResp.Body.Close()

	logger.Ctx(ctx).Trace().
		Str("method", method).
		Str("request_id", requestID).
		Int("status", httpResp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("canister: call")

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return decodeReject(method, httpResp)
	}

	if resp == nil {
		io.Copy(io.Discard, httpResp.Body)
		return nil
	}
	if err := Decode(httpResp.Body, resp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	return nil
}

func decodeReject(method string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	rerr := &RemoteError{}
	if err := Unmarshal(raw, rerr); err != nil || rerr.Code == "" {
		rerr.Code = CodeInternal
		rerr.Message = http.StatusText(resp.StatusCode)
	}
	rerr.Method = method
	rerr.Status = resp.StatusCode
	return rerr
}
