// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package bucket implements the user-facing mutations of an asset canister.
// Every mutation updates the asset cache optimistically, joins the
// canister's open batch and rolls the cache back if the batch fails.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/LeeDigitalWorks/icbucket/pkg/batcher"
	"github.com/LeeDigitalWorks/icbucket/pkg/cache"
	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/chunk"
	"github.com/LeeDigitalWorks/icbucket/pkg/compression"
	"github.com/LeeDigitalWorks/icbucket/pkg/content"
	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/tree"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidName = errors.New("invalid name")
	ErrNotFound    = errors.New("not found")
)

// DefaultConcurrency bounds UploadFiles when no limit is configured.
const DefaultConcurrency = 4

// File is one file to upload.
type File struct {
	Name string
	Body io.Reader
	// ContentType is detected from Name and content when empty.
	ContentType string
}

type options struct {
	registry    *batcher.Registry
	encodings   []compression.Algorithm
	chunkOpts   []chunk.Option
	concurrency int
}

// Option configures a Bucket
type Option func(*options)

// WithRegistry shares batchers with other buckets of the same process.
func WithRegistry(r *batcher.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithEncodings sets the compressed encodings stored next to identity.
func WithEncodings(encodings ...compression.Algorithm) Option {
	return func(o *options) {
		o.encodings = encodings
	}
}

// WithChunkOptions configures the chunk uploader.
func WithChunkOptions(opts ...chunk.Option) Option {
	return func(o *options) {
		o.chunkOpts = append(o.chunkOpts, opts...)
	}
}

// WithConcurrency bounds the number of files UploadFiles encodes at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// Bucket is the mutable view of one asset canister.
type Bucket struct {
	id   types.CanisterID
	base *url.URL

	cache       *cache.AssetCache
	batcher     *batcher.Batcher
	uploader    *chunk.Uploader
	encoder     *content.Encoder
	concurrency int

	detach func()
}

// New returns a Bucket for canister id whose assets are served under base.
func New(id types.CanisterID, base *url.URL, c canister.AssetCanister, opts ...Option) *Bucket {
	o := &options{concurrency: DefaultConcurrency}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = batcher.NewRegistry()
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}

	b := &Bucket{
		id:          id,
		base:        base,
		cache:       cache.NewAssetCache(id, base, c),
		batcher:     o.registry.ForCanister(id, c),
		uploader:    chunk.NewUploader(c, o.chunkOpts...),
		encoder:     content.NewEncoder(o.encodings...),
		concurrency: o.concurrency,
	}
	b.detach = b.batcher.OnSettled(b.cache.InvalidateList)
	return b
}

// Close stops the bucket's cache from following batches of the shared
// batcher. The bucket must not be used afterwards.
func (b *Bucket) Close() {
	b.detach()
}

// Cache returns the asset cache kept in sync with the bucket's mutations.
func (b *Bucket) Cache() *cache.AssetCache {
	return b.cache
}

// CanisterID returns the canister the bucket writes to.
func (b *Bucket) CanisterID() types.CanisterID {
	return b.id
}

// URL returns the URL key is served at.
func (b *Bucket) URL(key string) *url.URL {
	return types.AssetURL(b.base, key)
}

// List returns every asset of the canister.
func (b *Bucket) List(ctx context.Context) ([]types.Asset, error) {
	return b.cache.List(ctx)
}

// Tree returns the directory dir with everything below it.
func (b *Bucket) Tree(ctx context.Context, dir string) (*tree.Directory, error) {
	assets, err := b.cache.List(ctx)
	if err != nil {
		return nil, err
	}
	return tree.Collect(assets, types.DirectoryURL(b.base, normalizeDir(dir))), nil
}

// CreateDirectory creates the folder name inside parent by storing an empty
// ".keep" asset in it.
func (b *Bucket) CreateDirectory(ctx context.Context, parent, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	key := normalizeDir(parent) + name + "/" + types.KeepFile

	placeholder := types.Asset{
		AssetDetails: types.AssetDetails{
			Key:         key,
			ContentType: types.EmptyContentType,
			Encodings:   []types.AssetEncodingDetails{},
		},
		URL: b.URL(key),
	}

	snapshot := b.cache.SnapshotList()
	b.cache.AddPlaceholder(placeholder)

	err := b.batcher.Batch(ctx, func(ctx context.Context, _ types.BatchID) ([]types.Operation, error) {
		return []types.Operation{types.CreateAsset(key, types.EmptyContentType)}, nil
	})
	if err != nil {
		b.cache.RestoreList(snapshot)
		b.cache.InvalidateAsset(placeholder.URL)
		return fmt.Errorf("create directory %s: %w", strings.TrimSuffix(key, types.KeepFile), err)
	}

	logger.Ctx(ctx).Debug().Str("key", key).Msg("bucket: directory created")
	return nil
}

// Upload stores f in dir under f.Name, in every configured encoding.
func (b *Bucket) Upload(ctx context.Context, dir string, f File) error {
	if err := validateName(f.Name); err != nil {
		return err
	}
	key := normalizeDir(dir) + f.Name
	u := b.URL(key)

	body := f.Body
	contentType := f.ContentType
	if contentType == "" {
		contentType, body = content.DetectContentType(f.Name, body)
	}

	snapshot := b.cache.SnapshotList()
	b.cache.AddPlaceholder(types.Asset{
		AssetDetails: types.AssetDetails{
			Key:         key,
			ContentType: contentType,
			Encodings:   []types.AssetEncodingDetails{},
		},
		URL:       u,
		Uploading: types.Indeterminate(),
	})

	err := b.batcher.Batch(ctx, func(ctx context.Context, id types.BatchID) ([]types.Operation, error) {
		encs, err := b.encoder.Encode(body)
		if err != nil {
			return nil, err
		}

		state := types.UploadingState{TotalBytesToBeUploaded: content.Total(encs)}
		b.cache.SetUploading(key, u, &state)

		ops := []types.Operation{types.CreateAsset(key, contentType)}
		for _, enc := range encs {
			ids, err := b.uploader.Upload(ctx, id, enc.Data, func(n int) {
				state.UploadedBytes += int64(n)
				b.cache.SetUploading(key, u, &state)
			})
			if err != nil {
				return nil, fmt.Errorf("%s encoding: %w", enc.Encoding, err)
			}
			ops = append(ops, types.SetAssetContent(key, enc.Encoding.String(), enc.SHA256, ids))
		}
		return ops, nil
	})
	if err != nil {
		b.cache.RestoreList(snapshot)
		b.cache.InvalidateAsset(u)
		return fmt.Errorf("upload %s: %w", key, err)
	}

	b.cache.FinishUpload(key, u)
	logger.Ctx(ctx).Debug().Str("key", key).Str("content_type", contentType).Msg("bucket: uploaded")
	return nil
}

// UploadFiles uploads files into dir concurrently. Uploads that start while
// a batch is open share it, so the files are usually committed together.
// It returns the first error; the other uploads still run to completion.
func (b *Bucket) UploadFiles(ctx context.Context, dir string, files []File) error {
	var g errgroup.Group
	g.SetLimit(b.concurrency)

	for _, f := range files {
		g.Go(func() error {
			return b.Upload(ctx, dir, f)
		})
	}
	return g.Wait()
}

// Delete removes the asset key.
func (b *Bucket) Delete(ctx context.Context, key string) error {
	if key == "" || !strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}

	snapshot := b.cache.SnapshotList()
	b.cache.RemoveFromList(key)

	err := b.batcher.Batch(ctx, func(ctx context.Context, _ types.BatchID) ([]types.Operation, error) {
		return []types.Operation{types.DeleteAsset(key)}, nil
	})
	if err != nil {
		b.cache.RestoreList(snapshot)
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteTree removes every asset below dir in one batch.
func (b *Bucket) DeleteTree(ctx context.Context, dir string) error {
	dir = normalizeDir(dir)
	if dir == "/" {
		return fmt.Errorf("%w: refusing to delete the root directory", ErrInvalidName)
	}

	assets, err := b.cache.List(ctx)
	if err != nil {
		return err
	}
	var ops []types.Operation
	for _, a := range assets {
		if strings.HasPrefix(a.Key, dir) {
			ops = append(ops, types.DeleteAsset(a.Key))
		}
	}
	if len(ops) == 0 {
		return fmt.Errorf("%w: directory %s", ErrNotFound, dir)
	}

	snapshot := b.cache.SnapshotList()
	b.cache.RemoveTreeFromList(dir)

	err = b.batcher.Batch(ctx, func(ctx context.Context, _ types.BatchID) ([]types.Operation, error) {
		return ops, nil
	})
	if err != nil {
		b.cache.RestoreList(snapshot)
		return fmt.Errorf("delete %s: %w", dir, err)
	}
	return nil
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// normalizeDir returns dir with a leading and a trailing slash.
func normalizeDir(dir string) string {
	if !strings.HasPrefix(dir, "/") {
		dir = "/" + dir
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir
}
