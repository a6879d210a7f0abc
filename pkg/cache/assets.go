// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/LeeDigitalWorks/icbucket/pkg/logger"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

var ErrAssetNotFound = errors.New("asset not found")

// Lister fetches a canister's asset inventory.
type Lister interface {
	List(ctx context.Context) ([]types.AssetDetails, error)
}

// EventKind describes what happened to a cached asset.
type EventKind string

const (
	EventPlaceholder EventKind = "placeholder"
	EventUploading   EventKind = "uploading"
	EventRemoved     EventKind = "removed"
	EventRestored    EventKind = "restored"
	EventInvalidated EventKind = "invalidated"
	EventLoaded      EventKind = "loaded"
)

// Event is published for every mutation of an AssetCache. Key is the asset
// key, or empty for events about the whole list.
type Event struct {
	Key  string
	Kind EventKind
}

const subscriberBuffer = 64

// ListSnapshot is an opaque copy of the list cache taken before an
// optimistic mutation.
type ListSnapshot struct {
	assets  []types.Asset
	present bool
	fresh   bool
}

// Len returns the number of assets captured.
func (s ListSnapshot) Len() int {
	return len(s.assets)
}

// AssetCache is the client-side view of one canister's assets. Mutations
// apply optimistically and are reconciled by InvalidateList once the batch
// they were part of settles.
type AssetCache struct {
	canister types.CanisterID
	base     *url.URL
	lister   Lister

	lists  *Cache[string, []types.Asset]
	assets *Cache[string, types.Asset]

	subMu sync.Mutex
	subs  map[chan Event]struct{}

	// remote holds the keys returned by the last successful fetch.
	remoteMu sync.Mutex
	remote   map[string]bool
}

// NewAssetCache returns an empty cache for the canister whose assets are
// served under base.
func NewAssetCache(id types.CanisterID, base *url.URL, lister Lister) *AssetCache {
	c := &AssetCache{
		canister: id,
		base:     base,
		lister:   lister,
		subs:     make(map[chan Event]struct{}),
	}
	c.lists = New(WithLoadFunc(func(ctx context.Context, _ string) ([]types.Asset, error) {
		return c.fetch(ctx)
	}))
	c.assets = New(WithLoadFunc(c.resolve))
	return c
}

func (c *AssetCache) listKey() string {
	return c.canister.String() + "#list"
}

// URL returns the URL key is served at.
func (c *AssetCache) URL(key string) *url.URL {
	return types.AssetURL(c.base, key)
}

func (c *AssetCache) fetch(ctx context.Context) ([]types.Asset, error) {
	details, err := c.lister.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c.canister, err)
	}

	out := make([]types.Asset, 0, len(details))
	remote := make(map[string]bool, len(details))
	for _, d := range details {
		out = append(out, types.Asset{AssetDetails: d, URL: c.URL(d.Key)})
		remote[d.Key] = true
	}

	// uploads still in flight are not listed remotely yet
	if prev, present, _ := c.lists.Peek(c.listKey()); present {
		for _, a := range prev {
			if a.Uploading != nil && !remote[a.Key] {
				out = append(out, a.Clone())
			}
		}
	}
	sortAssets(out)

	c.remoteMu.Lock()
	c.remote = remote
	c.remoteMu.Unlock()

	c.assets.Clear()
	c.assets.Load(func(yield func(Entity[string, types.Asset], error) bool) {
		for _, a := range out {
			if !yield(Entity[string, types.Asset]{Key: a.URL.String(), Value: a.Clone()}, nil) {
				return
			}
		}
	})

	logger.Ctx(ctx).Debug().
		Stringer("canister", c.canister).
		Int("assets", len(out)).
		Msg("cache: list loaded")
	c.publish(Event{Kind: EventLoaded})
	return out, nil
}

func (c *AssetCache) resolve(ctx context.Context, u string) (types.Asset, error) {
	list, err := c.lists.GetOrLoad(ctx, c.listKey())
	if err != nil {
		return types.Asset{}, err
	}
	for _, a := range list {
		if a.URL.String() == u {
			return a.Clone(), nil
		}
	}
	return types.Asset{}, fmt.Errorf("%w: %s", ErrAssetNotFound, u)
}

// List returns every asset of the canister, loading the list if it is
// missing or stale.
func (c *AssetCache) List(ctx context.Context) ([]types.Asset, error) {
	list, err := c.lists.GetOrLoad(ctx, c.listKey())
	if err != nil {
		return nil, err
	}
	return cloneAssets(list), nil
}

// Asset returns the asset served at u.
func (c *AssetCache) Asset(ctx context.Context, u *url.URL) (types.Asset, error) {
	a, err := c.assets.GetOrLoad(ctx, u.String())
	if err != nil {
		return types.Asset{}, err
	}
	return a.Clone(), nil
}

// IsAssetStale reports whether the entry for u was invalidated and not yet
// reloaded.
func (c *AssetCache) IsAssetStale(u *url.URL) bool {
	return c.assets.IsStale(u.String())
}

// SnapshotList captures the current list cache.
func (c *AssetCache) SnapshotList() ListSnapshot {
	list, present, fresh := c.lists.Peek(c.listKey())
	return ListSnapshot{assets: cloneAssets(list), present: present, fresh: fresh}
}

// RestoreList puts a snapshot back in place of the current list.
func (c *AssetCache) RestoreList(s ListSnapshot) {
	if s.present {
		c.lists.Set(c.listKey(), cloneAssets(s.assets))
		if !s.fresh {
			c.lists.Invalidate(c.listKey())
		}
	} else {
		c.lists.Delete(c.listKey())
	}
	c.publish(Event{Kind: EventRestored})
}

// AddPlaceholder inserts or replaces asset in the list and single-asset
// caches. A list that was never loaded is seeded with the placeholder alone
// and left stale, so the next List still fetches the remote inventory.
func (c *AssetCache) AddPlaceholder(asset types.Asset) {
	if asset.URL == nil {
		asset.URL = c.URL(asset.Key)
	}

	seeded := false
	c.lists.Update(c.listKey(), func(list []types.Asset, present bool) ([]types.Asset, bool) {
		if !present {
			seeded = true
			return []types.Asset{asset.Clone()}, true
		}
		next := slices.DeleteFunc(cloneAssets(list), func(a types.Asset) bool { return a.Key == asset.Key })
		next = append(next, asset.Clone())
		sortAssets(next)
		return next, true
	})
	if seeded {
		c.lists.Invalidate(c.listKey())
	}
	c.assets.Set(asset.URL.String(), asset.Clone())
	c.publish(Event{Key: asset.Key, Kind: EventPlaceholder})
}

// SetUploading overwrites the upload state of key in both caches. Keys that
// are in neither cache are left alone.
func (c *AssetCache) SetUploading(key string, u *url.URL, state *types.UploadingState) {
	var st *types.UploadingState
	if state != nil {
		s := *state
		st = &s
	}

	inList := false
	c.lists.Update(c.listKey(), func(list []types.Asset, present bool) ([]types.Asset, bool) {
		if !present {
			return nil, false
		}
		i := slices.IndexFunc(list, func(a types.Asset) bool { return a.Key == key })
		if i < 0 {
			return list, true
		}
		inList = true
		next := slices.Clone(list)
		next[i].Uploading = st
		return next, true
	})

	cached := false
	c.assets.Update(u.String(), func(a types.Asset, present bool) (types.Asset, bool) {
		if !present {
			return a, false
		}
		cached = true
		a.Uploading = st
		return a, true
	})
	if !inList && !cached {
		return
	}
	c.publish(Event{Key: key, Kind: EventUploading})
}

// FinishUpload clears the upload state of key once its batch committed.
// If the list fetched after that commit does not contain key, a later
// operation of the same batch deleted it, so the entry is dropped.
func (c *AssetCache) FinishUpload(key string, u *url.URL) {
	c.remoteMu.Lock()
	gone := c.remote != nil && !c.remote[key]
	c.remoteMu.Unlock()

	if !gone {
		c.SetUploading(key, u, nil)
		return
	}
	c.assets.Delete(u.String())
	c.RemoveFromList(key)
}

// RemoveFromList drops key from the list cache.
func (c *AssetCache) RemoveFromList(key string) {
	c.lists.Update(c.listKey(), func(list []types.Asset, present bool) ([]types.Asset, bool) {
		if !present {
			return nil, false
		}
		return slices.DeleteFunc(cloneAssets(list), func(a types.Asset) bool { return a.Key == key }), true
	})
	c.publish(Event{Key: key, Kind: EventRemoved})
}

// RemoveTreeFromList drops every key under the directory dir.
func (c *AssetCache) RemoveTreeFromList(dir string) {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	c.lists.Update(c.listKey(), func(list []types.Asset, present bool) ([]types.Asset, bool) {
		if !present {
			return nil, false
		}
		return slices.DeleteFunc(cloneAssets(list), func(a types.Asset) bool {
			return strings.HasPrefix(a.Key, dir)
		}), true
	})
	c.publish(Event{Key: dir, Kind: EventRemoved})
}

// InvalidateList marks the list stale and refetches it.
func (c *AssetCache) InvalidateList(ctx context.Context) error {
	c.lists.Invalidate(c.listKey())
	c.remoteMu.Lock()
	c.remote = nil
	c.remoteMu.Unlock()
	c.publish(Event{Kind: EventInvalidated})

	_, err := c.lists.GetOrLoad(ctx, c.listKey())
	return err
}

// InvalidateAsset marks the entry for u stale.
func (c *AssetCache) InvalidateAsset(u *url.URL) {
	c.assets.Invalidate(u.String())
	c.publish(Event{Key: types.KeyFromURL(u), Kind: EventInvalidated})
}

// Subscribe returns a channel receiving every subsequent Event and a func
// that unsubscribes and closes it. Events are dropped when the subscriber
// falls behind.
func (c *AssetCache) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	c.subMu.Lock()
	c.subs[ch] = struct{}{}
	c.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			delete(c.subs, ch)
			c.subMu.Unlock()
			close(ch)
		})
	}
}

func (c *AssetCache) publish(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	for ch := range c.subs {
		select {
		case ch <- ev:
		default:
			CacheEventsDropped.Inc()
		}
	}
}

func sortAssets(list []types.Asset) {
	slices.SortFunc(list, func(a, b types.Asset) int {
		return strings.Compare(a.Key, b.Key)
	})
}

func cloneAssets(list []types.Asset) []types.Asset {
	if list == nil {
		return nil
	}
	out := make([]types.Asset, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}
