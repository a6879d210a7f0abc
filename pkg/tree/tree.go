// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package tree derives the directory hierarchy of a canister from its flat
// list of asset keys.
package tree

import (
	"net/url"
	"slices"
	"strings"

	"github.com/LeeDigitalWorks/icbucket/pkg/types"
)

// Directory is a node of the derived hierarchy. Key and URL end with "/".
type Directory struct {
	Key      string
	URL      *url.URL
	Children []Entity
}

// Entity is either a Directory or an Asset.
type Entity struct {
	Dir   *Directory
	Asset *types.Asset
}

func (e Entity) IsDir() bool {
	return e.Dir != nil
}

// Key returns the key of the directory or asset.
func (e Entity) Key() string {
	if e.Dir != nil {
		return e.Dir.Key
	}
	return e.Asset.Key
}

// Name returns the last path segment, with a trailing "/" for directories.
func (e Entity) Name() string {
	if e.Dir != nil {
		return e.Dir.Name()
	}
	return e.Asset.Name()
}

// Name returns the last path segment of the directory followed by "/".
func (d *Directory) Name() string {
	trimmed := strings.TrimSuffix(d.Key, "/")
	return trimmed[strings.LastIndexByte(trimmed, '/')+1:] + "/"
}

// Collect builds the directory at dirURL from every asset below it.
// Subdirectories come first, then assets, each sorted by key.
func Collect(assets []types.Asset, dirURL *url.URL) *Directory {
	dirKey := types.KeyFromURL(dirURL)
	if !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}

	var here []types.Asset
	nested := make(map[string][]types.Asset)
	for _, a := range assets {
		rest, ok := strings.CutPrefix(a.Key, dirKey)
		if !ok || rest == "" {
			continue
		}
		name, _, isNested := strings.Cut(rest, "/")
		if !isNested {
			here = append(here, a)
			continue
		}
		nested[name] = append(nested[name], a)
	}

	dir := &Directory{Key: dirKey, URL: types.DirectoryURL(dirURL, dirKey)}

	subdirs := make([]*Directory, 0, len(nested))
	for name, list := range nested {
		subdirs = append(subdirs, Collect(list, types.DirectoryURL(dirURL, dirKey+name)))
	}
	slices.SortFunc(subdirs, func(a, b *Directory) int { return strings.Compare(a.Key, b.Key) })
	for _, d := range subdirs {
		dir.Children = append(dir.Children, Entity{Dir: d})
	}

	slices.SortFunc(here, func(a, b types.Asset) int { return strings.Compare(a.Key, b.Key) })
	for i := range here {
		dir.Children = append(dir.Children, Entity{Asset: &here[i]})
	}
	return dir
}

// Find returns the directory with key dirKey below d, or nil.
func (d *Directory) Find(dirKey string) *Directory {
	if !strings.HasSuffix(dirKey, "/") {
		dirKey += "/"
	}
	if d.Key == dirKey {
		return d
	}
	if !strings.HasPrefix(dirKey, d.Key) {
		return nil
	}
	for _, c := range d.Children {
		if c.Dir == nil {
			continue
		}
		if found := c.Dir.Find(dirKey); found != nil {
			return found
		}
	}
	return nil
}

// Assets returns every asset in d and its subdirectories, depth first.
func (d *Directory) Assets() []types.Asset {
	var out []types.Asset
	d.Walk(func(e Entity, _ int) bool {
		if e.Asset != nil {
			out = append(out, *e.Asset)
		}
		return true
	})
	return out
}

// Walk visits every entity below d in order. depth is 0 for d's children.
// Returning false from fn skips a directory's children.
func (d *Directory) Walk(fn func(e Entity, depth int) bool) {
	d.walk(fn, 0)
}

func (d *Directory) walk(fn func(e Entity, depth int) bool, depth int) {
	for _, c := range d.Children {
		if !fn(c, depth) {
			continue
		}
		if c.Dir != nil {
			c.Dir.walk(fn, depth+1)
		}
	}
}
