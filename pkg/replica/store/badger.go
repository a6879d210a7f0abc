// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/icbucket/pkg/canister"
	"github.com/LeeDigitalWorks/icbucket/pkg/types"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Badger persists assets in a BadgerDB directory. Keys are
// "a:<canister>:<asset key>" and values are CBOR encoded Asset records.
type Badger struct {
	db *badger.DB
}

// BadgerConfig configures a Badger store.
type BadgerConfig struct {
	Path string
	// InMemory keeps the database off disk; Path is ignored.
	InMemory bool
}

// NewBadger opens (or creates) the database at cfg.Path.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)
	// asset content is usually compressed already
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}
	return &Badger{db: db}, nil
}

func keyAssetPrefix(id types.CanisterID) []byte {
	return []byte("a:" + id.String() + ":")
}

func keyAsset(id types.CanisterID, key string) []byte {
	return append(keyAssetPrefix(id), key...)
}

func (s *Badger) Get(ctx context.Context, id types.CanisterID, key string) (*Asset, error) {
	var a *Asset
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyAsset(id, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		a, err = decodeAsset(item)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Badger) List(ctx context.Context, id types.CanisterID) ([]*Asset, error) {
	var out []*Asset
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Prefix = keyAssetPrefix(id)

		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Rewind(); it.Valid(); it.Next() {
			if n%100 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			a, err := decodeAsset(it.Item())
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// Apply writes the whole change set in a single transaction.
func (s *Badger) Apply(ctx context.Context, id types.CanisterID, puts []*Asset, deletes []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range deletes {
			if err := txn.Delete(keyAsset(id, key)); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
		}
		for _, a := range puts {
			val, err := canister.Marshal(a)
			if err != nil {
				return fmt.Errorf("encode %s: %w", a.Key, err)
			}
			if err := txn.Set(keyAsset(id, a.Key), val); err != nil {
				return fmt.Errorf("put %s: %w", a.Key, err)
			}
		}
		return nil
	})
}

func (s *Badger) Close() error {
	return s.db.Close()
}

func decodeAsset(item *badger.Item) (*Asset, error) {
	a := &Asset{}
	err := item.Value(func(val []byte) error {
		return canister.Unmarshal(val, a)
	})
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", item.Key(), err)
	}
	return a, nil
}
