// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
)

// ErrNotFound is returned when the store holds no tree.
var ErrNotFound = errors.New("not found in model store")

var (
	treeKey          = []byte("tree")
	locationCountKey = []byte("meta/locations")
	locationPrefix   = []byte("loc/")
)

func locationKey(i uint64) []byte {
	return fmt.Appendf(nil, "%s%016x", locationPrefix, i)
}

// Store persists one model: a tree and its stored locations.
//
// Thread Safety: Safe for concurrent use. AppendLocations calls are
// serialized by BadgerDB's transaction conflict detection; a conflicting
// append fails with badger.ErrConflict and leaves the store unchanged.
type Store struct {
	db     *DB
	logger *slog.Logger
}

// NewStore wraps an open database.
func NewStore(db *DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// SaveTree stores the tree, replacing any previous one.
func (s *Store) SaveTree(ctx context.Context, tree *chowliu.Tree) error {
	data, err := json.Marshal(tree.Snapshot())
	if err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	if err := s.db.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(treeKey, data)
	}); err != nil {
		return fmt.Errorf("save tree: %w", err)
	}

	s.logger.Debug("tree saved", slog.Int("words", tree.Size()), slog.Int("bytes", len(data)))
	return nil
}

// LoadTree returns the stored tree, validated.
//
// Outputs:
//
//	error - ErrNotFound when no tree was saved, or chowliu.ErrInvalidTree
//	        for a corrupted snapshot.
func (s *Store) LoadTree(ctx context.Context) (*chowliu.Tree, error) {
	var snap chowliu.TreeSnapshot
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(treeKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("tree: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load tree: %w", err)
	}
	return chowliu.FromSnapshot(snap)
}

// AppendLocations stores histograms after the existing locations and
// returns the index of the first one. The batch is written in a single
// transaction.
func (s *Store) AppendLocations(ctx context.Context, batch []bow.Histogram) (int, error) {
	var first uint64
	err := s.db.update(ctx, func(txn *badger.Txn) error {
		n, err := readCount(txn)
		if err != nil {
			return err
		}
		first = n

		for i, h := range batch {
			data, err := json.Marshal(h)
			if err != nil {
				return fmt.Errorf("encode location %d: %w", i, err)
			}
			if err := txn.Set(locationKey(n+uint64(i)), data); err != nil {
				return err
			}
		}
		return txn.Set(locationCountKey, binary.BigEndian.AppendUint64(nil, n+uint64(len(batch))))
	})
	if err != nil {
		return 0, fmt.Errorf("append locations: %w", err)
	}

	s.logger.Debug("locations appended", slog.Int("first", int(first)), slog.Int("count", len(batch)))
	return int(first), nil
}

// Locations returns every stored location in index order.
func (s *Store) Locations(ctx context.Context) ([]bow.Histogram, error) {
	var out []bow.Histogram
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = locationPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var h bow.Histogram
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &h)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, h)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read locations: %w", err)
	}
	return out, nil
}

// LocationCount returns the number of stored locations.
func (s *Store) LocationCount(ctx context.Context) (int, error) {
	var n uint64
	err := s.db.view(ctx, func(txn *badger.Txn) error {
		var err error
		n, err = readCount(txn)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("count locations: %w", err)
	}
	return int(n), nil
}

// Reset deletes the tree and all locations.
func (s *Store) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("reset model store: %w", err)
	}
	s.logger.Info("model store reset")
	return nil
}

func readCount(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get(locationCountKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var n uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("location count has %d bytes", len(val))
		}
		n = binary.BigEndian.Uint64(val)
		return nil
	})
	return n, err
}
