// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fabmap exposes a trained FAB-MAP model over HTTP.
//
// The Service pairs a matcher.Engine with an optional badger.Store. When a
// store is attached, every location the service commits is persisted as
// well, so a restarted process can be restored with Restore and resume
// with the same location sequence.
//
// # Endpoints
//
//	POST /v1/fabmap/compare   - Score query histograms
//	POST /v1/fabmap/locations - Commit one location
//	GET  /v1/fabmap/locations - Location count and engine state
//	GET  /v1/fabmap/tree      - Chow-Liu tree summary
//	GET  /v1/fabmap/health    - Health check
//	GET  /metrics             - Prometheus metrics
package fabmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/matcher"
	"github.com/AleutianAI/fabmap/services/fabmap/storage/badger"
)

// ErrBatchTooLarge is returned when a compare request exceeds the
// configured batch size.
var ErrBatchTooLarge = errors.New("batch too large")

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore persists committed locations to store.
func WithStore(store *badger.Store) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMaxBatch bounds the number of queries per Compare call. 0 disables
// the bound.
func WithMaxBatch(n int) ServiceOption {
	return func(s *Service) {
		s.maxBatch = n
	}
}

// Service wraps a matching engine and its persistent store.
//
// Thread Safety: Safe for concurrent use. Operations that commit
// locations are serialized by commitMu so the engine and the store see
// the same append order.
type Service struct {
	engine   *matcher.Engine
	store    *badger.Store
	logger   *slog.Logger
	maxBatch int

	commitMu sync.Mutex
}

// NewService creates a service around engine.
func NewService(engine *matcher.Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine returns the underlying engine.
func (s *Service) Engine() *matcher.Engine {
	return s.engine
}

// Compare scores queries against the stored locations.
//
// Description:
//
//	Under the each_query commit policy the engine appends every query;
//	the same queries are then appended to the store in batch order. A
//	store failure at that point leaves the engine ahead of the store and
//	is reported as an error.
//
// Outputs:
//
//	[]matcher.Result - One result per query.
//	error            - ErrBatchTooLarge, any matcher.Engine.Compare
//	                   error, or a store error.
func (s *Service) Compare(ctx context.Context, queries []bow.Histogram, returnAll bool) ([]matcher.Result, error) {
	if s.maxBatch > 0 && len(queries) > s.maxBatch {
		return nil, fmt.Errorf("%w: %d queries, limit %d", ErrBatchTooLarge, len(queries), s.maxBatch)
	}

	commits := s.engine.Config().CommitPolicy == matcher.CommitEachQuery
	if !commits {
		return s.engine.Compare(ctx, queries, returnAll)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	results, err := s.engine.Compare(ctx, queries, returnAll)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if _, err := s.store.AppendLocations(ctx, queries); err != nil {
			s.logger.Error("engine and store out of sync",
				slog.Int("queries", len(queries)),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
	}
	return results, nil
}

// AddLocation commits h as a new location and returns its index.
//
// The histogram is validated against the engine first, then written to
// the store, then committed to the engine.
func (s *Service) AddLocation(ctx context.Context, h bow.Histogram) (int, error) {
	if err := bow.ValidateBatch("fabmap.AddLocation", []bow.Histogram{h}, s.engine.VocabularySize(), bow.ErrDimensionMismatch); err != nil {
		return 0, err
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if s.store != nil {
		if _, err := s.store.AppendLocations(ctx, []bow.Histogram{h}); err != nil {
			return 0, err
		}
	}
	return s.engine.Commit(h)
}

// Summary describes the model served by s.
func (s *Service) Summary() ModelSummary {
	tree := s.engine.Tree()
	return ModelSummary{
		VocabularySize:   tree.Size(),
		Root:             tree.Root(),
		Depth:            tree.Depth(),
		TotalInformation: tree.TotalInformation(),
		Histograms:       tree.Histograms(),
		Locations:        s.engine.Locations(),
		State:            s.engine.State().String(),
	}
}

// Restore rebuilds an engine from a store.
//
// Description:
//
//	Loads the persisted tree, creates an engine with cfg and adds the
//	stored locations as training locations, in index order.
//
// Outputs:
//
//	*matcher.Engine - The restored engine.
//	error           - badger.ErrNotFound when no tree was saved, or any
//	                  load or configuration error.
func Restore(ctx context.Context, store *badger.Store, cfg matcher.Config, logger *slog.Logger) (*matcher.Engine, error) {
	tree, err := store.LoadTree(ctx)
	if err != nil {
		return nil, err
	}

	engine, err := matcher.NewEngine(tree, cfg, matcher.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	locations, err := store.Locations(ctx)
	if err != nil {
		return nil, err
	}
	if len(locations) > 0 {
		if err := engine.AddTraining(locations); err != nil {
			return nil, fmt.Errorf("restore locations: %w", err)
		}
	}
	return engine, nil
}
