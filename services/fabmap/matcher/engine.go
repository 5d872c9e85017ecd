// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package matcher scores query observations against stored locations
// under a Chow-Liu word model.
//
// An Engine holds a trained tree and an append-only sequence of stored
// locations. Compare evaluates each query against every stored location
// and a synthetic "new place" hypothesis, then returns posteriors that sum
// to 1 over those hypotheses.
//
// # Strategies
//
// The observation likelihood is either tree-structured (each word
// conditioned on its parent in the stored location) or naive Bayes. The
// new-place likelihood is either a mean-field evaluation against the
// training marginals or the average over a fixed set of sampled
// pseudo-locations. Both choices are made once, in NewEngine.
package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
)

// minChunk is the smallest number of locations worth a goroutine.
const minChunk = 64

// State is the lifecycle state of an Engine.
type State int

const (
	// StateUnseeded means no location is stored yet; Compare fails.
	StateUnseeded State = iota

	// StateReady means at least one location is stored.
	StateReady
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnseeded:
		return "UNSEEDED"
	case StateReady:
		return "READY"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// location is one stored observation.
type location struct {
	histogram bow.Histogram
	presence  bow.Presence
}

// Engine matches queries against stored locations.
//
// Thread Safety:
//
//	Safe for concurrent use. Compare takes the read lock, or the write
//	lock when it mutates state (each_query commits or the motion model),
//	in which case concurrent batches are serialized.
type Engine struct {
	tree       *chowliu.Tree
	cfg        Config
	logger     *slog.Logger
	workers    int
	likelihood *likelihoodModel
	newPlace   newPlaceModel

	mu        sync.RWMutex
	locations []location
	last      int // previous best-matching location, -1 if none
}

// NewEngine creates an engine for a trained tree.
//
// Description:
//
//	Validates the configuration and precomputes the per-word likelihood
//	tables for the selected strategies. With sampling enabled the
//	pseudo-locations are drawn here, from cfg.SampleSeed.
//
// Inputs:
//
//	tree - Trained Chow-Liu tree. Must not be nil. Shared, not copied.
//	cfg  - Matcher configuration.
//	opts - Optional settings.
//
// Outputs:
//
//	*Engine - Engine in StateUnseeded.
//	error   - Wraps ErrInvalidConfig on a nil tree or bad settings.
func NewEngine(tree *chowliu.Tree, cfg Config, opts ...Option) (*Engine, error) {
	if tree == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		tree:    tree,
		cfg:     cfg,
		logger:  slog.Default(),
		workers: cfg.Workers,
		last:    -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers == 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}

	words := wordModel{
		tree: tree,
		det: detector{
			truePositive:  cfg.DetectorTruePositive,
			falsePositive: cfg.DetectorFalsePositive,
		},
	}

	if cfg.UseTreeModel {
		e.likelihood = newChowLiuLikelihood(words)
	} else {
		e.likelihood = newNaiveBayesLikelihood(words)
	}

	switch {
	case cfg.UseSampling:
		e.newPlace = newSampledNewPlace(words, e.likelihood, cfg.SampleCount, cfg.SampleSeed)
	case cfg.UseTreeModel:
		e.newPlace = newMeanFieldChowLiu(words)
	default:
		e.newPlace = newMeanFieldNaiveBayes(words)
	}

	e.logger.Info("matcher engine created",
		slog.Int("words", tree.Size()),
		slog.Bool("tree_model", cfg.UseTreeModel),
		slog.Bool("sampling", cfg.UseSampling),
		slog.String("commit_policy", string(cfg.CommitPolicy)),
		slog.Int("workers", e.workers),
	)
	return e, nil
}

// VocabularySize returns the number of words every histogram must have.
func (e *Engine) VocabularySize() int {
	return e.tree.Size()
}

// Tree returns the engine's tree.
func (e *Engine) Tree() *chowliu.Tree {
	return e.tree
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Locations returns the number of stored locations.
func (e *Engine) Locations() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.locations)
}

// State returns StateReady once any location is stored.
func (e *Engine) State() State {
	if e.Locations() == 0 {
		return StateUnseeded
	}
	return StateReady
}

// Location returns a copy of stored location i.
func (e *Engine) Location(i int) (bow.Histogram, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if i < 0 || i >= len(e.locations) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrUnknownLocation, i, len(e.locations))
	}
	return e.locations[i].histogram.Clone(), nil
}

// AddTraining appends histograms to the stored locations without scoring.
//
// The batch is validated first and appended as a whole.
//
// Outputs:
//
//	error - *bow.InputError wrapping bow.ErrDimensionMismatch for a wrong
//	        length, or bow.ErrInvalidInput for a bad entry.
func (e *Engine) AddTraining(batch []bow.Histogram) error {
	if err := bow.ValidateBatch("matcher.AddTraining", batch, e.tree.Size(), bow.ErrDimensionMismatch); err != nil {
		return err
	}

	e.mu.Lock()
	for _, h := range batch {
		e.appendLocked(h)
	}
	n := len(e.locations)
	e.mu.Unlock()

	recordLocations(context.Background(), n)
	e.logger.Debug("training locations added",
		slog.Int("added", len(batch)),
		slog.Int("locations", n),
	)
	return nil
}

// Commit appends a confirmed new location and returns its index.
func (e *Engine) Commit(h bow.Histogram) (int, error) {
	if err := bow.ValidateBatch("matcher.Commit", []bow.Histogram{h}, e.tree.Size(), bow.ErrDimensionMismatch); err != nil {
		return 0, err
	}

	e.mu.Lock()
	index := e.appendLocked(h)
	e.mu.Unlock()

	recordLocations(context.Background(), index+1)
	e.logger.Debug("location committed", slog.Int("index", index))
	return index, nil
}

// appendLocked stores a copy of h. Caller holds the write lock.
func (e *Engine) appendLocked(h bow.Histogram) int {
	e.locations = append(e.locations, location{
		histogram: h.Clone(),
		presence:  h.Binarize(e.cfg.PresenceThreshold),
	})
	return len(e.locations) - 1
}

// Compare scores a batch of queries against the stored locations.
//
// Description:
//
//	Queries are processed in batch order. For each, the log likelihood of
//	every stored location and of the new place is combined with the
//	priors, normalized with log-sum-exp and smoothed. Under the
//	each_query commit policy the query is stored right after it is
//	scored. The batch is validated before anything is scored; on
//	cancellation every location stored by the call is removed again and
//	no results are returned.
//
// Inputs:
//
//	ctx       - Checked between queries and between scoring chunks.
//	queries   - Query histograms of length VocabularySize().
//	returnAll - Report every hypothesis instead of only the best.
//
// Outputs:
//
//	[]Result - One result per query, in batch order.
//	error    - bow.ErrDimensionMismatch / bow.ErrInvalidInput for bad
//	           queries, ErrEmptyModel with no stored location, or ctx.Err().
func (e *Engine) Compare(ctx context.Context, queries []bow.Histogram, returnAll bool) ([]Result, error) {
	start := time.Now()
	ctx, span := startCompareSpan(ctx, len(queries), returnAll)
	defer span.End()

	results, err := e.compare(ctx, queries, returnAll)
	recordCompareMetrics(ctx, time.Since(start), len(queries), err == nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("matcher.locations", e.Locations()))
	return results, nil
}

func (e *Engine) compare(ctx context.Context, queries []bow.Histogram, returnAll bool) ([]Result, error) {
	if err := bow.ValidateBatch("matcher.Compare", queries, e.tree.Size(), bow.ErrDimensionMismatch); err != nil {
		return nil, err
	}

	commit := e.cfg.CommitPolicy == CommitEachQuery
	mutating := commit || e.cfg.MotionModel
	if mutating {
		e.mu.Lock()
		defer e.mu.Unlock()
	} else {
		e.mu.RLock()
		defer e.mu.RUnlock()
	}

	if len(e.locations) == 0 {
		return nil, ErrEmptyModel
	}

	stored, last := len(e.locations), e.last
	rollback := func() {
		if !mutating {
			return
		}
		clear(e.locations[stored:])
		e.locations = e.locations[:stored]
		e.last = last
	}

	results := make([]Result, 0, len(queries))
	for qi, h := range queries {
		if err := ctx.Err(); err != nil {
			rollback()
			return nil, err
		}

		z := h.Binarize(e.cfg.PresenceThreshold)
		n := len(e.locations)

		logLik := make([]float64, n+1)
		logLik[0] = e.newPlace.logLikelihood(z)
		if err := e.scoreLocations(ctx, z, logLik[1:]); err != nil {
			rollback()
			return nil, err
		}

		probs := posterior(logLik, logPriors(e.cfg, n, e.last), e.cfg.Smoothing)
		full := buildResult(qi, logLik, probs, true)
		best := full.Best()

		if returnAll {
			results = append(results, full)
		} else {
			results = append(results, Result{QueryIndex: qi, Matches: []Match{best}})
		}

		committed := -1
		if commit {
			committed = e.appendLocked(h)
		}
		if e.cfg.MotionModel {
			if best.IsNewPlace() {
				e.last = committed
			} else {
				e.last = best.LocationIndex
			}
		}

		e.logger.Debug("query scored",
			slog.Int("query", qi),
			slog.Int("best_location", best.LocationIndex),
			slog.Float64("probability", best.Probability),
			slog.Int("locations", n),
		)
	}

	if commit {
		recordLocations(ctx, len(e.locations))
	}
	return results, nil
}

// scoreLocations fills out[k] with log P(Z | L_k) for every stored location.
//
// Locations are split into contiguous chunks scored concurrently; each
// chunk writes only its own slots.
func (e *Engine) scoreLocations(ctx context.Context, z bow.Presence, out []float64) error {
	n := len(e.locations)
	chunks := min(e.workers, (n+minChunk-1)/minChunk)
	if chunks <= 1 {
		for k, loc := range e.locations {
			out[k] = e.likelihood.logLikelihood(z, loc.presence)
		}
		return nil
	}

	size := (n + chunks - 1) / chunks
	g, gctx := errgroup.WithContext(ctx)
	for lo := 0; lo < n; lo += size {
		hi := min(lo+size, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for k := lo; k < hi; k++ {
				out[k] = e.likelihood.logLikelihood(z, e.locations[k].presence)
			}
			return nil
		})
	}
	return g.Wait()
}
