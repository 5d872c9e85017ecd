// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package chowliu learns a Chow-Liu dependency tree over visual words.
//
// A Builder accumulates binarized word co-occurrence counts from training
// histograms. Make turns the counts into the maximum mutual information
// spanning tree rooted at word 0, together with smoothed per-word
// presence probabilities conditioned on the parent word.
package chowliu

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
)

// Smoothing applied to every probability table entry: 0.98·f + 0.01.
// Keeps every table entry strictly inside (0, 1).
const (
	tableScale = 0.98
	tableFloor = 0.01
)

// rootWord is the word every tree is rooted at.
const rootWord = 0

// BuilderConfig configures a Builder.
type BuilderConfig struct {
	// PresenceThreshold: word i is present iff h[i] > PresenceThreshold.
	PresenceThreshold float64 `yaml:"presence_threshold" json:"presence_threshold" validate:"gte=0"`
}

// DefaultBuilderConfig returns the default builder configuration.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{PresenceThreshold: 0}
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger used for build summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Builder accumulates co-occurrence statistics and builds trees.
//
// Thread Safety: NOT safe for concurrent use. Use Merge to combine
// builders filled independently.
type Builder struct {
	cfg    BuilderConfig
	stats  *Stats
	logger *slog.Logger
}

// NewBuilder creates an empty builder.
func NewBuilder(cfg BuilderConfig, opts ...Option) *Builder {
	b := &Builder{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add accumulates a batch of training histograms.
//
// Description:
//
//	The first non-empty batch fixes the vocabulary size to the length of
//	its first histogram. The whole batch is validated before any count is
//	touched, so a failing batch leaves the builder unchanged.
//
// Inputs:
//
//	batch - Training histograms. Not retained.
//
// Outputs:
//
//	error - An *bow.InputError wrapping bow.ErrInvalidInput for a length
//	        mismatch or a negative, NaN or infinite entry.
func (b *Builder) Add(batch []bow.Histogram) error {
	if len(batch) == 0 {
		return nil
	}

	v := len(batch[0])
	if b.stats != nil {
		v = b.stats.vocabSize
	}
	if err := bow.ValidateBatch("chowliu.Add", batch, v, bow.ErrInvalidInput); err != nil {
		return err
	}

	if b.stats == nil {
		b.stats = newStats(v)
	}
	for _, h := range batch {
		b.stats.observe(h.Words(b.cfg.PresenceThreshold))
	}
	return nil
}

// Merge adds the statistics accumulated by other.
//
// Both builders must use the same presence threshold and, when both have
// seen data, the same vocabulary size. other is not modified.
func (b *Builder) Merge(other *Builder) error {
	if other == nil || other.stats == nil {
		return nil
	}
	if other.cfg.PresenceThreshold != b.cfg.PresenceThreshold {
		return fmt.Errorf("%w: presence threshold %g vs %g",
			ErrIncompatibleStats, b.cfg.PresenceThreshold, other.cfg.PresenceThreshold)
	}
	if b.stats == nil {
		b.stats = other.stats.clone()
		return nil
	}
	if other.stats.vocabSize != b.stats.vocabSize {
		return fmt.Errorf("%w: vocabulary size %d vs %d",
			ErrIncompatibleStats, b.stats.vocabSize, other.stats.vocabSize)
	}
	b.stats.merge(other.stats)
	return nil
}

// Stats returns a read-only view of the accumulated statistics.
func (b *Builder) Stats() *Stats {
	if b.stats == nil {
		return newStats(0)
	}
	return b.stats
}

// Make builds the Chow-Liu tree from the accumulated statistics.
//
// Description:
//
//	Computes the mutual information of every word pair from empirical
//	frequencies, extracts the maximum spanning tree rooted at word 0 and
//	fills the smoothed probability tables. Ties between equally informative
//	edges go to the lexicographically lowest (min, max) word pair, so the
//	result depends only on the statistics.
//
// Inputs:
//
//	ctx - Checked between attachment steps.
//
// Outputs:
//
//	*Tree - The validated tree.
//	error - ErrInsufficientData with fewer than 2 histograms or V == 0,
//	        or ctx.Err() on cancellation.
func (b *Builder) Make(ctx context.Context) (*Tree, error) {
	start := time.Now()
	stats := b.Stats()

	ctx, span := startBuildSpan(ctx, stats.vocabSize, stats.histograms)
	defer span.End()

	tree, err := b.make(ctx, stats)
	duration := time.Since(start)
	recordBuildMetrics(ctx, duration, stats.vocabSize, err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("chowliu.total_information", tree.TotalInformation()),
		attribute.Int("chowliu.depth", tree.Depth()),
	)
	b.logger.Info("chow-liu tree built",
		slog.Int("words", tree.Size()),
		slog.Int("histograms", stats.histograms),
		slog.Float64("total_information", tree.TotalInformation()),
		slog.Duration("duration", duration),
	)
	return tree, nil
}

func (b *Builder) make(ctx context.Context, stats *Stats) (*Tree, error) {
	if stats.vocabSize == 0 || stats.histograms < 2 {
		return nil, fmt.Errorf("%w: %d histograms over %d words",
			ErrInsufficientData, stats.histograms, stats.vocabSize)
	}

	parent, information, err := maximumSpanningTree(ctx, stats, rootWord)
	if err != nil {
		return nil, fmt.Errorf("spanning tree: %w", err)
	}
	span := trace.SpanFromContext(ctx)
	span.AddEvent("spanning tree built",
		trace.WithAttributes(attribute.Int("chowliu.edges", len(parent)-1)))

	tree := &Tree{
		root:        rootWord,
		parent:      parent,
		information: information,
		histograms:  stats.histograms,
	}
	fillTables(tree, stats)
	span.AddEvent("tables filled")

	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("built tree failed validation: %w", err)
	}
	return tree, nil
}

// fillTables computes the smoothed marginal and conditional tables.
func fillTables(t *Tree, s *Stats) {
	v := s.vocabSize
	n := float64(s.histograms)

	t.marginal = make([]float64, v)
	t.givenParent = make([]float64, v)
	t.givenNoParent = make([]float64, v)

	for q := 0; q < v; q++ {
		cq := s.joint.At(q, q)
		t.marginal[q] = smooth(cq, n)

		p := t.parent[q]
		if p < 0 {
			t.givenParent[q] = t.marginal[q]
			t.givenNoParent[q] = t.marginal[q]
			continue
		}

		cp := s.joint.At(p, p)
		cqp := s.joint.At(q, p)
		t.givenParent[q] = smooth(cqp, cp)
		t.givenNoParent[q] = smooth(cq-cqp, n-cp)
	}
}

// smooth returns 0.98·count/total + 0.01, or 0.01 when total is zero.
func smooth(count, total float64) float64 {
	if total <= 0 {
		return tableFloor
	}
	return tableScale*count/total + tableFloor
}
