// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chowliu

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
)

// randomHistograms draws n histograms over v words where each word is
// present with probability density.
func randomHistograms(seed uint64, n, v int, density float64) []bow.Histogram {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]bow.Histogram, n)
	for i := range out {
		h := make(bow.Histogram, v)
		for q := range h {
			if rng.Float64() < density {
				h[q] = rng.Float64() + 0.1
			}
		}
		out[i] = bow.Normalize(h)
	}
	return out
}

func mustMake(t *testing.T, batches ...[]bow.Histogram) *Tree {
	t.Helper()
	b := NewBuilder(DefaultBuilderConfig())
	for _, batch := range batches {
		require.NoError(t, b.Add(batch))
	}
	tree, err := b.Make(context.Background())
	require.NoError(t, err)
	return tree
}

func TestBuilder_Make_TwoHistograms(t *testing.T) {
	tree := mustMake(t, []bow.Histogram{{1, 0, 0, 0}, {0, 1, 0, 0}})

	require.Equal(t, 4, tree.Size())
	assert.Equal(t, 0, tree.Root())
	assert.Equal(t, []int{-1, 0, 0, 0}, tree.Snapshot().Parent)
	assert.Equal(t, 2, tree.Histograms())

	wantMarginal := []float64{0.5, 0.5, 0.01, 0.01}
	wantGivenParent := []float64{0.5, 0.01, 0.01, 0.01}
	wantGivenNoParent := []float64{0.5, 0.99, 0.01, 0.01}
	for q := 0; q < 4; q++ {
		assert.InDelta(t, wantMarginal[q], tree.Marginal(q), 1e-12, "marginal %d", q)
		assert.InDelta(t, wantGivenParent[q], tree.Conditional(q, true), 1e-12, "given parent %d", q)
		assert.InDelta(t, wantGivenNoParent[q], tree.Conditional(q, false), 1e-12, "given no parent %d", q)
	}

	// Words 0 and 1 are perfectly anti-correlated: I = ln 2.
	assert.InDelta(t, 0.6931471805599453, tree.Information(1), 1e-12)
	assert.InDelta(t, 0.0, tree.Information(2), 1e-12)
}

func TestBuilder_Make_PhaseEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	b := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, b.Add(randomHistograms(3, 10, 6, 0.5)))

	ctx, span := provider.Tracer("test").Start(context.Background(), "build")
	_, err := b.make(ctx, b.Stats())
	span.End()
	require.NoError(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	var names []string
	for _, ev := range ended[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"spanning tree built", "tables filled"}, names)
}

func TestBuilder_Make_Deterministic(t *testing.T) {
	data := randomHistograms(7, 40, 25, 0.3)

	first := mustMake(t, data)
	second := mustMake(t, data)
	assert.Equal(t, first, second)

	// Batch order must not matter.
	reversed := make([]bow.Histogram, len(data))
	for i, h := range data {
		reversed[len(data)-1-i] = h
	}
	third := mustMake(t, reversed[:15], reversed[15:])
	assert.Equal(t, first, third)
}

func TestBuilder_Make_TiesFormStar(t *testing.T) {
	// Every word present everywhere: all pairs carry zero information and
	// the lowest pair ordering attaches every word directly to the root.
	tree := mustMake(t, []bow.Histogram{{1, 1, 1, 1, 1}, {2, 2, 2, 2, 2}, {1, 1, 1, 1, 1}})
	assert.Equal(t, []int{-1, 0, 0, 0, 0}, tree.Snapshot().Parent)
	for q := 0; q < 5; q++ {
		assert.InDelta(t, 0.99, tree.Marginal(q), 1e-12)
	}
}

func TestBuilder_Make_SpanningTree(t *testing.T) {
	data := randomHistograms(11, 60, 30, 0.25)
	b := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, b.Add(data))

	tree, err := b.Make(context.Background())
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
	assert.Len(t, tree.Edges(), 29)
	assert.Equal(t, -1, tree.Parent(0))

	// Cycle property: no non-tree pair is more informative than any edge
	// on the tree path between its endpoints.
	stats := b.Stats()
	var joint, product [4]float64
	for u := 0; u < tree.Size(); u++ {
		for v := u + 1; v < tree.Size(); v++ {
			if tree.Parent(u) == v || tree.Parent(v) == u {
				continue
			}
			mi := stats.mutualInformation(u, v, &joint, &product)
			for _, w := range pathWeights(tree, u, v) {
				assert.LessOrEqual(t, mi, w+1e-12, "pair (%d,%d)", u, v)
			}
		}
	}
}

// pathWeights returns the information of every edge on the tree path u..v.
func pathWeights(tree *Tree, u, v int) []float64 {
	ancestors := map[int]int{}
	for q, d := u, 0; q >= 0; q, d = tree.Parent(q), d+1 {
		ancestors[q] = d
	}
	var weights []float64
	q := v
	for {
		if _, ok := ancestors[q]; ok {
			break
		}
		weights = append(weights, tree.Information(q))
		q = tree.Parent(q)
	}
	for w := u; w != q; w = tree.Parent(w) {
		weights = append(weights, tree.Information(w))
	}
	return weights
}

func TestBuilder_Make_InsufficientData(t *testing.T) {
	tests := []struct {
		name  string
		batch []bow.Histogram
	}{
		{name: "no histograms"},
		{name: "one histogram", batch: []bow.Histogram{{1, 0}}},
		{name: "empty vocabulary", batch: []bow.Histogram{{}, {}, {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(DefaultBuilderConfig())
			require.NoError(t, b.Add(tt.batch))

			tree, err := b.Make(context.Background())
			assert.Nil(t, tree)
			assert.ErrorIs(t, err, ErrInsufficientData)
		})
	}
}

func TestBuilder_Add_InvalidInput(t *testing.T) {
	b := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, b.Add([]bow.Histogram{{0.5, 0.5, 0}}))

	tests := []struct {
		name  string
		batch []bow.Histogram
		index int
	}{
		{name: "short", batch: []bow.Histogram{{1, 0, 0}, {1, 0}}, index: 1},
		{name: "negative", batch: []bow.Histogram{{1, -1, 0}}, index: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Add(tt.batch)
			require.ErrorIs(t, err, bow.ErrInvalidInput)

			var inputErr *bow.InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.index, inputErr.Index)
		})
	}

	// Failed batches leave no trace.
	assert.Equal(t, 1, b.Stats().Histograms())
	assert.Equal(t, 1, b.Stats().Count(0))
}

func TestBuilder_PresenceThreshold(t *testing.T) {
	b := NewBuilder(BuilderConfig{PresenceThreshold: 0.2})
	require.NoError(t, b.Add([]bow.Histogram{{0.9, 0.1}, {0.5, 0.5}}))

	assert.Equal(t, 2, b.Stats().Count(0))
	assert.Equal(t, 1, b.Stats().Count(1))
	assert.Equal(t, 1, b.Stats().JointCount(0, 1))
	assert.Equal(t, 1, b.Stats().JointCount(1, 0))
}

func TestBuilder_Merge(t *testing.T) {
	data := randomHistograms(3, 30, 12, 0.3)

	whole := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, whole.Add(data))

	left := NewBuilder(DefaultBuilderConfig())
	right := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, left.Add(data[:10]))
	require.NoError(t, right.Add(data[10:]))

	merged := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, merged.Merge(left))
	require.NoError(t, merged.Merge(right))
	require.NoError(t, merged.Merge(NewBuilder(DefaultBuilderConfig())))

	assert.Equal(t, whole.Stats().Histograms(), merged.Stats().Histograms())
	for i := 0; i < 12; i++ {
		for j := 0; j < 12; j++ {
			assert.Equal(t, whole.Stats().JointCount(i, j), merged.Stats().JointCount(i, j))
		}
	}
	assert.Equal(t, 10, left.Stats().Histograms(), "merge source must not change")

	wantTree, err := whole.Make(context.Background())
	require.NoError(t, err)
	gotTree, err := merged.Make(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantTree, gotTree)

	t.Run("incompatible vocabulary", func(t *testing.T) {
		other := NewBuilder(DefaultBuilderConfig())
		require.NoError(t, other.Add([]bow.Histogram{{1, 0}}))
		assert.ErrorIs(t, whole.Merge(other), ErrIncompatibleStats)
	})

	t.Run("incompatible threshold", func(t *testing.T) {
		other := NewBuilder(BuilderConfig{PresenceThreshold: 0.5})
		require.NoError(t, other.Add(data[:1]))
		assert.ErrorIs(t, whole.Merge(other), ErrIncompatibleStats)
	})
}

func TestBuilder_Make_Cancelled(t *testing.T) {
	b := NewBuilder(DefaultBuilderConfig())
	require.NoError(t, b.Add([]bow.Histogram{{1, 0, 0, 0}, {0, 1, 0, 0}}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tree, err := b.Make(ctx)
	assert.Nil(t, tree)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEdgeBefore(t *testing.T) {
	tests := []struct {
		name   string
		w1     float64
		a1, b1 int
		w2     float64
		a2, b2 int
		want   bool
	}{
		{name: "heavier first", w1: 0.5, a1: 3, b1: 4, w2: 0.1, a2: 0, b2: 1, want: true},
		{name: "lighter last", w1: 0.1, a1: 0, b1: 1, w2: 0.5, a2: 3, b2: 4, want: false},
		{name: "tie lower min", w1: 0.2, a1: 5, b1: 1, w2: 0.2, a2: 2, b2: 3, want: true},
		{name: "tie lower max", w1: 0.2, a1: 1, b1: 2, w2: 0.2, a2: 3, b2: 1, want: true},
		{name: "same edge", w1: 0.2, a1: 1, b1: 2, w2: 0.2, a2: 2, b2: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, edgeBefore(tt.w1, tt.a1, tt.b1, tt.w2, tt.a2, tt.b2))
		})
	}
}
