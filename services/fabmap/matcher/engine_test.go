// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
)

var twoPlaces = []bow.Histogram{
	{1, 0, 0, 0},
	{0, 1, 0, 0},
}

func buildTree(t *testing.T, training []bow.Histogram) *chowliu.Tree {
	t.Helper()
	b := chowliu.NewBuilder(chowliu.DefaultBuilderConfig())
	require.NoError(t, b.Add(training))
	tree, err := b.Make(context.Background())
	require.NoError(t, err)
	return tree
}

func newTrainedEngine(t *testing.T, training []bow.Histogram, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(buildTree(t, training), cfg)
	require.NoError(t, err)
	require.NoError(t, e.AddTraining(training))
	return e
}

func sumProbabilities(r Result) float64 {
	var s float64
	for _, m := range r.Matches {
		s += m.Probability
	}
	return s
}

// strategies enumerates the likelihood and new-place combinations with a
// new-place prior under which both two-place scenarios are decisive.
func strategies() map[string]Config {
	out := map[string]Config{}
	for _, tree := range []bool{true, false} {
		for _, sampling := range []bool{false, true} {
			cfg := DefaultConfig()
			cfg.UseTreeModel = tree
			cfg.UseSampling = sampling
			name := "naive_bayes"
			if tree {
				name = "chow_liu"
			}
			if sampling {
				name += "/sampled"
			} else {
				name += "/mean_field"
			}
			out[name] = cfg
		}
	}
	return out
}

func TestEngine_Compare_KnownPlace(t *testing.T) {
	for name, cfg := range strategies() {
		t.Run(name, func(t *testing.T) {
			if cfg.UseSampling {
				// Pseudo-locations drawn from two training places often
				// reproduce the query itself.
				cfg.NewPlacePrior = 0.1
			}
			e := newTrainedEngine(t, twoPlaces, cfg)

			results, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, 0, 0}}, true)
			require.NoError(t, err)
			require.Len(t, results, 1)

			r := results[0]
			require.Len(t, r.Matches, 3)
			assert.Equal(t, NewPlaceIndex, r.Matches[0].LocationIndex)
			assert.Equal(t, 0, r.Matches[1].LocationIndex)
			assert.Equal(t, 1, r.Matches[2].LocationIndex)
			assert.InDelta(t, 1.0, sumProbabilities(r), 1e-9)
			assert.Equal(t, 0, r.Best().LocationIndex)
		})
	}
}

func TestEngine_Compare_NewPlace(t *testing.T) {
	for name, cfg := range strategies() {
		t.Run(name, func(t *testing.T) {
			cfg.NewPlacePrior = 0.5
			e := newTrainedEngine(t, twoPlaces, cfg)

			results, err := e.Compare(context.Background(), []bow.Histogram{{0, 0, 0.5, 0.5}}, true)
			require.NoError(t, err)

			r := results[0]
			assert.InDelta(t, 1.0, sumProbabilities(r), 1e-9)
			assert.True(t, r.Best().IsNewPlace())
		})
	}
}

func TestEngine_Compare_ChowLiuPosterior(t *testing.T) {
	e := newTrainedEngine(t, twoPlaces, DefaultConfig())

	results, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, 0, 0}, {0, 0, 0.5, 0.5}}, true)
	require.NoError(t, err)
	require.Len(t, results, 2)

	want := [][]float64{
		{0.4268, 0.5666, 0.0067},
		{0.8335, 0.1598, 0.0067},
	}
	for qi, r := range results {
		assert.Equal(t, qi, r.QueryIndex)
		for i, m := range r.Matches {
			assert.Equal(t, qi, m.QueryIndex)
			assert.InDelta(t, want[qi][i], m.Probability, 1e-3, "query %d hypothesis %d", qi, i)
			assert.Less(t, m.LogLikelihood, 0.0)
		}
	}
}

func TestEngine_Compare_BestOnly(t *testing.T) {
	e := newTrainedEngine(t, twoPlaces, DefaultConfig())

	results, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, 0, 0}, {0, 0, 1, 1}}, false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, 0, results[0].Matches[0].LocationIndex)
	require.Len(t, results[1].Matches, 1)
	assert.Equal(t, NewPlaceIndex, results[1].Matches[0].LocationIndex)
	assert.Equal(t, 1, results[1].Matches[0].QueryIndex)
}

// blockPlaces builds n locations that each own three exclusive words and
// share four noisy words.
func blockPlaces(seed uint64, n int) []bow.Histogram {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	v := 3*n + 4
	places := make([]bow.Histogram, n)
	for k := range places {
		h := make(bow.Histogram, v)
		for w := 0; w < 3; w++ {
			h[3*k+w] = 1
		}
		for s := 3 * n; s < v; s++ {
			if rng.Float64() < 0.5 {
				h[s] = 1
			}
		}
		places[k] = bow.Normalize(h)
	}
	return places
}

func TestEngine_Compare_SelfMatch(t *testing.T) {
	for _, n := range []int{3, 6, 8} {
		for name, cfg := range strategies() {
			if cfg.UseSampling {
				continue
			}
			t.Run(name, func(t *testing.T) {
				places := blockPlaces(uint64(n), n)
				cfg.NewPlacePrior = 0.1
				e := newTrainedEngine(t, places, cfg)

				results, err := e.Compare(context.Background(), places, true)
				require.NoError(t, err)
				for k, r := range results {
					assert.Equal(t, k, r.Best().LocationIndex, "location %d", k)
					assert.InDelta(t, 1.0, sumProbabilities(r), 1e-9)
				}
			})
		}
	}
}

func TestEngine_Compare_Errors(t *testing.T) {
	tree := buildTree(t, twoPlaces)

	t.Run("empty model", func(t *testing.T) {
		e, err := NewEngine(tree, DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, StateUnseeded, e.State())

		results, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, 0, 0}}, true)
		assert.Nil(t, results)
		assert.ErrorIs(t, err, ErrEmptyModel)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		e := newTrainedEngine(t, twoPlaces, DefaultConfig())
		assert.Equal(t, StateReady, e.State())

		_, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, 0, 0}, {1, 0, 0}}, true)
		require.ErrorIs(t, err, bow.ErrDimensionMismatch)

		var inputErr *bow.InputError
		require.ErrorAs(t, err, &inputErr)
		assert.Equal(t, 1, inputErr.Index)
	})

	t.Run("invalid entry", func(t *testing.T) {
		e := newTrainedEngine(t, twoPlaces, DefaultConfig())
		_, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, -1, 0}}, true)
		assert.ErrorIs(t, err, bow.ErrInvalidInput)
	})

	t.Run("training dimension mismatch", func(t *testing.T) {
		e, err := NewEngine(tree, DefaultConfig())
		require.NoError(t, err)

		err = e.AddTraining([]bow.Histogram{{1, 0, 0, 0}, {1, 0}})
		assert.ErrorIs(t, err, bow.ErrDimensionMismatch)
		assert.Equal(t, 0, e.Locations(), "failed batch must not be partially stored")
	})
}

func TestEngine_Compare_EachQueryCommit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitPolicy = CommitEachQuery
	e := newTrainedEngine(t, twoPlaces, cfg)

	novel := bow.Histogram{0, 0, 0.5, 0.5}
	results, err := e.Compare(context.Background(), []bow.Histogram{novel, novel}, true)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Best().IsNewPlace())
	assert.Len(t, results[0].Matches, 3)

	// The second query sees the first one as stored location 2.
	assert.Len(t, results[1].Matches, 4)
	assert.Equal(t, 2, results[1].Best().LocationIndex)

	assert.Equal(t, 4, e.Locations())
	stored, err := e.Location(3)
	require.NoError(t, err)
	assert.Equal(t, novel, stored)
}

func TestEngine_Compare_ManualCommit(t *testing.T) {
	e := newTrainedEngine(t, twoPlaces, DefaultConfig())

	novel := bow.Histogram{0, 0, 0.5, 0.5}
	_, err := e.Compare(context.Background(), []bow.Histogram{novel}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Locations(), "manual policy must not store queries")

	index, err := e.Commit(novel)
	require.NoError(t, err)
	assert.Equal(t, 2, index)

	results, err := e.Compare(context.Background(), []bow.Histogram{novel}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, results[0].Best().LocationIndex)

	_, err = e.Commit(bow.Histogram{1})
	assert.ErrorIs(t, err, bow.ErrDimensionMismatch)
}

func TestEngine_Compare_CancelRollsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitPolicy = CommitEachQuery
	e := newTrainedEngine(t, twoPlaces, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := e.Compare(ctx, []bow.Histogram{{0, 0, 1, 1}, {0, 0, 1, 1}}, true)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, e.Locations())
}

// cancelAfter reports cancellation once Err has been called more than
// after times.
type cancelAfter struct {
	context.Context
	calls atomic.Int32
	after int32
}

func (c *cancelAfter) Err() error {
	if c.calls.Add(1) > c.after {
		return context.Canceled
	}
	return nil
}

func TestEngine_Compare_CancelMidBatchRollsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CommitPolicy = CommitEachQuery
	cfg.MotionModel = true
	e := newTrainedEngine(t, twoPlaces, cfg)
	require.Equal(t, -1, e.last)

	ctx := &cancelAfter{Context: context.Background(), after: 1}
	queries := []bow.Histogram{{0, 0, 1, 1}, {0, 0, 1, 1}, {0, 0, 1, 1}}

	results, err := e.Compare(ctx, queries, true)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Greater(t, ctx.calls.Load(), int32(1), "the first query must have been scored")
	assert.Equal(t, 2, e.Locations())
	assert.Equal(t, -1, e.last)

	// The rolled back engine still scores and commits normally.
	results, err = e.Compare(context.Background(), queries[:1], false)
	require.NoError(t, err)
	assert.True(t, results[0].Best().IsNewPlace())
	assert.Equal(t, 3, e.Locations())
	assert.Equal(t, 2, e.last)
}

func TestEngine_SampledDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseSampling = true
	cfg.SampleCount = 200
	cfg.SampleSeed = 42

	places := blockPlaces(9, 5)
	queries := blockPlaces(10, 5)

	first := newTrainedEngine(t, places, cfg)
	second := newTrainedEngine(t, places, cfg)

	a, err := first.Compare(context.Background(), queries, true)
	require.NoError(t, err)
	b, err := second.Compare(context.Background(), queries, true)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEngine_ParallelScoring(t *testing.T) {
	places := blockPlaces(21, 40)
	tree := buildTree(t, places)

	// Enough stored copies to split scoring into several chunks.
	var stored []bow.Histogram
	for len(stored) < 4*minChunk {
		stored = append(stored, places...)
	}

	serialCfg := DefaultConfig()
	serialCfg.Workers = 1
	parallelCfg := DefaultConfig()
	parallelCfg.Workers = 4

	serial, err := NewEngine(tree, serialCfg)
	require.NoError(t, err)
	require.NoError(t, serial.AddTraining(stored))
	parallel, err := NewEngine(tree, parallelCfg)
	require.NoError(t, err)
	require.NoError(t, parallel.AddTraining(stored))

	want, err := serial.Compare(context.Background(), places[:3], true)
	require.NoError(t, err)
	got, err := parallel.Compare(context.Background(), places[:3], true)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEngine_ConcurrentCompare(t *testing.T) {
	e := newTrainedEngine(t, twoPlaces, DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := e.Compare(context.Background(), []bow.Histogram{{1, 0, 0, 0}}, false)
			assert.NoError(t, err)
			assert.Equal(t, 0, results[0].Best().LocationIndex)
		}()
	}
	wg.Wait()
}

func TestEngine_MotionModel(t *testing.T) {
	queries := []bow.Histogram{{1, 0, 0, 0}, {0, 0, 0, 0}}

	plain := newTrainedEngine(t, twoPlaces, DefaultConfig())
	without, err := plain.Compare(context.Background(), queries, true)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MotionModel = true
	cfg.MotionBias = 0.9
	moving := newTrainedEngine(t, twoPlaces, cfg)
	with, err := moving.Compare(context.Background(), queries, true)
	require.NoError(t, err)

	// Query 0 matches location 0, so query 1 favours location 1.
	assert.Equal(t, 0, with[0].Best().LocationIndex)
	assert.Equal(t, without[0], with[0])
	assert.Greater(t, with[1].Matches[2].Probability, without[1].Matches[2].Probability)
	assert.Less(t, with[1].Matches[1].Probability, without[1].Matches[1].Probability)
	assert.InDelta(t, 1.0, sumProbabilities(with[1]), 1e-9)
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	tree := buildTree(t, twoPlaces)

	_, err := NewEngine(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg := DefaultConfig()
	cfg.NewPlacePrior = 1
	_, err = NewEngine(tree, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_Location(t *testing.T) {
	e := newTrainedEngine(t, twoPlaces, DefaultConfig())

	h, err := e.Location(1)
	require.NoError(t, err)
	assert.Equal(t, twoPlaces[1], h)

	h[1] = 5
	again, err := e.Location(1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again[1], "Location must return a copy")

	_, err = e.Location(2)
	assert.ErrorIs(t, err, ErrUnknownLocation)
	assert.Equal(t, 4, e.VocabularySize())
}
