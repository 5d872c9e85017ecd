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
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
)

// newPlaceModel scores a query against the "unseen place" hypothesis.
type newPlaceModel interface {
	logLikelihood(z bow.Presence) float64
}

// meanFieldNewPlace evaluates a synthetic location whose word existence
// probabilities are the training marginals. Each word's factor depends on
// the query bit only; the parent state is averaged over its marginal.
type meanFieldNewPlace struct {
	factors [][2]float64
}

func newMeanFieldChowLiu(m wordModel) *meanFieldNewPlace {
	v := m.tree.Size()
	mf := &meanFieldNewPlace{factors: make([][2]float64, v)}

	for q := 0; q < v; q++ {
		pe := m.tree.Marginal(q)
		p := m.tree.Parent(q)
		for i, z := range [2]bool{false, true} {
			f := m.observation(q, z, true, pe)
			if p >= 0 {
				mp := m.tree.Marginal(p)
				f = mp*f + (1-mp)*m.observation(q, z, false, pe)
			}
			mf.factors[q][i] = math.Log(f)
		}
	}
	return mf
}

func newMeanFieldNaiveBayes(m wordModel) *meanFieldNewPlace {
	v := m.tree.Size()
	mf := &meanFieldNewPlace{factors: make([][2]float64, v)}

	for q := 0; q < v; q++ {
		pe := m.tree.Marginal(q)
		for i, z := range [2]bool{false, true} {
			mf.factors[q][i] = math.Log(m.independent(z, pe))
		}
	}
	return mf
}

func (mf *meanFieldNewPlace) logLikelihood(z bow.Presence) float64 {
	var sum float64
	for q, f := range mf.factors {
		if z[q] {
			sum += f[1]
		} else {
			sum += f[0]
		}
	}
	return sum
}

// sampledNewPlace approximates the unseen-place likelihood by the mean
// likelihood over a fixed set of pseudo-locations.
//
// The pseudo-locations are drawn once, word by word from Bernoulli
// distributions with the training marginals, so an engine with a given
// seed always scores identically.
type sampledNewPlace struct {
	model   *likelihoodModel
	samples []bow.Presence
}

func newSampledNewPlace(m wordModel, model *likelihoodModel, count int, seed uint64) *sampledNewPlace {
	src := rand.NewPCG(seed, seed^0xda3e39cb94b95bdb)
	v := m.tree.Size()

	words := make([]distuv.Bernoulli, v)
	for q := range words {
		words[q] = distuv.Bernoulli{P: m.tree.Marginal(q), Src: src}
	}

	samples := make([]bow.Presence, count)
	for s := range samples {
		sample := make(bow.Presence, v)
		for q := range sample {
			sample[q] = words[q].Rand() == 1
		}
		samples[s] = sample
	}
	return &sampledNewPlace{model: model, samples: samples}
}

func (sp *sampledNewPlace) logLikelihood(z bow.Presence) float64 {
	ls := make([]float64, len(sp.samples))
	for i, sample := range sp.samples {
		ls[i] = sp.model.logLikelihood(z, sample)
	}
	return floats.LogSumExp(ls) - math.Log(float64(len(ls)))
}
