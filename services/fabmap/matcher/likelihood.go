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

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
)

// detector is the word detector model P(z | e).
type detector struct {
	truePositive  float64 // P(z=1 | e=1)
	falsePositive float64 // P(z=1 | e=0)
}

// p returns P(z | e).
func (d detector) p(z, e bool) float64 {
	pz := d.falsePositive
	if e {
		pz = d.truePositive
	}
	return bernoulli(pz, z)
}

// bernoulli returns p when x is true and 1-p otherwise.
func bernoulli(p float64, x bool) float64 {
	if x {
		return p
	}
	return 1 - p
}

// wordModel evaluates per-word probabilities under a tree and a detector.
type wordModel struct {
	tree *chowliu.Tree
	det  detector
}

// existence returns P(e_q = 1 | Lz_q = lz), the posterior that word q
// exists at a location that observed lz.
func (m wordModel) existence(q int, lz bool) float64 {
	marginal := m.tree.Marginal(q)
	a := m.det.p(lz, true) * marginal
	b := m.det.p(lz, false) * (1 - marginal)
	return a / (a + b)
}

// observation returns P(z_q = z | z_p = zp) for a location at which word
// q exists with probability pe.
//
// For each existence state e the detector and tree factors combine as
// β/(α+β) with α = P(z)P(¬z|e)P(¬z|zp) and β = P(¬z)P(z|e)P(z|zp).
func (m wordModel) observation(q int, z, zp bool, pe float64) float64 {
	marginal := m.tree.Marginal(q)
	cond := m.tree.Conditional(q, zp)

	var p float64
	for _, e := range [2]bool{false, true} {
		alpha := bernoulli(marginal, z) * m.det.p(!z, e) * bernoulli(cond, !z)
		beta := bernoulli(marginal, !z) * m.det.p(z, e) * bernoulli(cond, z)
		p += bernoulli(pe, e) * beta / (alpha + beta)
	}
	return p
}

// independent returns P(z_q = z) ignoring word dependencies: the detector
// response averaged over the existence probability pe.
func (m wordModel) independent(z bool, pe float64) float64 {
	return pe*m.det.p(z, true) + (1-pe)*m.det.p(z, false)
}

// factorIndex packs the query bit z, the stored parent bit zp and the
// stored word bit lz into a table offset.
func factorIndex(z, zp, lz bool) int {
	i := 0
	if z {
		i |= 4
	}
	if zp {
		i |= 2
	}
	if lz {
		i |= 1
	}
	return i
}

// likelihoodModel scores a query presence vector against a stored one.
//
// Every word contributes log P(z_q | Lz_p(q), Lz_q), precomputed for all
// eight bit combinations. The root (and, under naive Bayes, every word)
// reads its own bit in place of a parent.
type likelihoodModel struct {
	parent  []int
	factors [][8]float64
}

// newChowLiuLikelihood builds the tree-structured observation model.
func newChowLiuLikelihood(m wordModel) *likelihoodModel {
	v := m.tree.Size()
	lm := &likelihoodModel{parent: make([]int, v), factors: make([][8]float64, v)}

	for q := 0; q < v; q++ {
		lm.parent[q] = m.tree.Parent(q)
		for _, lz := range [2]bool{false, true} {
			pe := m.existence(q, lz)
			for _, zp := range [2]bool{false, true} {
				for _, z := range [2]bool{false, true} {
					lm.factors[q][factorIndex(z, zp, lz)] = math.Log(m.observation(q, z, zp, pe))
				}
			}
		}
	}
	return lm
}

// newNaiveBayesLikelihood builds the word-independence observation model.
func newNaiveBayesLikelihood(m wordModel) *likelihoodModel {
	v := m.tree.Size()
	lm := &likelihoodModel{parent: make([]int, v), factors: make([][8]float64, v)}

	for q := 0; q < v; q++ {
		lm.parent[q] = -1
		for _, lz := range [2]bool{false, true} {
			pe := m.existence(q, lz)
			for _, z := range [2]bool{false, true} {
				f := math.Log(m.independent(z, pe))
				lm.factors[q][factorIndex(z, false, lz)] = f
				lm.factors[q][factorIndex(z, true, lz)] = f
			}
		}
	}
	return lm
}

// logLikelihood returns log P(Z | L) for query bits z and stored bits l.
func (lm *likelihoodModel) logLikelihood(z, l bow.Presence) float64 {
	var sum float64
	for q, p := range lm.parent {
		zp := l[q]
		if p >= 0 {
			zp = l[p]
		}
		sum += lm.factors[q][factorIndex(z[q], zp, l[q])]
	}
	return sum
}
