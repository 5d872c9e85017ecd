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
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Stats accumulates word presence counts over a set of histograms.
//
// Description:
//
//	The joint matrix is symmetric: joint(i, j) counts the histograms in
//	which both i and j are present, and the diagonal joint(i, i) is the
//	marginal presence count of word i. Counts are whole numbers stored as
//	float64, so accumulation is exact and independent of batch order.
//
// Thread Safety: NOT safe for concurrent mutation.
type Stats struct {
	vocabSize  int
	histograms int
	joint      *mat.SymDense
}

// newStats allocates statistics for a vocabulary of the given size.
func newStats(vocabSize int) *Stats {
	s := &Stats{vocabSize: vocabSize}
	if vocabSize > 0 {
		s.joint = mat.NewSymDense(vocabSize, nil)
	}
	return s
}

// VocabularySize returns V, or 0 before the first histogram is added.
func (s *Stats) VocabularySize() int {
	return s.vocabSize
}

// Histograms returns the number of accumulated histograms.
func (s *Stats) Histograms() int {
	return s.histograms
}

// Count returns how many histograms contain word i.
func (s *Stats) Count(i int) int {
	return s.JointCount(i, i)
}

// JointCount returns how many histograms contain both i and j.
func (s *Stats) JointCount(i, j int) int {
	if s.joint == nil {
		return 0
	}
	return int(s.joint.At(i, j))
}

// observe records one histogram given its present words in ascending order.
func (s *Stats) observe(words []int) {
	s.histograms++
	for a, i := range words {
		for _, j := range words[a:] {
			s.joint.SetSym(i, j, s.joint.At(i, j)+1)
		}
	}
}

// merge adds the counts of other into s. Sizes must already agree.
func (s *Stats) merge(other *Stats) {
	s.histograms += other.histograms
	if s.joint != nil && other.joint != nil {
		s.joint.AddSym(s.joint, other.joint)
	}
}

// clone returns a deep copy.
func (s *Stats) clone() *Stats {
	c := &Stats{vocabSize: s.vocabSize, histograms: s.histograms}
	if s.joint != nil {
		c.joint = mat.NewSymDense(s.vocabSize, nil)
		c.joint.CopySym(s.joint)
	}
	return c
}

// mutualInformation returns I(i;j) in nats from empirical frequencies.
//
// The four joint outcomes of (i present, j present) are compared against
// the product of the marginals; zero-probability outcomes contribute
// nothing.
func (s *Stats) mutualInformation(i, j int, joint, product *[4]float64) float64 {
	n := float64(s.histograms)
	ci := s.joint.At(i, i)
	cj := s.joint.At(j, j)
	cij := s.joint.At(i, j)

	pi := ci / n
	pj := cj / n

	joint[0] = (n - ci - cj + cij) / n
	joint[1] = (cj - cij) / n
	joint[2] = (ci - cij) / n
	joint[3] = cij / n

	product[0] = (1 - pi) * (1 - pj)
	product[1] = (1 - pi) * pj
	product[2] = pi * (1 - pj)
	product[3] = pi * pj

	return stat.KullbackLeibler(joint[:], product[:])
}
