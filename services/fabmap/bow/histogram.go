// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package bow provides the bag-of-words histogram types shared by the
// Chow-Liu tree builder and the matching engine.
//
// A vocabulary is nothing more than its size V; word identity is the
// index 0..V-1. A Histogram carries one non-negative weight per word and
// is normally a probability distribution (sums to 1), although only
// presence matters to the models: a word is present when its weight is
// strictly above a presence threshold (0 by default).
//
// # Ownership
//
// Histograms are owned by whoever produced them. The builder and the
// matcher copy what they retain and never mutate their inputs.
package bow

import (
	"fmt"
	"math"
)

// Histogram is a dense bag-of-words vector with one entry per word.
type Histogram []float64

// Presence is a binarized histogram: Presence[i] reports whether word i
// was observed.
type Presence []bool

// Len returns the number of words in the histogram.
func (h Histogram) Len() int {
	return len(h)
}

// Clone returns a copy of the histogram.
func (h Histogram) Clone() Histogram {
	if h == nil {
		return nil
	}
	out := make(Histogram, len(h))
	copy(out, h)
	return out
}

// Sum returns the total weight of the histogram.
func (h Histogram) Sum() float64 {
	var s float64
	for _, v := range h {
		s += v
	}
	return s
}

// Validate checks that every entry is finite and non-negative.
//
// The returned error wraps ErrInvalidInput and names the first bad word.
func (h Histogram) Validate() error {
	for i, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: word %d is not finite", ErrInvalidInput, i)
		}
		if v < 0 {
			return fmt.Errorf("%w: word %d is negative (%g)", ErrInvalidInput, i, v)
		}
	}
	return nil
}

// Binarize converts the histogram to a presence vector.
//
// Word i is present iff h[i] > threshold.
func (h Histogram) Binarize(threshold float64) Presence {
	p := make(Presence, len(h))
	for i, v := range h {
		p[i] = v > threshold
	}
	return p
}

// Words returns the indices of present words in ascending order.
func (h Histogram) Words(threshold float64) []int {
	words := make([]int, 0, 8)
	for i, v := range h {
		if v > threshold {
			words = append(words, i)
		}
	}
	return words
}

// Normalize returns a copy of h rescaled to sum to 1.
//
// A histogram with zero total weight is returned unchanged (as a copy),
// since it describes an observation without any recognized word.
func Normalize(h Histogram) Histogram {
	out := h.Clone()
	s := h.Sum()
	if s <= 0 {
		return out
	}
	for i := range out {
		out[i] /= s
	}
	return out
}

// Count returns the number of present words.
func (p Presence) Count() int {
	n := 0
	for _, b := range p {
		if b {
			n++
		}
	}
	return n
}

// ValidateBatch checks a batch against a vocabulary size.
//
// Description:
//
//	Every histogram must have exactly vocabSize entries and pass
//	Validate. Length errors wrap lengthErr so callers can choose between
//	ErrInvalidInput (tree building) and ErrDimensionMismatch (matching).
//	Entry errors always wrap ErrInvalidInput.
//
// Inputs:
//
//	op        - Operation name recorded in the InputError.
//	batch     - Histograms to check.
//	vocabSize - Expected length of every histogram.
//	lengthErr - Sentinel to wrap for length mismatches.
//
// Outputs:
//
//	error - nil, or an *InputError for the first offending histogram.
func ValidateBatch(op string, batch []Histogram, vocabSize int, lengthErr error) error {
	for i, h := range batch {
		if len(h) != vocabSize {
			return &InputError{
				Op:    op,
				Index: i,
				Err:   fmt.Errorf("%w: got %d words, want %d", lengthErr, len(h), vocabSize),
			}
		}
		if err := h.Validate(); err != nil {
			return &InputError{Op: op, Index: i, Err: err}
		}
	}
	return nil
}
