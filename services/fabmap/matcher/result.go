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
	"encoding/json"
	"math"
	"slices"
)

// NewPlaceIndex is the LocationIndex of the "new place" hypothesis.
const NewPlaceIndex = -1

// Match is the posterior of one hypothesis for one query.
type Match struct {
	// QueryIndex is the position of the query within its Compare batch.
	QueryIndex int `json:"query_index"`

	// LocationIndex is the stored location, or NewPlaceIndex.
	LocationIndex int `json:"location_index"`

	// LogLikelihood is log P(Z | hypothesis) before priors. It is -Inf
	// when a detector probability of 1 rules the hypothesis out, and
	// encodes as JSON null in that case.
	LogLikelihood float64 `json:"log_likelihood"`

	// Probability is the normalized, smoothed posterior.
	Probability float64 `json:"probability"`
}

type matchJSON struct {
	QueryIndex    int      `json:"query_index"`
	LocationIndex int      `json:"location_index"`
	LogLikelihood *float64 `json:"log_likelihood"`
	Probability   float64  `json:"probability"`
}

// MarshalJSON writes a non-finite log likelihood as null.
func (m Match) MarshalJSON() ([]byte, error) {
	out := matchJSON{
		QueryIndex:    m.QueryIndex,
		LocationIndex: m.LocationIndex,
		Probability:   m.Probability,
	}
	if !math.IsInf(m.LogLikelihood, 0) && !math.IsNaN(m.LogLikelihood) {
		ll := m.LogLikelihood
		out.LogLikelihood = &ll
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a null log likelihood back as -Inf.
func (m *Match) UnmarshalJSON(data []byte) error {
	var in matchJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.QueryIndex = in.QueryIndex
	m.LocationIndex = in.LocationIndex
	m.Probability = in.Probability
	m.LogLikelihood = math.Inf(-1)
	if in.LogLikelihood != nil {
		m.LogLikelihood = *in.LogLikelihood
	}
	return nil
}

// IsNewPlace reports whether the match is the new-place hypothesis.
func (m Match) IsNewPlace() bool {
	return m.LocationIndex == NewPlaceIndex
}

// Result holds the matches reported for one query.
//
// With returnAll the matches list the new place first and then every
// stored location in index order. Otherwise only the best match is kept.
type Result struct {
	QueryIndex int     `json:"query_index"`
	Matches    []Match `json:"matches"`
}

// Best returns the most probable match. Ties go to the earliest match.
func (r Result) Best() Match {
	best := r.Matches[0]
	for _, m := range r.Matches[1:] {
		if m.Probability > best.Probability {
			best = m
		}
	}
	return best
}

// Ranked returns the matches ordered by decreasing probability, ties
// keeping their original order.
func (r Result) Ranked() []Match {
	ranked := slices.Clone(r.Matches)
	slices.SortStableFunc(ranked, func(a, b Match) int {
		switch {
		case a.Probability > b.Probability:
			return -1
		case a.Probability < b.Probability:
			return 1
		default:
			return 0
		}
	})
	return ranked
}

// Probabilities returns the posterior indexed like the full match list:
// slot 0 is the new place and slot k+1 is location k. Missing hypotheses
// are zero, so only results of returnAll calls sum to 1.
func (r Result) Probabilities(locations int) []float64 {
	probs := make([]float64, locations+1)
	for _, m := range r.Matches {
		if slot := m.LocationIndex + 1; slot >= 0 && slot < len(probs) {
			probs[slot] = m.Probability
		}
	}
	return probs
}

// buildResult converts scored hypotheses into a Result.
func buildResult(query int, logLik, probs []float64, returnAll bool) Result {
	matches := make([]Match, len(probs))
	for i := range probs {
		matches[i] = Match{
			QueryIndex:    query,
			LocationIndex: i - 1,
			LogLikelihood: logLik[i],
			Probability:   probs[i],
		}
	}

	r := Result{QueryIndex: query, Matches: matches}
	if !returnAll {
		r.Matches = []Match{r.Best()}
	}
	return r
}
