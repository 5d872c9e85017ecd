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

	"gonum.org/v1/gonum/floats"
)

// logPriors returns the log prior of every hypothesis: slot 0 is the new
// place, slot k+1 is stored location k.
//
// Known locations share 1-NewPlacePrior uniformly. With the motion model
// enabled and a previous match at last, MotionBias of that mass moves to
// location last+1 when it exists.
func logPriors(cfg Config, n, last int) []float64 {
	priors := make([]float64, n+1)
	priors[0] = math.Log(cfg.NewPlacePrior)

	known := 1 - cfg.NewPlacePrior
	target := last + 1
	if !cfg.MotionModel || last < 0 || target >= n {
		uniform := math.Log(known / float64(n))
		for k := 1; k <= n; k++ {
			priors[k] = uniform
		}
		return priors
	}

	spread := known * (1 - cfg.MotionBias) / float64(n)
	for k := 1; k <= n; k++ {
		priors[k] = math.Log(spread)
	}
	priors[target+1] = math.Log(spread + known*cfg.MotionBias)
	return priors
}

// posterior turns per-hypothesis log likelihoods and log priors into
// smoothed probabilities summing to 1.
//
// When every hypothesis has zero likelihood the posterior falls back to
// the prior.
func posterior(logLik, logPrior []float64, smoothing float64) []float64 {
	m := len(logLik)
	probs := make([]float64, m)
	floats.AddTo(probs, logLik, logPrior)

	norm := floats.LogSumExp(probs)
	if math.IsInf(norm, -1) {
		copy(probs, logPrior)
		norm = floats.LogSumExp(probs)
	}

	floor := (1 - smoothing) / float64(m)
	for i, lp := range probs {
		probs[i] = smoothing*math.Exp(lp-norm) + floor
	}
	return probs
}
