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

import "errors"

// Sentinel errors for tree construction.
var (
	// ErrInsufficientData is returned by Make when fewer than two
	// histograms have been accumulated or the vocabulary is empty.
	// Mutual information is undefined in both cases.
	ErrInsufficientData = errors.New("insufficient training data")

	// ErrInvalidTree is returned when a tree or snapshot violates the
	// spanning-tree invariant or carries out-of-range probabilities.
	ErrInvalidTree = errors.New("invalid Chow-Liu tree")

	// ErrIncompatibleStats is returned by Merge when two builders disagree
	// on vocabulary size or presence threshold.
	ErrIncompatibleStats = errors.New("incompatible co-occurrence statistics")
)
