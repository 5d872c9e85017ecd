// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bow

import (
	"errors"
	"fmt"
)

// Sentinel errors for histogram validation.
var (
	// ErrInvalidInput is returned for malformed histograms: negative,
	// NaN or infinite entries, or a length that disagrees with the
	// vocabulary size a builder has already fixed.
	ErrInvalidInput = errors.New("invalid histogram")

	// ErrDimensionMismatch is returned when a histogram handed to a
	// matcher does not have exactly one entry per vocabulary word.
	ErrDimensionMismatch = errors.New("histogram dimension mismatch")
)

// InputError describes which histogram of a batch failed validation.
//
// Description:
//
//	Wraps one of the sentinel errors above with the operation that
//	rejected the batch and the position of the offending histogram.
//	Use errors.Is against the sentinels; InputError only adds context.
type InputError struct {
	// Op is the rejecting operation, e.g. "chowliu.Add".
	Op string

	// Index is the position of the histogram within its batch.
	Index int

	// Err is the underlying sentinel, possibly wrapped with detail.
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s: histogram %d: %v", e.Op, e.Index, e.Err)
}

// Unwrap returns the underlying error.
func (e *InputError) Unwrap() error {
	return e.Err
}
