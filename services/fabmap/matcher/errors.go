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

import "errors"

var (
	// ErrEmptyModel is returned by Compare before any location is stored.
	ErrEmptyModel = errors.New("no stored locations to compare against")

	// ErrInvalidConfig is returned by NewEngine for out-of-range settings.
	ErrInvalidConfig = errors.New("invalid matcher configuration")

	// ErrUnknownLocation is returned by Location for an index outside 0..N-1.
	ErrUnknownLocation = errors.New("unknown location index")
)
