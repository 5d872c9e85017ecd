// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabmap

import (
	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
	"github.com/AleutianAI/fabmap/services/fabmap/matcher"
)

// CompareRequest is the body of POST /v1/fabmap/compare.
type CompareRequest struct {
	// Histograms are the query histograms, one entry per vocabulary word.
	Histograms []bow.Histogram `json:"histograms" binding:"required,min=1"`

	// ReturnAll reports every hypothesis instead of only the best one.
	ReturnAll bool `json:"return_all"`
}

// CompareResponse is returned by POST /v1/fabmap/compare.
type CompareResponse struct {
	Results []matcher.Result `json:"results"`

	// Locations is the number of stored locations after the call.
	Locations int `json:"locations"`
}

// AddLocationRequest is the body of POST /v1/fabmap/locations.
type AddLocationRequest struct {
	Histogram bow.Histogram `json:"histogram" binding:"required"`
}

// AddLocationResponse is returned by POST /v1/fabmap/locations.
type AddLocationResponse struct {
	Index int `json:"index"`
}

// LocationsResponse is returned by GET /v1/fabmap/locations.
type LocationsResponse struct {
	Count          int    `json:"count"`
	State          string `json:"state"`
	VocabularySize int    `json:"vocabulary_size"`
	CommitPolicy   string `json:"commit_policy"`
}

// ModelSummary describes a served model.
type ModelSummary struct {
	VocabularySize   int     `json:"vocabulary_size"`
	Root             int     `json:"root"`
	Depth            int     `json:"depth"`
	TotalInformation float64 `json:"total_information"`
	Histograms       int     `json:"histograms"`
	Locations        int     `json:"locations"`
	State            string  `json:"state"`
}

// TreeResponse is returned by GET /v1/fabmap/tree.
//
// Edges are only included with ?edges=true.
type TreeResponse struct {
	ModelSummary
	Edges []chowliu.Edge `json:"edges,omitempty"`
}

// HealthResponse is returned by GET /v1/fabmap/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}
