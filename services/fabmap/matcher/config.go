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
	"fmt"

	"github.com/go-playground/validator/v10"
)

// CommitPolicy decides when scored queries become stored locations.
type CommitPolicy string

const (
	// CommitManual leaves commits to the caller via Engine.Commit.
	CommitManual CommitPolicy = "manual"

	// CommitEachQuery appends every query right after it is scored, so
	// later queries of the same batch can match it.
	CommitEachQuery CommitPolicy = "each_query"
)

// configValidate is the validator instance for matcher configuration.
var configValidate = validator.New()

// Config holds matcher settings.
//
// Description:
//
//	The two booleans select the strategy pair used by the engine: the
//	Chow-Liu or naive-Bayes observation likelihood, and the analytic
//	(mean-field) or sampled new-place likelihood. The detector model is
//	P(z=1|e=1) = DetectorTruePositive and P(z=1|e=0) = DetectorFalsePositive.
type Config struct {
	UseTreeModel bool `yaml:"use_tree_model" json:"use_tree_model"`
	UseSampling  bool `yaml:"use_sampling" json:"use_sampling"`

	// SampleCount is the number of pseudo-locations drawn for the sampled
	// new-place likelihood. Required when UseSampling is set.
	SampleCount int    `yaml:"sample_count" json:"sample_count" validate:"gte=0,required_if=UseSampling true"`
	SampleSeed  uint64 `yaml:"sample_seed" json:"sample_seed"`

	NewPlacePrior float64 `yaml:"new_place_prior" json:"new_place_prior" validate:"gt=0,lt=1"`

	DetectorTruePositive  float64 `yaml:"p_z_given_e" json:"p_z_given_e" validate:"gt=0,lte=1,gtfield=DetectorFalsePositive"`
	DetectorFalsePositive float64 `yaml:"p_z_given_not_e" json:"p_z_given_not_e" validate:"gte=0,lt=1"`

	// Smoothing s maps every posterior p to s·p + (1-s)/M.
	Smoothing float64 `yaml:"smoothing" json:"smoothing" validate:"gt=0,lte=1"`

	// MotionModel moves MotionBias of the known-location prior mass onto
	// the location that follows the previous best match.
	MotionModel bool    `yaml:"motion_model" json:"motion_model"`
	MotionBias  float64 `yaml:"motion_bias" json:"motion_bias" validate:"gte=0,lte=1"`

	PresenceThreshold float64      `yaml:"presence_threshold" json:"presence_threshold" validate:"gte=0"`
	CommitPolicy      CommitPolicy `yaml:"commit_policy" json:"commit_policy" validate:"oneof=manual each_query"`

	// Workers bounds per-query scoring parallelism. 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0"`
}

// DefaultConfig returns the default matcher configuration: Chow-Liu
// likelihood, mean-field new place, manual commits.
func DefaultConfig() Config {
	return Config{
		UseTreeModel:          true,
		UseSampling:           false,
		SampleCount:           1000,
		SampleSeed:            1,
		NewPlacePrior:         0.5,
		DetectorTruePositive:  0.39,
		DetectorFalsePositive: 0,
		Smoothing:             0.99,
		MotionModel:           false,
		MotionBias:            0.5,
		PresenceThreshold:     0,
		CommitPolicy:          CommitManual,
		Workers:               0,
	}
}

// Validate checks all fields against their allowed ranges.
//
// Outputs:
//
//	error - nil, or an error wrapping ErrInvalidConfig.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
