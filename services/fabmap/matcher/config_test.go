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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "sampling", mutate: func(c *Config) { c.UseSampling = true; c.SampleCount = 10 }},
		{name: "sampling without samples", mutate: func(c *Config) { c.UseSampling = true; c.SampleCount = 0 }, wantErr: true},
		{name: "new place prior zero", mutate: func(c *Config) { c.NewPlacePrior = 0 }, wantErr: true},
		{name: "new place prior one", mutate: func(c *Config) { c.NewPlacePrior = 1 }, wantErr: true},
		{name: "detector true positive zero", mutate: func(c *Config) { c.DetectorTruePositive = 0 }, wantErr: true},
		{name: "detector false above true", mutate: func(c *Config) { c.DetectorFalsePositive = 0.5 }, wantErr: true},
		{name: "smoothing nan", mutate: func(c *Config) { c.Smoothing = math.NaN() }, wantErr: true},
		{name: "motion bias above one", mutate: func(c *Config) { c.MotionBias = 1.5 }, wantErr: true},
		{name: "negative threshold", mutate: func(c *Config) { c.PresenceThreshold = -0.1 }, wantErr: true},
		{name: "unknown commit policy", mutate: func(c *Config) { c.CommitPolicy = "sometimes" }, wantErr: true},
		{name: "negative workers", mutate: func(c *Config) { c.Workers = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
