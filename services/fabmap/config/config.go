// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the fabmap YAML configuration file.
//
// Every section has defaults, so a missing file or a partial file is
// valid: keys present in the file override the defaults, the rest keep
// them. The merged result is validated with go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
	"github.com/AleutianAI/fabmap/services/fabmap/matcher"
	"github.com/AleutianAI/fabmap/services/fabmap/storage/badger"
	"github.com/AleutianAI/fabmap/services/fabmap/telemetry"
)

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

var configValidate = validator.New()

// Config is the complete fabmap configuration.
type Config struct {
	Builder   chowliu.BuilderConfig `yaml:"builder" json:"builder"`
	Matcher   matcher.Config        `yaml:"matcher" json:"matcher"`
	Storage   badger.Config         `yaml:"storage" json:"storage"`
	Logging   LoggingConfig         `yaml:"logging" json:"logging"`
	Telemetry telemetry.Config      `yaml:"telemetry" json:"telemetry"`
	Server    ServerConfig          `yaml:"server" json:"server"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" json:"format" validate:"oneof=auto text json"`
	Dir    string `yaml:"dir" json:"dir"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr" validate:"required"`

	// RateLimit is the sustained request rate per second. 0 disables it.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit" validate:"gte=0"`
	Burst     int     `yaml:"burst" json:"burst" validate:"gte=0"`

	// MaxBatch bounds the number of histograms per compare request.
	MaxBatch int `yaml:"max_batch" json:"max_batch" validate:"gt=0"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Builder:   chowliu.DefaultBuilderConfig(),
		Matcher:   matcher.DefaultConfig(),
		Storage:   badger.DefaultConfig(),
		Logging:   LoggingConfig{Level: "info", Format: "auto"},
		Telemetry: telemetry.DefaultConfig(),
		Server: ServerConfig{
			Addr:            ":8090",
			RateLimit:       50,
			Burst:           100,
			MaxBatch:        256,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	// Queries must be binarized the way the training statistics were.
	if c.Builder.PresenceThreshold != c.Matcher.PresenceThreshold {
		return fmt.Errorf("%w: builder.presence_threshold %g differs from matcher.presence_threshold %g",
			ErrInvalidConfig, c.Builder.PresenceThreshold, c.Matcher.PresenceThreshold)
	}
	return nil
}

// Load reads path over the defaults and validates the result.
//
// A missing file yields the validated defaults. An empty path does too.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return cfg, cfg.Validate()
	case err != nil:
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories. Existing files are left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
