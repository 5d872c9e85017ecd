// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataset reads and writes histogram collections on disk.
//
// A dataset file holds a vocabulary size and a list of bag-of-words
// histograms, optionally with one ground-truth label per histogram: the
// stored location a query is expected to match, or -1 for a new place.
// YAML (.yaml, .yml) and JSON (.json) are supported.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
)

var (
	// ErrUnsupportedFormat is returned for file extensions other than
	// .yaml, .yml and .json.
	ErrUnsupportedFormat = errors.New("unsupported dataset format")

	// ErrInvalidDataset is returned when a dataset's shape is inconsistent.
	ErrInvalidDataset = errors.New("invalid dataset")
)

// Dataset is a set of histograms over one vocabulary.
type Dataset struct {
	// VocabularySize is V. Zero means "infer from the first histogram".
	VocabularySize int `yaml:"vocabulary_size" json:"vocabulary_size"`

	Histograms []bow.Histogram `yaml:"histograms" json:"histograms"`

	// Labels optionally holds the expected location per histogram.
	Labels []int `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Validate checks histogram lengths, entries and labels.
//
// A zero VocabularySize is filled in from the first histogram.
func (d *Dataset) Validate() error {
	if d.VocabularySize < 0 {
		return fmt.Errorf("%w: negative vocabulary size %d", ErrInvalidDataset, d.VocabularySize)
	}
	if d.VocabularySize == 0 && len(d.Histograms) > 0 {
		d.VocabularySize = len(d.Histograms[0])
	}
	if err := bow.ValidateBatch("dataset.Validate", d.Histograms, d.VocabularySize, bow.ErrInvalidInput); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDataset, err)
	}
	if d.Labels != nil && len(d.Labels) != len(d.Histograms) {
		return fmt.Errorf("%w: %d labels for %d histograms", ErrInvalidDataset, len(d.Labels), len(d.Histograms))
	}
	for i, l := range d.Labels {
		if l < -1 {
			return fmt.Errorf("%w: label %d of histogram %d", ErrInvalidDataset, l, i)
		}
	}
	return nil
}

// Label returns the label of histogram i, or -1 when unlabeled.
func (d *Dataset) Label(i int) int {
	if i < len(d.Labels) {
		return d.Labels[i]
	}
	return -1
}

// Load reads and validates a dataset file.
func Load(path string) (*Dataset, error) {
	codec, err := codecFor(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}

	var d Dataset
	if err := codec.unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	return &d, nil
}

// Save validates d and writes it to path, creating parent directories.
func Save(path string, d *Dataset) error {
	codec, err := codecFor(path)
	if err != nil {
		return err
	}
	if err := d.Validate(); err != nil {
		return err
	}

	data, err := codec.marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the dataset directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

type codec struct {
	marshal   func(any) ([]byte, error)
	unmarshal func([]byte, any) error
}

func codecFor(path string) (codec, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return codec{marshal: yaml.Marshal, unmarshal: yaml.Unmarshal}, nil
	case ".json":
		return codec{
			marshal: func(v any) ([]byte, error) {
				return json.MarshalIndent(v, "", "  ")
			},
			unmarshal: json.Unmarshal,
		}, nil
	default:
		return codec{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
