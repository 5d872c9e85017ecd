// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
)

func TestSaveLoad(t *testing.T) {
	want := &Dataset{
		VocabularySize: 3,
		Histograms:     []bow.Histogram{{0.5, 0.5, 0}, {0, 0, 1}},
		Labels:         []int{0, -1},
	}

	for _, name := range []string{"set.yaml", "set.yml", "nested/set.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, Save(path, want))

			got, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestLoad_InfersVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "set.yaml")
	require.NoError(t, os.WriteFile(path, []byte("histograms:\n  - [1, 0]\n  - [0, 1]\n"), 0644))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.VocabularySize)
	assert.Equal(t, -1, d.Label(0))
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		file    string
		content string
		wantErr error
	}{
		{name: "format", file: "set.csv", content: "1,0", wantErr: ErrUnsupportedFormat},
		{name: "ragged", file: "set.yaml", content: "vocabulary_size: 2\nhistograms: [[1, 0], [1]]\n", wantErr: bow.ErrInvalidInput},
		{name: "negative", file: "neg.json", content: `{"histograms": [[1, -1]]}`, wantErr: ErrInvalidDataset},
		{name: "labels", file: "labels.json", content: `{"histograms": [[1, 0]], "labels": [0, 1]}`, wantErr: ErrInvalidDataset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := Load(path)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
