// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{in: "debug", want: LevelDebug},
		{in: "INFO", want: LevelInfo},
		{in: "", want: LevelInfo},
		{in: "warning", want: LevelWarn},
		{in: " error ", want: LevelError},
		{in: "trace", want: LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownLevel)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Formats(t *testing.T) {
	var jsonBuf, textBuf, autoBuf bytes.Buffer

	jsonLogger, err := New(Config{Format: FormatJSON, Output: &jsonBuf, Service: "test"})
	require.NoError(t, err)
	jsonLogger.Info("hello", "words", 4)

	var record map[string]any
	require.NoError(t, json.Unmarshal(jsonBuf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "test", record["service"])
	assert.Equal(t, float64(4), record["words"])

	textLogger, err := New(Config{Format: FormatText, Output: &textBuf})
	require.NoError(t, err)
	textLogger.Info("hello")
	assert.Contains(t, textBuf.String(), "msg=hello")

	// A buffer is not a terminal.
	autoLogger, err := New(Config{Output: &autoBuf})
	require.NoError(t, err)
	autoLogger.Info("hello")
	assert.True(t, strings.HasPrefix(autoBuf.String(), "{"))
}

func TestNew_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Format: FormatText, Output: &buf})
	require.NoError(t, err)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	out := buf.String()
	assert.NotContains(t, out, "msg=debug")
	assert.NotContains(t, out, "msg=info")
	assert.Contains(t, out, "msg=warn")
	assert.Contains(t, out, "msg=error")
}

func TestNew_LogFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	logger, err := New(Config{LogDir: dir, Service: "svc", Format: FormatText, Output: &console})
	require.NoError(t, err)

	logger.With("query", 3).Info("scored")
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(dir, "svc_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"scored"`)
	assert.Contains(t, string(data), `"query":3`)
	assert.Contains(t, console.String(), "msg=scored")
}

func TestNew_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Quiet: true, Output: &buf})
	require.NoError(t, err)

	logger.Error("dropped")
	assert.Empty(t, buf.String())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), expandPath("~/logs"))
	assert.Equal(t, "/var/log", expandPath("/var/log"))
}
