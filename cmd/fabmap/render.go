// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"maps"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/fabmap/services/fabmap/matcher"
)

var (
	colorAccent  = lipgloss.Color("#20B9B4")
	colorBorder  = lipgloss.Color("#16858E")
	colorMuted   = lipgloss.Color("#2C4A54")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
)

var styles = struct {
	Title   lipgloss.Style
	Header  lipgloss.Style
	Cell    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Header:  lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Padding(0, 1),
	Cell:    lipgloss.NewStyle().Padding(0, 1),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted).Padding(0, 1),
	Success: lipgloss.NewStyle().Foreground(colorSuccess).Bold(true),
	Warning: lipgloss.NewStyle().Foreground(colorWarning),
}

// newTable returns a bordered table with styled headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorBorder)).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.Header
			}
			return styles.Cell
		})
}

// locationName renders a location index, or "new" for the new place.
func locationName(i int) string {
	if i == matcher.NewPlaceIndex {
		return "new"
	}
	return strconv.Itoa(i)
}

// confusion counts expected against predicted locations.
type confusion struct {
	classes []int
	index   map[int]int
	counts  [][]int
	total   int
	correct int
}

// newConfusion builds the matrix over every location that appears in
// either slice. The new place sorts first.
func newConfusion(expected, predicted []int) *confusion {
	seen := make(map[int]struct{}, len(expected))
	for _, l := range expected {
		seen[l] = struct{}{}
	}
	for _, l := range predicted {
		seen[l] = struct{}{}
	}

	c := &confusion{
		classes: slices.Sorted(maps.Keys(seen)),
		index:   make(map[int]int, len(seen)),
	}
	for i, l := range c.classes {
		c.index[l] = i
	}
	c.counts = make([][]int, len(c.classes))
	for i := range c.counts {
		c.counts[i] = make([]int, len(c.classes))
	}

	for i := range expected {
		c.counts[c.index[expected[i]]][c.index[predicted[i]]]++
		c.total++
		if expected[i] == predicted[i] {
			c.correct++
		}
	}
	return c
}

// Accuracy returns the fraction of queries matched to their expected
// location, or 0 for an empty matrix.
func (c *confusion) Accuracy() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.correct) / float64(c.total)
}

// Render draws the matrix with expected locations as rows.
func (c *confusion) Render() string {
	headers := []string{"expected \\ predicted"}
	for _, l := range c.classes {
		headers = append(headers, locationName(l))
	}

	t := newTable(headers...).StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return styles.Header
		case col == 0:
			return styles.Header
		case col-1 == row:
			return styles.Cell.Foreground(colorSuccess).Bold(true)
		case c.counts[row][col-1] == 0:
			return styles.Muted
		default:
			return styles.Cell.Foreground(colorWarning)
		}
	})
	for i, l := range c.classes {
		row := []string{locationName(l)}
		for _, n := range c.counts[i] {
			row = append(row, strconv.Itoa(n))
		}
		t.Row(row...)
	}
	return t.Render()
}
