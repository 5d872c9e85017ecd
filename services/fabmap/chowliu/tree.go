// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chowliu

import (
	"fmt"
	"math"
	"slices"
)

// Tree is a Chow-Liu dependency tree over a vocabulary.
//
// Description:
//
//	Each word q has at most one parent p(q). The tree carries, per word,
//	the smoothed probability that q is present, and the probability that q
//	is present given that its parent is present or absent. For the root
//	both conditionals equal the marginal.
//
// Invariants:
//   - All slices have length V.
//   - parent[root] == -1 and every other word has exactly one parent.
//   - Following parents from any word reaches the root (connected, acyclic).
//   - All probabilities lie strictly inside (0, 1).
//
// Thread Safety:
//
//	Immutable after construction. Safe for concurrent use.
type Tree struct {
	root          int
	parent        []int
	information   []float64
	marginal      []float64
	givenParent   []float64
	givenNoParent []float64
	histograms    int
}

// Edge is a directed tree edge from a parent word to its child.
type Edge struct {
	Parent      int     `json:"parent" yaml:"parent"`
	Child       int     `json:"child" yaml:"child"`
	Information float64 `json:"information" yaml:"information"`
}

// Size returns the vocabulary size V.
func (t *Tree) Size() int {
	return len(t.parent)
}

// Root returns the root word.
func (t *Tree) Root() int {
	return t.root
}

// Parent returns the parent of word q, or -1 for the root.
func (t *Tree) Parent(q int) int {
	return t.parent[q]
}

// Information returns the mutual information between q and its parent.
func (t *Tree) Information(q int) float64 {
	return t.information[q]
}

// Marginal returns P(q present).
func (t *Tree) Marginal(q int) float64 {
	return t.marginal[q]
}

// Conditional returns P(q present | parent present) when parentPresent is
// true and P(q present | parent absent) otherwise.
func (t *Tree) Conditional(q int, parentPresent bool) float64 {
	if parentPresent {
		return t.givenParent[q]
	}
	return t.givenNoParent[q]
}

// Histograms returns the number of training histograms the tree was built from.
func (t *Tree) Histograms() int {
	return t.histograms
}

// Edges returns the V-1 tree edges ordered by child word.
func (t *Tree) Edges() []Edge {
	edges := make([]Edge, 0, len(t.parent))
	for q, p := range t.parent {
		if p < 0 {
			continue
		}
		edges = append(edges, Edge{Parent: p, Child: q, Information: t.information[q]})
	}
	return edges
}

// TotalInformation returns the summed mutual information of all edges.
func (t *Tree) TotalInformation() float64 {
	var total float64
	for q, p := range t.parent {
		if p >= 0 {
			total += t.information[q]
		}
	}
	return total
}

// Depth returns the length of the longest root-to-leaf path.
func (t *Tree) Depth() int {
	depth := make([]int, len(t.parent))
	for i := range depth {
		depth[i] = -1
	}
	depth[t.root] = 0

	var walk func(q int) int
	walk = func(q int) int {
		if depth[q] >= 0 {
			return depth[q]
		}
		depth[q] = walk(t.parent[q]) + 1
		return depth[q]
	}

	maxDepth := 0
	for q := range t.parent {
		maxDepth = max(maxDepth, walk(q))
	}
	return maxDepth
}

// Validate checks the spanning-tree invariant and the probability tables.
//
// Outputs:
//
//	error - nil, or an error wrapping ErrInvalidTree.
func (t *Tree) Validate() error {
	v := len(t.parent)
	if v == 0 {
		return fmt.Errorf("%w: empty vocabulary", ErrInvalidTree)
	}
	for _, col := range []struct {
		name string
		n    int
	}{
		{"information", len(t.information)},
		{"marginal", len(t.marginal)},
		{"given_parent", len(t.givenParent)},
		{"given_no_parent", len(t.givenNoParent)},
	} {
		if col.n != v {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrInvalidTree, col.name, col.n, v)
		}
	}
	if t.root < 0 || t.root >= v || t.parent[t.root] != -1 {
		return fmt.Errorf("%w: root %d has no -1 parent entry", ErrInvalidTree, t.root)
	}

	for q, p := range t.parent {
		if q == t.root {
			continue
		}
		if p < 0 || p >= v || p == q {
			return fmt.Errorf("%w: word %d has invalid parent %d", ErrInvalidTree, q, p)
		}
	}

	if err := checkAcyclic(t.parent, t.root); err != nil {
		return err
	}

	for q := 0; q < v; q++ {
		for _, p := range [...]float64{t.marginal[q], t.givenParent[q], t.givenNoParent[q]} {
			if math.IsNaN(p) || p <= 0 || p >= 1 {
				return fmt.Errorf("%w: word %d has probability %g outside (0, 1)", ErrInvalidTree, q, p)
			}
		}
		if math.IsNaN(t.information[q]) || math.IsInf(t.information[q], 0) {
			return fmt.Errorf("%w: word %d has non-finite information", ErrInvalidTree, q)
		}
	}
	return nil
}

// checkAcyclic verifies that every word reaches root by following parents.
//
// Parents are already range-checked. With exactly one parentless word and
// V-1 parent links, reaching the root from everywhere implies a connected,
// acyclic spanning tree.
func checkAcyclic(parent []int, root int) error {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]uint8, len(parent))
	state[root] = done
	path := make([]int, 0, 16)

	for start := range parent {
		path = path[:0]
		q := start
		for state[q] == unvisited {
			state[q] = onPath
			path = append(path, q)
			q = parent[q]
		}
		if state[q] == onPath {
			return fmt.Errorf("%w: cycle through word %d", ErrInvalidTree, q)
		}
		for _, w := range path {
			state[w] = done
		}
	}
	return nil
}

// TreeSnapshot is the serializable form of a Tree.
type TreeSnapshot struct {
	Root          int       `json:"root" yaml:"root"`
	Parent        []int     `json:"parent" yaml:"parent"`
	Information   []float64 `json:"information" yaml:"information"`
	Marginal      []float64 `json:"marginal" yaml:"marginal"`
	GivenParent   []float64 `json:"given_parent" yaml:"given_parent"`
	GivenNoParent []float64 `json:"given_no_parent" yaml:"given_no_parent"`
	Histograms    int       `json:"histograms" yaml:"histograms"`
}

// Snapshot returns a deep copy of the tree in serializable form.
func (t *Tree) Snapshot() TreeSnapshot {
	return TreeSnapshot{
		Root:          t.root,
		Parent:        slices.Clone(t.parent),
		Information:   slices.Clone(t.information),
		Marginal:      slices.Clone(t.marginal),
		GivenParent:   slices.Clone(t.givenParent),
		GivenNoParent: slices.Clone(t.givenNoParent),
		Histograms:    t.histograms,
	}
}

// FromSnapshot rebuilds a Tree from a snapshot and validates it.
//
// The snapshot is copied; later changes to it do not affect the tree.
func FromSnapshot(s TreeSnapshot) (*Tree, error) {
	t := &Tree{
		root:          s.Root,
		parent:        slices.Clone(s.Parent),
		information:   slices.Clone(s.Information),
		marginal:      slices.Clone(s.Marginal),
		givenParent:   slices.Clone(s.GivenParent),
		givenNoParent: slices.Clone(s.GivenNoParent),
		histograms:    s.Histograms,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
