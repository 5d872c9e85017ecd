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
	"container/heap"
	"context"
)

// ctxCheckInterval is how many attachments happen between context checks.
const ctxCheckInterval = 64

// candidate is the best known edge from the growing tree to a word that
// has not been attached yet.
type candidate struct {
	word   int     // word outside the tree
	from   int     // tree word on the other end of the edge
	weight float64 // mutual information of the edge
	index  int     // position in the frontier heap
}

// edgeBefore reports whether edge (a1, b1) with weight w1 ranks ahead of
// edge (a2, b2) with weight w2.
//
// Higher mutual information ranks first. Equal weights are ordered by the
// lexicographically lowest (min, max) endpoint pair, which makes the order
// total over distinct edges.
func edgeBefore(w1 float64, a1, b1 int, w2 float64, a2, b2 int) bool {
	if w1 != w2 {
		return w1 > w2
	}
	lo1, hi1 := minMax(a1, b1)
	lo2, hi2 := minMax(a2, b2)
	if lo1 != lo2 {
		return lo1 < lo2
	}
	return hi1 < hi2
}

func minMax(a, b int) (int, int) {
	if a < b {
		return a, b
	}
	return b, a
}

// frontier is an indexed max-heap of candidates under edgeBefore.
type frontier []*candidate

func (f frontier) Len() int { return len(f) }

func (f frontier) Less(i, j int) bool {
	a, b := f[i], f[j]
	return edgeBefore(a.weight, a.from, a.word, b.weight, b.from, b.word)
}

func (f frontier) Swap(i, j int) {
	f[i], f[j] = f[j], f[i]
	f[i].index = i
	f[j].index = j
}

func (f *frontier) Push(x any) {
	c := x.(*candidate)
	c.index = len(*f)
	*f = append(*f, c)
}

func (f *frontier) Pop() any {
	old := *f
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	c.index = -1
	*f = old[:n-1]
	return c
}

// maximumSpanningTree runs Prim's algorithm from root over the complete
// graph weighted by mutual information.
//
// Description:
//
//	Every word outside the tree keeps its best crossing edge in the
//	frontier. Attaching a word relaxes the edges from it to the remaining
//	frontier, so each pair is scored exactly once. Edges are oriented away
//	from the root in attachment order.
//
// Outputs:
//
//	parent      - parent[q] for every word, -1 for root.
//	information - mutual information of the edge to the parent, 0 for root.
//	error       - ctx.Err() if cancelled between attachments.
func maximumSpanningTree(ctx context.Context, s *Stats, root int) ([]int, []float64, error) {
	v := s.vocabSize
	parent := make([]int, v)
	information := make([]float64, v)
	parent[root] = -1

	var joint, product [4]float64

	f := make(frontier, 0, v-1)
	for w := 0; w < v; w++ {
		if w == root {
			continue
		}
		f = append(f, &candidate{
			word:   w,
			from:   root,
			weight: s.mutualInformation(root, w, &joint, &product),
			index:  len(f),
		})
	}
	heap.Init(&f)

	// heap.Fix reorders f, so relaxation walks a stable copy.
	pending := make([]*candidate, 0, len(f))

	for attached := 0; f.Len() > 0; attached++ {
		if attached%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}

		best := heap.Pop(&f).(*candidate)
		parent[best.word] = best.from
		information[best.word] = best.weight

		pending = append(pending[:0], f...)
		for _, c := range pending {
			w := s.mutualInformation(best.word, c.word, &joint, &product)
			if edgeBefore(w, best.word, c.word, c.weight, c.from, c.word) {
				c.from = best.word
				c.weight = w
				heap.Fix(&f, c.index)
			}
		}
	}

	return parent, information, nil
}
