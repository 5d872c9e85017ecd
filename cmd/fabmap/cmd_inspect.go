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
	"cmp"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
)

// runInspect prints a summary of the stored tree and its strongest edges.
func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("edges")

	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	tree, err := store.LoadTree(ctx)
	if err != nil {
		return modelError(err)
	}
	locations, err := store.LocationCount(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Title.Render("Chow-Liu tree"))
	fmt.Fprintln(out, newTable("property", "value").
		Row("vocabulary size", strconv.Itoa(tree.Size())).
		Row("root word", strconv.Itoa(tree.Root())).
		Row("training histograms", strconv.Itoa(tree.Histograms())).
		Row("depth", strconv.Itoa(tree.Depth())).
		Row("total information (nats)", strconv.FormatFloat(tree.TotalInformation(), 'f', 4, 64)).
		Row("stored locations", strconv.Itoa(locations)).
		Render())

	if limit <= 0 {
		return nil
	}
	edges := tree.Edges()
	slices.SortStableFunc(edges, func(a, b chowliu.Edge) int {
		return cmp.Compare(b.Information, a.Information)
	})
	edges = edges[:min(limit, len(edges))]

	t := newTable("parent", "child", "information", "P(child)", "P(child | parent)", "P(child | ¬parent)")
	for _, e := range edges {
		t.Row(
			strconv.Itoa(e.Parent),
			strconv.Itoa(e.Child),
			strconv.FormatFloat(e.Information, 'f', 4, 64),
			strconv.FormatFloat(tree.Marginal(e.Child), 'f', 3, 64),
			strconv.FormatFloat(tree.Conditional(e.Child, true), 'f', 3, 64),
			strconv.FormatFloat(tree.Conditional(e.Child, false), 'f', 3, 64),
		)
	}
	fmt.Fprintln(out, styles.Title.Render("Strongest edges"))
	fmt.Fprintln(out, t.Render())
	return nil
}
