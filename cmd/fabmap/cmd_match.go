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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fabmap/services/fabmap"
	"github.com/AleutianAI/fabmap/services/fabmap/dataset"
	"github.com/AleutianAI/fabmap/services/fabmap/matcher"
)

// runMatch scores a query dataset against the stored model. Labelled
// datasets also get a confusion matrix and the match accuracy.
func runMatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := appLogger.Slog()
	all, _ := cmd.Flags().GetBool("all")
	commit, _ := cmd.Flags().GetBool("commit")
	asJSON, _ := cmd.Flags().GetBool("json")

	ds, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := appConfig.Matcher
	if commit {
		cfg.CommitPolicy = matcher.CommitEachQuery
	}
	engine, err := fabmap.Restore(ctx, store, cfg, logger)
	if err != nil {
		return modelError(err)
	}

	svc := fabmap.NewService(engine, fabmap.WithStore(store), fabmap.WithServiceLogger(logger))
	results, err := svc.Compare(ctx, ds.Histograms, all)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return printJSON(out, results)
	}

	t := newTable("query", "location", "probability", "log likelihood")
	for _, r := range results {
		matches := []matcher.Match{r.Best()}
		if all {
			matches = r.Ranked()
		}
		for _, m := range matches {
			t.Row(
				strconv.Itoa(r.QueryIndex),
				locationName(m.LocationIndex),
				strconv.FormatFloat(m.Probability, 'f', 4, 64),
				strconv.FormatFloat(m.LogLikelihood, 'f', 2, 64),
			)
		}
	}
	fmt.Fprintln(out, styles.Title.Render("Matches"))
	fmt.Fprintln(out, t.Render())

	if commit {
		fmt.Fprintf(out, "%s %d locations stored\n", styles.Success.Render("committed"), engine.Locations())
	}

	if ds.Labels == nil {
		return nil
	}
	expected := make([]int, len(results))
	predicted := make([]int, len(results))
	for i, r := range results {
		expected[i] = ds.Label(i)
		predicted[i] = r.Best().LocationIndex
	}
	c := newConfusion(expected, predicted)
	fmt.Fprintln(out, styles.Title.Render("Confusion matrix"))
	fmt.Fprintln(out, c.Render())
	fmt.Fprintf(out, "accuracy %s (%d/%d)\n",
		styles.Success.Render(strconv.FormatFloat(100*c.Accuracy(), 'f', 1, 64)+"%"),
		c.correct, c.total)
	return nil
}
