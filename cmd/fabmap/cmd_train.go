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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fabmap/services/fabmap/chowliu"
	"github.com/AleutianAI/fabmap/services/fabmap/dataset"
	"github.com/AleutianAI/fabmap/services/fabmap/storage/badger"
)

// runTrain builds a tree from a dataset and stores it together with the
// dataset's histograms as the initial locations.
func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := appLogger.Slog()
	reset, _ := cmd.Flags().GetBool("reset")

	ds, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if reset {
		if err := store.Reset(ctx); err != nil {
			return err
		}
	} else if _, err := store.LoadTree(ctx); err == nil {
		return fmt.Errorf("a model is already stored in %s, use --reset to replace it", appConfig.Storage.Path)
	} else if !errors.Is(err, badger.ErrNotFound) {
		return err
	}

	start := time.Now()
	builder := chowliu.NewBuilder(appConfig.Builder, chowliu.WithLogger(logger))
	if err := builder.Add(ds.Histograms); err != nil {
		return err
	}
	tree, err := builder.Make(ctx)
	if err != nil {
		return err
	}

	if err := store.SaveTree(ctx, tree); err != nil {
		return err
	}
	if _, err := store.AppendLocations(ctx, ds.Histograms); err != nil {
		return err
	}

	logger.Info("model trained",
		slog.String("dataset", args[0]),
		slog.Int("words", tree.Size()),
		slog.Int("locations", len(ds.Histograms)),
		slog.Duration("elapsed", time.Since(start)),
	)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styles.Title.Render("Model trained"))
	fmt.Fprintln(out, newTable("property", "value").
		Row("vocabulary size", strconv.Itoa(tree.Size())).
		Row("training histograms", strconv.Itoa(tree.Histograms())).
		Row("tree depth", strconv.Itoa(tree.Depth())).
		Row("total information (nats)", strconv.FormatFloat(tree.TotalInformation(), 'f', 4, 64)).
		Row("stored locations", strconv.Itoa(len(ds.Histograms))).
		Render())
	return nil
}
