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
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/AleutianAI/fabmap/services/fabmap/storage/badger"
)

// errNoModel is returned when a command needs a trained model.
var errNoModel = errors.New("no model stored, run `fabmap train` first")

// openStore opens the configured model store.
func openStore() (*badger.DB, *badger.Store, error) {
	db, err := badger.OpenDB(appConfig.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return db, badger.NewStore(db, appLogger.Slog()), nil
}

// modelError replaces a missing-tree error with a hint.
func modelError(err error) error {
	if errors.Is(err, badger.ErrNotFound) {
		return errNoModel
	}
	return err
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
