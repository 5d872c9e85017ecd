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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/fabmap/services/fabmap"
	"github.com/AleutianAI/fabmap/services/fabmap/storage/badger"
)

// listenAttrs describes the served model for the startup log.
func listenAttrs(addr string, db *badger.DB, locations, words int) []any {
	return []any{
		slog.String("addr", addr),
		slog.Int("locations", locations),
		slog.Int("words", words),
		slog.Bool("in_memory", db.InMemory()),
	}
}

// runServe serves the stored model over HTTP until the command context
// is cancelled, then drains in-flight requests.
func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := appLogger.Slog()

	serverCfg := appConfig.Server
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		serverCfg.Addr = addr
	}

	db, store, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := fabmap.Restore(ctx, store, appConfig.Matcher, logger)
	if err != nil {
		return modelError(err)
	}

	svc := fabmap.NewService(engine,
		fabmap.WithStore(store),
		fabmap.WithServiceLogger(logger),
		fabmap.WithMaxBatch(serverCfg.MaxBatch),
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           fabmap.NewRouter(svc, serverCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("fabmap service listening",
			listenAttrs(serverCfg.Addr, db, engine.Locations(), engine.VocabularySize())...)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down fabmap service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
