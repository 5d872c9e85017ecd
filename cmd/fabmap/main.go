// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command fabmap trains and serves FAB-MAP place recognition models.
//
// Usage:
//
//	fabmap train training.yaml         Build a Chow-Liu tree and store the training locations
//	fabmap match queries.yaml --all    Score queries against the stored locations
//	fabmap inspect                     Summarize the stored tree
//	fabmap serve                       Run the HTTP service
//	fabmap config init                 Write the default configuration
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
