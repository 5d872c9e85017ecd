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
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/fabmap/pkg/logging"
	"github.com/AleutianAI/fabmap/services/fabmap/config"
	"github.com/AleutianAI/fabmap/services/fabmap/telemetry"
)

var (
	configPath string
	logLevel   string
	jsonLogs   bool

	// Populated by PersistentPreRunE.
	appConfig         config.Config
	appLogger         *logging.Logger
	telemetryShutdown func(context.Context) error
)

var (
	rootCmd = &cobra.Command{
		Use:   "fabmap",
		Short: "Appearance-based place recognition with Chow-Liu trees",
		Long: `fabmap learns a Chow-Liu tree over visual-word co-occurrence and
scores new observations against previously visited places.`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}

	trainCmd = &cobra.Command{
		Use:   "train [dataset]",
		Short: "Build a Chow-Liu tree and store the training locations",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrain, // Defined in cmd_train.go
	}

	matchCmd = &cobra.Command{
		Use:   "match [dataset]",
		Short: "Score query histograms against the stored locations",
		Args:  cobra.ExactArgs(1),
		RunE:  runMatch, // Defined in cmd_match.go
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "Summarize the stored Chow-Liu tree",
		Args:  cobra.NoArgs,
		RunE:  runInspect, // Defined in cmd_inspect.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP matching service",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",

		// The file may not exist yet; skip loading it.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration to --config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteDefault(configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", styles.Success.Render("wrote"), configPath)
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fabmap.yaml", "Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().Bool("reset", false, "Drop the stored model before training")

	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().Bool("all", false, "Report every hypothesis instead of only the best")
	matchCmd.Flags().Bool("commit", false, "Store every query as a new location after scoring it")
	matchCmd.Flags().Bool("json", false, "Print results as JSON")

	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Int("edges", 10, "Number of strongest edges to list")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Override the configured listen address")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

// setup loads the configuration and installs logging and telemetry.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if jsonLogs {
		cfg.Logging.Format = string(logging.FormatJSON)
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		Service: cfg.Telemetry.ServiceName,
		Format:  logging.Format(cfg.Logging.Format),
		LogDir:  cfg.Logging.Dir,
	})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	slog.SetDefault(logger.Slog())
	cfg.Storage.Logger = logger.Slog()

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		logger.Close()
		return err
	}

	appConfig = cfg
	appLogger = logger
	telemetryShutdown = shutdown
	return nil
}

// teardown flushes telemetry and closes the log file.
func teardown(cmd *cobra.Command, args []string) error {
	if telemetryShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		telemetryShutdown = nil
	}
	if appLogger != nil {
		err := appLogger.Close()
		appLogger = nil
		return err
	}
	return nil
}
