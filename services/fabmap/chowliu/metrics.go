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
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for tree construction.
var (
	tracer = otel.Tracer("fabmap.chowliu")
	meter  = otel.Meter("fabmap.chowliu")
)

var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"chowliu_build_duration_seconds",
			metric.WithDescription("Duration of Chow-Liu tree builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"chowliu_builds_total",
			metric.WithDescription("Total number of Chow-Liu tree builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records one Make call.
func recordBuildMetrics(ctx context.Context, duration time.Duration, words int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
		attribute.Int("words", words),
	)
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)
}

func startBuildSpan(ctx context.Context, words, histograms int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "chowliu.Make",
		trace.WithAttributes(
			attribute.Int("chowliu.vocabulary_size", words),
			attribute.Int("chowliu.histograms", histograms),
		),
	)
}
