// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package matcher

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("fabmap.matcher")
	meter  = otel.Meter("fabmap.matcher")
)

var (
	queriesTotal   metric.Int64Counter
	compareLatency metric.Float64Histogram
	locationsGauge metric.Int64Gauge

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queriesTotal, err = meter.Int64Counter(
			"matcher_queries_total",
			metric.WithDescription("Total number of scored queries"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		compareLatency, err = meter.Float64Histogram(
			"matcher_compare_duration_seconds",
			metric.WithDescription("Duration of Compare calls"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		locationsGauge, err = meter.Int64Gauge(
			"matcher_locations",
			metric.WithDescription("Number of stored locations"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordCompareMetrics records one Compare call.
func recordCompareMetrics(ctx context.Context, duration time.Duration, queries int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	compareLatency.Record(ctx, duration.Seconds(), attrs)
	if success {
		queriesTotal.Add(ctx, int64(queries))
	}
}

// recordLocations records the current number of stored locations.
func recordLocations(ctx context.Context, n int) {
	if err := initMetrics(); err != nil {
		return
	}
	locationsGauge.Record(ctx, int64(n))
}

func startCompareSpan(ctx context.Context, queries int, returnAll bool) (context.Context, trace.Span) {
	return tracer.Start(ctx, "matcher.Compare",
		trace.WithAttributes(
			attribute.Int("matcher.queries", queries),
			attribute.Bool("matcher.return_all", returnAll),
		),
	)
}
