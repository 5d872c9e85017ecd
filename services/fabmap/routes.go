// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fabmap

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/fabmap/services/fabmap/config"
	"github.com/AleutianAI/fabmap/services/fabmap/telemetry"
)

// RegisterRoutes registers the fabmap routes under rg.
//
// Example:
//
//	v1 := router.Group("/v1")
//	fabmap.RegisterRoutes(v1, fabmap.NewHandlers(svc))
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	fm := rg.Group("/fabmap")
	{
		// Matching
		fm.POST("/compare", handlers.HandleCompare)

		// Locations
		fm.POST("/locations", handlers.HandleAddLocation)
		fm.GET("/locations", handlers.HandleListLocations)

		// Model
		fm.GET("/tree", handlers.HandleTree)

		fm.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds the complete HTTP handler for svc.
//
// Description:
//
//	Installs recovery, OpenTelemetry tracing and Prometheus request
//	metrics on every route, the rate limiter on the /v1 API, and the
//	/metrics endpoint outside the limiter.
func NewRouter(svc *Service, cfg config.ServerConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("fabmap"))
	router.Use(requestMetrics())

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	v1.Use(rateLimit(cfg.RateLimit, cfg.Burst))
	RegisterRoutes(v1, NewHandlers(svc))
	return router
}
