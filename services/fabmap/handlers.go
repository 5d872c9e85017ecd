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
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/fabmap/services/fabmap/bow"
	"github.com/AleutianAI/fabmap/services/fabmap/matcher"
)

// ServiceVersion is the fabmap service version.
const ServiceVersion = "0.1.0"

// Handlers contains the HTTP handlers for the fabmap service.
type Handlers struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc, logger: svc.logger}
}

// HandleCompare handles POST /v1/fabmap/compare.
//
// Description:
//
//	Scores every query histogram against the stored locations. With
//	return_all the response lists the new place first and then every
//	stored location; otherwise only the best match per query.
//
// Response:
//
//	200 OK: CompareResponse
//	400 Bad Request: Malformed body, bad histogram or oversized batch
//	409 Conflict: No location stored yet
//	500 Internal Server Error: Store failure
func (h *Handlers) HandleCompare(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Code:    "invalid_request",
			Details: err.Error(),
		})
		return
	}
	compareQueries.Observe(float64(len(req.Histograms)))

	results, err := h.svc.Compare(c.Request.Context(), req.Histograms, req.ReturnAll)
	if err != nil {
		h.writeError(c, logger, "compare", err)
		return
	}

	logger.Debug("compare served",
		slog.Int("queries", len(req.Histograms)),
		slog.Bool("return_all", req.ReturnAll),
	)
	c.JSON(http.StatusOK, CompareResponse{
		Results:   results,
		Locations: h.svc.Engine().Locations(),
	})
}

// HandleAddLocation handles POST /v1/fabmap/locations.
//
// Response:
//
//	201 Created: AddLocationResponse
//	400 Bad Request: Malformed body or bad histogram
//	500 Internal Server Error: Store failure
func (h *Handlers) HandleAddLocation(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With(slog.String("request_id", requestID))

	var req AddLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Code:    "invalid_request",
			Details: err.Error(),
		})
		return
	}

	index, err := h.svc.AddLocation(c.Request.Context(), req.Histogram)
	if err != nil {
		h.writeError(c, logger, "add location", err)
		return
	}

	logger.Info("location committed", slog.Int("index", index))
	c.JSON(http.StatusCreated, AddLocationResponse{Index: index})
}

// HandleListLocations handles GET /v1/fabmap/locations.
func (h *Handlers) HandleListLocations(c *gin.Context) {
	getOrCreateRequestID(c)
	engine := h.svc.Engine()
	c.JSON(http.StatusOK, LocationsResponse{
		Count:          engine.Locations(),
		State:          engine.State().String(),
		VocabularySize: engine.VocabularySize(),
		CommitPolicy:   string(engine.Config().CommitPolicy),
	})
}

// HandleTree handles GET /v1/fabmap/tree.
//
// Query Parameters:
//
//	edges - "true" to include every parent/child edge.
func (h *Handlers) HandleTree(c *gin.Context) {
	getOrCreateRequestID(c)
	resp := TreeResponse{ModelSummary: h.svc.Summary()}
	if c.Query("edges") == "true" {
		resp.Edges = h.svc.Engine().Tree().Edges()
	}
	c.JSON(http.StatusOK, resp)
}

// HandleHealth handles GET /v1/fabmap/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// writeError maps service errors to status codes.
func (h *Handlers) writeError(c *gin.Context, logger *slog.Logger, op string, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, bow.ErrDimensionMismatch):
		status, code = http.StatusBadRequest, "dimension_mismatch"
	case errors.Is(err, bow.ErrInvalidInput):
		status, code = http.StatusBadRequest, "invalid_histogram"
	case errors.Is(err, ErrBatchTooLarge):
		status, code = http.StatusBadRequest, "batch_too_large"
	case errors.Is(err, matcher.ErrEmptyModel):
		status, code = http.StatusConflict, "empty_model"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusServiceUnavailable, "cancelled"
	default:
		logger.Error(op+" failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: op + " failed",
			Code:  "internal",
		})
		return
	}

	logger.Warn(op+" rejected", slog.String("code", code), slog.String("error", err.Error()))
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}

// getOrCreateRequestID returns the X-Request-ID header, generating one
// when absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
