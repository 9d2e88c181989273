package http

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/feedsync/backend/internal/domain"
	"github.com/gin-gonic/gin"
)

const (
	serviceName = "feedsync"
	version     = "1.0.0"

	maxRunsLimit = 100
)

// SyncRunner is the part of the sync service the HTTP surface drives
type SyncRunner interface {
	Start(ctx context.Context) (string, error)
	LastRuns(ctx context.Context, limit int) ([]domain.RunReport, error)
	Outcomes(ctx context.Context, runID string) ([]domain.ProductOutcome, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	sync SyncRunner
}

// NewHandler creates a new HTTP handler. A nil runner answers 501 on run endpoints.
func NewHandler(sync SyncRunner) *Handler {
	return &Handler{sync: sync}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": serviceName,
		"version": version,
	})
}

// StartRun triggers a sync run in the background
func (h *Handler) StartRun(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	runID, err := h.sync.Start(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	log.Printf("[HTTP] Run %s started", runID)
	c.JSON(http.StatusAccepted, gin.H{
		"runId":  runID,
		"status": "started",
	})
}

// ListRuns returns the most recent run reports, newest first
func (h *Handler) ListRuns(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRunsLimit)
	}

	runs, err := h.sync.LastRuns(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// ListOutcomes returns the per-product outcomes of one run
func (h *Handler) ListOutcomes(c *gin.Context) {
	if !h.configured(c) {
		return
	}

	runID := c.Param("id")
	outcomes, err := h.sync.Outcomes(c.Request.Context(), runID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"runId":    runID,
		"outcomes": outcomes,
	})
}

func (h *Handler) configured(c *gin.Context) bool {
	if h.sync == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sync is not configured"})
		return false
	}
	return true
}

// respondError maps domain errors to status codes
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Printf("[HTTP] %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
