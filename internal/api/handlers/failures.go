package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// FailureStore defines the read accessors behind the failure endpoints.
type FailureStore interface {
	RecentFailures(ctx context.Context, hours int, now time.Time) ([]*models.RecentFailureRow, error)
	UnresolvedEpisodes(ctx context.Context) ([]*models.FailureEpisode, error)
}

// FailuresHandler serves the recent-failure summary and the open episode
// list.
type FailuresHandler struct {
	store  FailureStore
	logger zerolog.Logger
}

// NewFailuresHandler creates a new FailuresHandler.
func NewFailuresHandler(s FailureStore, logger zerolog.Logger) *FailuresHandler {
	return &FailuresHandler{
		store:  s,
		logger: logger.With().Str("component", "failures_handler").Logger(),
	}
}

// RegisterRoutes registers failure routes on the given router group.
func (h *FailuresHandler) RegisterRoutes(r *gin.RouterGroup) {
	failures := r.Group("/failures")
	{
		failures.GET("", h.Recent)
		failures.GET("/unresolved", h.Unresolved)
	}
}

// Recent returns failed checks grouped by (workstation, mount point) within
// the trailing window.
// GET /api/v1/failures?hours=24
func (h *FailuresHandler) Recent(c *gin.Context) {
	hours := queryInt(c, "hours", 24, 1, 720)

	rows, err := h.store.RecentFailures(c.Request.Context(), hours, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Int("hours", hours).Msg("failed to query recent failures")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve failures"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"failures": rows, "count": len(rows), "window_hours": hours})
}

// Unresolved returns every open failure episode, worst offenders first.
// GET /api/v1/failures/unresolved
func (h *FailuresHandler) Unresolved(c *gin.Context) {
	episodes, err := h.store.UnresolvedEpisodes(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to query unresolved episodes")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve unresolved episodes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"episodes": episodes, "count": len(episodes)})
}
