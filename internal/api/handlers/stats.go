package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// StatsStore defines the read accessors behind the aggregate views.
type StatsStore interface {
	Reliability(ctx context.Context, days int, now time.Time) ([]*models.ReliabilityRow, error)
	SoftwareSummary(ctx context.Context, days int, now time.Time) ([]*models.SoftwareSummaryRow, error)
	DBInfo(ctx context.Context) (*models.DBInfo, error)
}

// StatsHandler serves the reliability, software-availability, and database
// info views.
type StatsHandler struct {
	store  StatsStore
	logger zerolog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(s StatsStore, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		store:  s,
		logger: logger.With().Str("component", "stats_handler").Logger(),
	}
}

// RegisterRoutes registers aggregate view routes on the given router group.
func (h *StatsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/reliability", h.Reliability)
	r.GET("/software", h.Software)
	r.GET("/stats", h.DBInfo)
}

// Reliability returns per-workstation success rates over the trailing
// window, least reliable first.
// GET /api/v1/reliability?days=7
func (h *StatsHandler) Reliability(c *gin.Context) {
	days := queryInt(c, "days", 7, 1, 365)

	rows, err := h.store.Reliability(c.Request.Context(), days, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Int("days", days).Msg("failed to query reliability")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve reliability"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reliability": rows, "count": len(rows), "window_days": days})
}

// Software returns per-(workstation, software) accessibility over the
// trailing window.
// GET /api/v1/software?days=7
func (h *StatsHandler) Software(c *gin.Context) {
	days := queryInt(c, "days", 7, 1, 365)

	rows, err := h.store.SoftwareSummary(c.Request.Context(), days, time.Now())
	if err != nil {
		h.logger.Error().Err(err).Int("days", days).Msg("failed to query software summary")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve software summary"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"software": rows, "count": len(rows), "window_days": days})
}

// DBInfo returns per-table row counts, the span of the check log, and the
// database file size.
// GET /api/v1/stats
func (h *StatsHandler) DBInfo(c *gin.Context) {
	info, err := h.store.DBInfo(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to query database info")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve database info"})
		return
	}

	c.JSON(http.StatusOK, info)
}
