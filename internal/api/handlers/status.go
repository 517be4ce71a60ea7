package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/store"
)

// StatusStore defines the read accessors behind the status endpoints.
type StatusStore interface {
	CurrentStatus(ctx context.Context) ([]*models.CurrentMountStatus, error)
	WorkstationDetail(ctx context.Context, workstation string, hours int, now time.Time) (*models.WorkstationDetail, error)
}

// StatusHandler serves the fleet-wide and per-workstation status views.
type StatusHandler struct {
	store  StatusStore
	logger zerolog.Logger
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(s StatusStore, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		store:  s,
		logger: logger.With().Str("component", "status_handler").Logger(),
	}
}

// RegisterRoutes registers status routes on the given router group.
func (h *StatusHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.List)
	r.GET("/status/:workstation", h.Detail)
}

// List returns the latest check per (workstation, mount point) across the
// fleet, joined with each host's state snapshot.
// GET /api/v1/status
func (h *StatusHandler) List(c *gin.Context) {
	rows, err := h.store.CurrentStatus(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to query current status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"mounts": rows, "count": len(rows)})
}

// Detail returns one workstation's state snapshot, recent checks, and open
// failure episodes.
// GET /api/v1/status/:workstation?hours=24
func (h *StatusHandler) Detail(c *gin.Context) {
	workstation := c.Param("workstation")
	hours := queryInt(c, "hours", 24, 1, 720)

	detail, err := h.store.WorkstationDetail(c.Request.Context(), workstation, hours, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "workstation not found"})
			return
		}
		h.logger.Error().Err(err).Str("workstation", workstation).Msg("failed to query workstation detail")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve workstation detail"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"workstation": workstation, "detail": detail})
}

// queryInt parses an integer query parameter, returning def when the value
// is absent, malformed, or out of [min, max].
func queryInt(c *gin.Context, name string, def, min, max int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}
