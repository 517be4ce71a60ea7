package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

// RetentionService defines the retention operations exposed over HTTP.
type RetentionService interface {
	Config(ctx context.Context) (models.RetentionConfig, error)
	UpdateConfig(ctx context.Context, cfg models.RetentionConfig) error
	Sweep(ctx context.Context, dryRun bool) (*models.CleanupReport, error)
}

// RetentionHandler serves the retention config and manual sweep endpoints.
type RetentionHandler struct {
	service RetentionService
	logger  zerolog.Logger
}

// NewRetentionHandler creates a new RetentionHandler.
func NewRetentionHandler(service RetentionService, logger zerolog.Logger) *RetentionHandler {
	return &RetentionHandler{
		service: service,
		logger:  logger.With().Str("component", "retention_handler").Logger(),
	}
}

// RegisterRoutes registers retention routes on the given router group.
func (h *RetentionHandler) RegisterRoutes(r *gin.RouterGroup) {
	retention := r.Group("/retention")
	{
		retention.GET("", h.Get)
		retention.PUT("", h.Update)
		retention.POST("/sweep", h.Sweep)
	}
}

// Get returns the current retention configuration.
// GET /api/v1/retention
func (h *RetentionHandler) Get(c *gin.Context) {
	cfg, err := h.service.Config(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load retention config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve retention config"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"keep_hours":         cfg.KeepHours,
		"aggressive_cleanup": cfg.Aggressive,
		"mode":               cfg.Mode(),
		"disabled":           cfg.Disabled(),
	})
}

// updateRetentionRequest allows partial updates: omitted fields keep their
// current value.
type updateRetentionRequest struct {
	KeepHours  *int  `json:"keep_hours"`
	Aggressive *bool `json:"aggressive_cleanup"`
}

// Update replaces the retention configuration. Validation failures reject
// the request before anything is written.
// PUT /api/v1/retention
func (h *RetentionHandler) Update(c *gin.Context) {
	var req updateRetentionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.KeepHours == nil && req.Aggressive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	cfg, err := h.service.Config(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load retention config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve retention config"})
		return
	}

	if req.KeepHours != nil {
		cfg.KeepHours = *req.KeepHours
	}
	if req.Aggressive != nil {
		cfg.Aggressive = *req.Aggressive
	}

	if err := h.service.UpdateConfig(c.Request.Context(), cfg); err != nil {
		if errors.Is(err, models.ErrInvalidKeepHours) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("failed to update retention config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update retention config"})
		return
	}

	h.logger.Info().
		Int("keep_hours", cfg.KeepHours).
		Bool("aggressive", cfg.Aggressive).
		Msg("retention config updated")

	c.JSON(http.StatusOK, gin.H{
		"keep_hours":         cfg.KeepHours,
		"aggressive_cleanup": cfg.Aggressive,
		"mode":               cfg.Mode(),
		"disabled":           cfg.Disabled(),
	})
}

// Sweep runs a retention sweep immediately.
// POST /api/v1/retention/sweep?dry_run=true
func (h *RetentionHandler) Sweep(c *gin.Context) {
	dryRun := false
	if raw := c.Query("dry_run"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dry_run value"})
			return
		}
		dryRun = parsed
	}

	report, err := h.service.Sweep(c.Request.Context(), dryRun)
	if err != nil {
		h.logger.Error().Err(err).Bool("dry_run", dryRun).Msg("manual sweep failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}
