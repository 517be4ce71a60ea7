package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/health"
)

// DatabaseChecker verifies the store is reachable.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
	Path() string
}

// SystemCollector gathers a telemetry snapshot of the daemon host.
type SystemCollector interface {
	Collect(ctx context.Context) (*health.Snapshot, error)
}

// CycleSource reports when the last probe cycle finished. A nil source
// skips the cycle-age check.
type CycleSource interface {
	LastCycle() *time.Time
}

// HealthCheckResult is one component's verdict within a health response.
type HealthCheckResult struct {
	Status   health.Status  `json:"status"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Issues   []health.Issue `json:"issues,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status  health.Status                 `json:"status"`
	Message string                        `json:"message,omitempty"`
	Checks  map[string]*HealthCheckResult `json:"checks,omitempty"`
}

// HealthHandler serves the daemon self-health endpoint.
type HealthHandler struct {
	db      DatabaseChecker
	system  SystemCollector
	checker *health.Checker
	cycles  CycleSource
	logger  zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db DatabaseChecker, system SystemCollector, checker *health.Checker, cycles CycleSource, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		system:  system,
		checker: checker,
		cycles:  cycles,
		logger:  logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers the health route on the engine root.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/health", h.Overall)
}

// Overall grades the daemon: database reachability plus host telemetry
// (disk usage of the database volume, probe-cycle staleness). Critical
// degradation answers 503; warnings still answer 200.
// GET /health
func (h *HealthHandler) Overall(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := &HealthResponse{
		Status: health.StatusHealthy,
		Checks: make(map[string]*HealthCheckResult),
	}

	dbResult := h.checkDatabase(ctx)
	response.Checks["database"] = dbResult

	sysResult := h.checkSystem(ctx)
	response.Checks["system"] = sysResult

	for _, result := range response.Checks {
		switch result.Status {
		case health.StatusCritical:
			response.Status = health.StatusCritical
		case health.StatusWarning:
			if response.Status != health.StatusCritical {
				response.Status = health.StatusWarning
			}
		}
	}

	if response.Status == health.StatusCritical {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: health.StatusHealthy}

	if h.db == nil {
		result.Status = health.StatusCritical
		result.Error = "database not configured"
		return result
	}

	err := h.db.Ping(ctx)
	result.Duration = time.Since(start).String()
	if err != nil {
		result.Status = health.StatusCritical
		result.Error = "database ping failed"
		h.logger.Warn().Err(err).Msg("database health check failed")
		return result
	}

	result.Details = map[string]any{"path": h.db.Path()}
	return result
}

func (h *HealthHandler) checkSystem(ctx context.Context) *HealthCheckResult {
	start := time.Now()
	result := &HealthCheckResult{Status: health.StatusHealthy}

	if h.system == nil {
		result.Details = map[string]any{"configured": false}
		return result
	}

	snap, err := h.system.Collect(ctx)
	result.Duration = time.Since(start).String()
	if err != nil {
		result.Status = health.StatusCritical
		result.Error = err.Error()
		h.logger.Warn().Err(err).Msg("system health check failed")
		return result
	}

	var lastCycle *time.Time
	if h.cycles != nil {
		lastCycle = h.cycles.LastCycle()
	}

	verdict := h.checker.Evaluate(snap, lastCycle)
	result.Status = verdict.Status
	result.Issues = verdict.Issues
	result.Details = map[string]any{
		"disk_path":           snap.DiskPath,
		"disk_used_percent":   snap.DiskUsedPercent,
		"disk_free_bytes":     snap.DiskFreeBytes,
		"load_1":              snap.Load1,
		"load_5":              snap.Load5,
		"load_15":             snap.Load15,
		"host_uptime_seconds": snap.HostUptimeSeconds,
	}
	if lastCycle != nil {
		result.Details["last_cycle"] = lastCycle.UTC().Format(time.RFC3339)
	}
	return result
}
