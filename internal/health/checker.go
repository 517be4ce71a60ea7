package health

import (
	"fmt"
	"time"
)

// Status grades a health evaluation.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Thresholds control when an evaluation degrades to warning or critical.
// A zero threshold disables that check.
type Thresholds struct {
	// DiskWarning and DiskCritical are used-percent bounds for the volume
	// holding the database.
	DiskWarning  float64
	DiskCritical float64
	// CycleWarning and CycleCritical bound the age of the last completed
	// probe cycle.
	CycleWarning  time.Duration
	CycleCritical time.Duration
}

// DefaultThresholds returns disk bounds of 80/90 percent and cycle-age
// bounds of two and six hours, sized for the default hourly check interval.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskWarning:   80.0,
		DiskCritical:  90.0,
		CycleWarning:  2 * time.Hour,
		CycleCritical: 6 * time.Hour,
	}
}

// ThresholdsFor scales the cycle-age bounds to a configured check interval
// while keeping the default disk bounds.
func ThresholdsFor(interval time.Duration) Thresholds {
	th := DefaultThresholds()
	if interval > 0 {
		th.CycleWarning = 2 * interval
		th.CycleCritical = 6 * interval
	}
	return th
}

// Issue is one degraded component found during evaluation.
type Issue struct {
	Component string  `json:"component"`
	Severity  Status  `json:"severity"`
	Message   string  `json:"message"`
	Value     float64 `json:"value,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// CheckResult is the outcome of one evaluation pass.
type CheckResult struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	Issues    []Issue   `json:"issues,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker evaluates snapshots against thresholds.
type Checker struct {
	thresholds Thresholds
}

// NewChecker creates a Checker with the given thresholds.
func NewChecker(th Thresholds) *Checker {
	return &Checker{thresholds: th}
}

// NewCheckerWithDefaults creates a Checker using DefaultThresholds.
func NewCheckerWithDefaults() *Checker {
	return NewChecker(DefaultThresholds())
}

// Evaluate grades a snapshot together with the age of the last completed
// probe cycle. lastCycle may be nil when no cycle has finished yet; that
// alone is not degraded because the first cycle may still be running.
func (c *Checker) Evaluate(snap *Snapshot, lastCycle *time.Time) *CheckResult {
	result := &CheckResult{
		Status:    StatusHealthy,
		CheckedAt: time.Now(),
	}

	if snap == nil {
		result.Status = StatusUnknown
		result.Message = "No snapshot available"
		return result
	}

	if c.thresholds.DiskCritical > 0 && snap.DiskUsedPercent >= c.thresholds.DiskCritical {
		result.Issues = append(result.Issues, Issue{
			Component: "disk",
			Severity:  StatusCritical,
			Message:   fmt.Sprintf("Database volume %.1f%% full", snap.DiskUsedPercent),
			Value:     snap.DiskUsedPercent,
			Threshold: c.thresholds.DiskCritical,
		})
	} else if c.thresholds.DiskWarning > 0 && snap.DiskUsedPercent >= c.thresholds.DiskWarning {
		result.Issues = append(result.Issues, Issue{
			Component: "disk",
			Severity:  StatusWarning,
			Message:   fmt.Sprintf("Database volume %.1f%% full", snap.DiskUsedPercent),
			Value:     snap.DiskUsedPercent,
			Threshold: c.thresholds.DiskWarning,
		})
	}

	if lastCycle != nil {
		age := time.Since(*lastCycle)
		if c.thresholds.CycleCritical > 0 && age >= c.thresholds.CycleCritical {
			result.Issues = append(result.Issues, Issue{
				Component: "cycle",
				Severity:  StatusCritical,
				Message:   fmt.Sprintf("No completed probe cycle for %s", age.Round(time.Minute)),
				Value:     age.Seconds(),
				Threshold: c.thresholds.CycleCritical.Seconds(),
			})
		} else if c.thresholds.CycleWarning > 0 && age >= c.thresholds.CycleWarning {
			result.Issues = append(result.Issues, Issue{
				Component: "cycle",
				Severity:  StatusWarning,
				Message:   fmt.Sprintf("No completed probe cycle for %s", age.Round(time.Minute)),
				Value:     age.Seconds(),
				Threshold: c.thresholds.CycleWarning.Seconds(),
			})
		}
	}

	result.Status = overallStatus(result.Issues)
	result.Message = statusMessage(result.Status)
	return result
}

func overallStatus(issues []Issue) Status {
	status := StatusHealthy
	for _, issue := range issues {
		switch issue.Severity {
		case StatusCritical:
			return StatusCritical
		case StatusWarning:
			status = StatusWarning
		}
	}
	return status
}

func statusMessage(s Status) string {
	switch s {
	case StatusHealthy:
		return "All systems operational"
	case StatusWarning:
		return "Some checks require attention"
	case StatusCritical:
		return "Critical issues detected"
	default:
		return "Health status unknown"
	}
}
