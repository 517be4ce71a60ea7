package models

import (
	"errors"
	"fmt"
	"time"
)

// Retention bounds for keep_hours. Zero is recognized separately as
// "sweeping disabled", not as a zero-duration retention.
const (
	MinKeepHours = 1
	MaxKeepHours = 720
)

// DefaultKeepHours is the retention period seeded into a fresh database.
const DefaultKeepHours = 72

// ErrInvalidKeepHours is returned when a retention update falls outside the
// recognized range.
var ErrInvalidKeepHours = errors.New("keep_hours must be 0 (disabled) or between 1 and 720")

// RetentionConfig is the singleton retention policy record. It is read by
// every sweep and mutated only through an explicit administrative update.
type RetentionConfig struct {
	KeepHours  int  `json:"keep_hours"`
	Aggressive bool `json:"aggressive_cleanup"`
}

// DefaultRetentionConfig returns the policy seeded into a fresh database:
// 72 hours, standard mode.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{KeepHours: DefaultKeepHours}
}

// Validate checks keep_hours: 0 disables sweeping, anything else must fall
// between MinKeepHours and MaxKeepHours.
func (c RetentionConfig) Validate() error {
	if c.KeepHours == 0 {
		return nil
	}
	if c.KeepHours < MinKeepHours || c.KeepHours > MaxKeepHours {
		return fmt.Errorf("%w: got %d", ErrInvalidKeepHours, c.KeepHours)
	}
	return nil
}

// Disabled reports whether automatic sweeping is turned off.
func (c RetentionConfig) Disabled() bool {
	return c.KeepHours == 0
}

// Cutoff returns the deletion boundary for a sweep starting at now.
func (c RetentionConfig) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(c.KeepHours) * time.Hour)
}

// Mode names the active policy for logs and reports.
func (c RetentionConfig) Mode() string {
	if c.Aggressive {
		return "aggressive"
	}
	return "standard"
}

// CleanupReport summarizes one retention sweep.
type CleanupReport struct {
	DeletedByTable map[string]int64 `json:"deleted_by_table"`
	Cutoff         time.Time        `json:"cutoff"`
	Mode           string           `json:"mode"`
	DryRun         bool             `json:"dry_run"`
	Skipped        bool             `json:"skipped"`
	Compacted      bool             `json:"compacted"`
	Duration       time.Duration    `json:"duration"`
}

// NewCleanupReport creates an empty report for a sweep against the given
// policy.
func NewCleanupReport(cfg RetentionConfig, cutoff time.Time, dryRun bool) *CleanupReport {
	return &CleanupReport{
		DeletedByTable: make(map[string]int64),
		Cutoff:         cutoff,
		Mode:           cfg.Mode(),
		DryRun:         dryRun,
	}
}

// TotalDeleted sums deletions across all tables.
func (r *CleanupReport) TotalDeleted() int64 {
	var total int64
	for _, n := range r.DeletedByTable {
		total += n
	}
	return total
}
