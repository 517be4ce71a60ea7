package models

import "time"

// FailureEpisode represents one contiguous run of non-mounted observations
// for a (workstation, mount point) pair. At most one unresolved episode may
// exist per pair at any time; the lifecycle tracker owns every transition.
type FailureEpisode struct {
	ID           int64      `json:"id"`
	Workstation  string     `json:"workstation"`
	MountPoint   string     `json:"mount_point"`
	FirstFailure time.Time  `json:"first_failure"`
	LastFailure  time.Time  `json:"last_failure"`
	FailureCount int        `json:"failure_count"`
	Resolved     bool       `json:"resolved"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// NewFailureEpisode opens an episode for the pair's first failed observation.
func NewFailureEpisode(workstation, mountPoint string, at time.Time) *FailureEpisode {
	return &FailureEpisode{
		Workstation:  workstation,
		MountPoint:   mountPoint,
		FirstFailure: at,
		LastFailure:  at,
		FailureCount: 1,
	}
}

// RecordFailure extends an open episode with another failed observation.
func (e *FailureEpisode) RecordFailure(at time.Time) {
	e.LastFailure = at
	e.FailureCount++
}

// Resolve closes the episode at the given observation time.
func (e *FailureEpisode) Resolve(at time.Time) {
	e.Resolved = true
	e.ResolvedAt = &at
}

// Duration returns how long the episode has been (or was) failing: from the
// first failure to resolution for closed episodes, to the last observed
// failure for open ones.
func (e *FailureEpisode) Duration() time.Duration {
	if e.Resolved && e.ResolvedAt != nil {
		return e.ResolvedAt.Sub(e.FirstFailure)
	}
	return e.LastFailure.Sub(e.FirstFailure)
}
