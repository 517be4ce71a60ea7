package models

import (
	"errors"
	"time"
)

// IssueType classifies a problem captured by the off-hours batcher.
type IssueType string

const (
	// IssueTypeOffline indicates a workstation did not answer its reachability probe.
	IssueTypeOffline IssueType = "workstation_offline"
	// IssueTypeMountFailure indicates one or more mounts on a workstation are unhealthy.
	IssueTypeMountFailure IssueType = "mount_failure"
	// IssueTypeSoftwareMissing indicates critical software was not accessible on its mount.
	IssueTypeSoftwareMissing IssueType = "software_missing"
)

// OffHoursIssue is a problem detected during the quiet window, held for a
// single deferred notification. Rows mutate exactly once, from notified=false
// to notified=true, during the morning flush.
type OffHoursIssue struct {
	ID          int64      `json:"id"`
	DetectedAt  time.Time  `json:"detected_at"`
	Workstation string     `json:"workstation"`
	IssueType   IssueType  `json:"issue_type"`
	Details     string     `json:"details,omitempty"`
	Notified    bool       `json:"notified"`
	NotifiedAt  *time.Time `json:"notified_at,omitempty"`
}

// NewOffHoursIssue creates an unnotified issue detected at the given time.
func NewOffHoursIssue(workstation string, issueType IssueType, details string, at time.Time) *OffHoursIssue {
	return &OffHoursIssue{
		DetectedAt:  at,
		Workstation: workstation,
		IssueType:   issueType,
		Details:     details,
	}
}

// Validate checks the batcher's insertion constraints.
func (i *OffHoursIssue) Validate() error {
	if i.Workstation == "" {
		return errors.New("workstation is required")
	}
	if i.IssueType == "" {
		return errors.New("issue type is required")
	}
	if i.DetectedAt.IsZero() {
		return errors.New("detected_at is required")
	}
	return nil
}

// QuietWindow is the daily span during which issues are batched instead of
// alerted immediately. The common configuration wraps midnight (18:00-06:00).
type QuietWindow struct {
	StartHour int `json:"start_hour" yaml:"start_hour"`
	EndHour   int `json:"end_hour" yaml:"end_hour"`
}

// DefaultQuietWindow returns the 18:00-06:00 overnight window.
func DefaultQuietWindow() QuietWindow {
	return QuietWindow{StartHour: 18, EndHour: 6}
}

// Contains reports whether t falls inside the quiet window. A window whose
// start and end hours are equal is empty, which disables batching.
func (q QuietWindow) Contains(t time.Time) bool {
	h := t.Hour()
	if q.StartHour > q.EndHour {
		return h >= q.StartHour || h < q.EndHour
	}
	return h >= q.StartHour && h < q.EndHour
}

// Validate checks that both hours are on the 24-hour clock.
func (q QuietWindow) Validate() error {
	if q.StartHour < 0 || q.StartHour > 23 {
		return errors.New("quiet window start hour must be between 0 and 23")
	}
	if q.EndHour < 0 || q.EndHour > 23 {
		return errors.New("quiet window end hour must be between 0 and 23")
	}
	return nil
}
