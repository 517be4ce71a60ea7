// Package models defines the core data types shared across MountWarden.
package models

import (
	"errors"
	"fmt"
	"time"
)

// MountStatus represents the outcome of a single mount probe.
type MountStatus string

const (
	// MountStatusMounted indicates the mount was already present and healthy.
	MountStatusMounted MountStatus = "mounted"
	// MountStatusNewlyMounted indicates the mount was absent but mounted successfully during the probe.
	MountStatusNewlyMounted MountStatus = "newly_mounted"
	// MountStatusNotMounted indicates an expected mount was not present.
	MountStatusNotMounted MountStatus = "not_mounted"
	// MountStatusDirectoryMissing indicates the mount point directory does not exist.
	MountStatusDirectoryMissing MountStatus = "directory_missing"
	// MountStatusFailed indicates the probe ran but the mount could not be verified.
	MountStatusFailed MountStatus = "failed"
	// MountStatusUnreachable indicates the probe itself timed out or could not reach the host.
	MountStatusUnreachable MountStatus = "unreachable"
)

// ErrInvalidStatus is returned when a probe result carries a status outside the
// closed MountStatus enumeration.
var ErrInvalidStatus = errors.New("invalid mount status")

// Valid reports whether s is a member of the closed status enumeration.
func (s MountStatus) Valid() bool {
	switch s {
	case MountStatusMounted, MountStatusNewlyMounted, MountStatusNotMounted,
		MountStatusDirectoryMissing, MountStatusFailed, MountStatusUnreachable:
		return true
	}
	return false
}

// IsSuccess reports whether s represents a healthy mount observation.
// Only success statuses resolve an open failure episode.
func (s MountStatus) IsSuccess() bool {
	return s == MountStatusMounted || s == MountStatusNewlyMounted
}

// MountCheck is one immutable probe result for a (workstation, mount point)
// pair. Rows are only ever appended; deletion happens in bulk via retention
// sweeps.
type MountCheck struct {
	ID             int64       `json:"id"`
	Timestamp      time.Time   `json:"timestamp"`
	Workstation    string      `json:"workstation"`
	MountPoint     string      `json:"mount_point"`
	Device         string      `json:"device,omitempty"`
	Filesystem     string      `json:"filesystem,omitempty"`
	Status         MountStatus `json:"status"`
	ResponseTimeMs *int64      `json:"response_time_ms,omitempty"`
	ErrorMessage   string      `json:"error_message,omitempty"`
	ActionTaken    string      `json:"action_taken,omitempty"`
	UsersActive    int         `json:"users_active"`
	MonitoredBy    string      `json:"monitored_by,omitempty"`
}

// NewMountCheck creates a MountCheck observed at the given time.
func NewMountCheck(workstation, mountPoint string, status MountStatus, at time.Time) *MountCheck {
	return &MountCheck{
		Timestamp:   at,
		Workstation: workstation,
		MountPoint:  mountPoint,
		Status:      status,
	}
}

// SetResponseTime records how long the probe took.
func (c *MountCheck) SetResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.ResponseTimeMs = &ms
}

// Validate checks the ingestion constraints: non-empty identifiers, a status
// from the closed enumeration, and a non-zero timestamp.
func (c *MountCheck) Validate() error {
	if c.Workstation == "" {
		return errors.New("workstation is required")
	}
	if c.MountPoint == "" {
		return errors.New("mount point is required")
	}
	if !c.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(c.Status))
	}
	if c.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}
