package models

import (
	"errors"
	"time"
)

// SoftwareCheck is one immutable accessibility probe for a piece of critical
// software living on a network mount. Same append-only and retention
// treatment as MountCheck.
type SoftwareCheck struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Workstation  string    `json:"workstation"`
	SoftwareName string    `json:"software_name"`
	MountPoint   string    `json:"mount_point,omitempty"`
	IsAccessible bool      `json:"is_accessible"`
	CheckTimeMs  *int64    `json:"check_time_ms,omitempty"`
}

// NewSoftwareCheck creates a SoftwareCheck observed at the given time.
func NewSoftwareCheck(workstation, softwareName, mountPoint string, accessible bool, at time.Time) *SoftwareCheck {
	return &SoftwareCheck{
		Timestamp:    at,
		Workstation:  workstation,
		SoftwareName: softwareName,
		MountPoint:   mountPoint,
		IsAccessible: accessible,
	}
}

// SetCheckTime records how long the accessibility probe took.
func (c *SoftwareCheck) SetCheckTime(d time.Duration) {
	ms := d.Milliseconds()
	c.CheckTimeMs = &ms
}

// Validate checks the ingestion constraints.
func (c *SoftwareCheck) Validate() error {
	if c.Workstation == "" {
		return errors.New("workstation is required")
	}
	if c.SoftwareName == "" {
		return errors.New("software name is required")
	}
	if c.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	return nil
}
