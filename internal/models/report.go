package models

import "time"

// SoftwareIssue identifies one inaccessible piece of software found during a
// cycle.
type SoftwareIssue struct {
	Software   string `json:"software"`
	MountPoint string `json:"mount_point"`
}

// WorkstationResult is the outcome of probing one workstation during a cycle.
type WorkstationResult struct {
	Workstation    string          `json:"workstation"`
	Online         bool            `json:"online"`
	MountsOK       bool            `json:"mounts_ok"`
	ActiveUsers    int             `json:"active_users"`
	Error          string          `json:"error,omitempty"`
	Mounts         []*MountCheck   `json:"mounts,omitempty"`
	SoftwareIssues []SoftwareIssue `json:"software_issues,omitempty"`
	ActionsTaken   []string        `json:"actions_taken,omitempty"`
}

// HasIssues reports whether this workstation needs operator attention.
func (r *WorkstationResult) HasIssues() bool {
	return !r.Online || !r.MountsOK || len(r.SoftwareIssues) > 0
}

// CycleReport summarizes one full monitoring cycle across the fleet.
type CycleReport struct {
	CycleID     string               `json:"cycle_id"`
	ControlHost string               `json:"control_host"`
	MonitoredBy string               `json:"monitored_by,omitempty"`
	StartedAt   time.Time            `json:"started_at"`
	FinishedAt  time.Time            `json:"finished_at"`
	Results     []*WorkstationResult `json:"results"`
	Cleanup     *CleanupReport       `json:"cleanup,omitempty"`
}

// Duration returns how long the cycle took.
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Total counts the workstations probed.
func (r *CycleReport) Total() int {
	return len(r.Results)
}

// Online counts workstations that answered their reachability probe.
func (r *CycleReport) Online() int {
	n := 0
	for _, res := range r.Results {
		if res.Online {
			n++
		}
	}
	return n
}

// Offline counts workstations that did not answer.
func (r *CycleReport) Offline() int {
	return r.Total() - r.Online()
}

// WithIssues counts workstations needing attention.
func (r *CycleReport) WithIssues() int {
	n := 0
	for _, res := range r.Results {
		if res.HasIssues() {
			n++
		}
	}
	return n
}

// Problems returns the results that need attention, in probe order.
func (r *CycleReport) Problems() []*WorkstationResult {
	var out []*WorkstationResult
	for _, res := range r.Results {
		if res.HasIssues() {
			out = append(out, res)
		}
	}
	return out
}
