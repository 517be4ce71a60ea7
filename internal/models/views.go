package models

import "time"

// CurrentMountStatus is one row of the current-status view: the latest
// MountCheck per (workstation, mount point), left-joined with the host's
// state snapshot. Online is nil when no snapshot exists for the host yet.
type CurrentMountStatus struct {
	Workstation  string      `json:"workstation"`
	MountPoint   string      `json:"mount_point"`
	Status       MountStatus `json:"status"`
	CheckedAt    time.Time   `json:"checked_at"`
	Device       string      `json:"device,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	ActionTaken  string      `json:"action_taken,omitempty"`
	Online       *bool       `json:"online,omitempty"`
	ActiveUsers  int         `json:"active_users"`
	UserList     []string    `json:"user_list,omitempty"`
}

// ReliabilityRow is one row of the reliability view: success rate per
// workstation over a trailing window. Workstations without checks in the
// window are excluded from the view entirely.
type ReliabilityRow struct {
	Workstation      string  `json:"workstation"`
	TotalChecks      int64   `json:"total_checks"`
	SuccessfulChecks int64   `json:"successful_checks"`
	SuccessRate      float64 `json:"success_rate"`
	WindowDays       int     `json:"window_days"`
}

// RecentFailureRow aggregates failed checks per (workstation, mount point)
// over a trailing window, with the distinct error messages seen.
type RecentFailureRow struct {
	Workstation string    `json:"workstation"`
	MountPoint  string    `json:"mount_point"`
	Failures    int64     `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
	Errors      string    `json:"errors,omitempty"`
}

// SoftwareSummaryRow aggregates software accessibility per (workstation,
// software) over a trailing window.
type SoftwareSummaryRow struct {
	Workstation      string    `json:"workstation"`
	SoftwareName     string    `json:"software_name"`
	MountPoint       string    `json:"mount_point,omitempty"`
	TotalChecks      int64     `json:"total_checks"`
	AccessibleChecks int64     `json:"accessible_checks"`
	LastCheck        time.Time `json:"last_check"`
}

// WorkstationDetail bundles everything known about one host for the detail
// view: its snapshot, recent checks, and any open episodes.
type WorkstationDetail struct {
	State        *WorkstationState `json:"state,omitempty"`
	Checks       []*MountCheck     `json:"checks"`
	OpenEpisodes []*FailureEpisode `json:"open_episodes"`
	WindowHours  int               `json:"window_hours"`
}

// DBInfo describes the database for the stats view: per-table row counts,
// the span of recorded checks, and the file size on disk.
type DBInfo struct {
	Path        string           `json:"path"`
	SizeBytes   int64            `json:"size_bytes"`
	TableCounts map[string]int64 `json:"table_counts"`
	OldestCheck *time.Time       `json:"oldest_check,omitempty"`
	NewestCheck *time.Time       `json:"newest_check,omitempty"`
}

// TableDump is a bulk export of one table or view: a stable column order and
// rows of primitive scalars, ready for tabular serialization.
type TableDump struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}
