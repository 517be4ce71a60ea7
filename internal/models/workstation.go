package models

import (
	"strings"
	"time"
)

// MaxTrackedUsers caps how many usernames are kept on a workstation snapshot.
const MaxTrackedUsers = 3

// WorkstationState is the current-state snapshot for one monitored host.
// Exactly one row exists per workstation; it is upserted after every probe
// cycle and never independently created by a user action.
type WorkstationState struct {
	Workstation         string     `json:"workstation"`
	IsOnline            bool       `json:"is_online"`
	LastCheck           *time.Time `json:"last_check,omitempty"`
	LastSuccessfulCheck *time.Time `json:"last_successful_check,omitempty"`
	ActiveUsers         int        `json:"active_users"`
	UserList            []string   `json:"user_list,omitempty"`
	MountSummary        string     `json:"mount_summary,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

// NewWorkstationState creates a snapshot for the given host.
func NewWorkstationState(workstation string) *WorkstationState {
	return &WorkstationState{Workstation: workstation}
}

// SetUsers records the active-user count and the first MaxTrackedUsers
// distinct usernames in observation order.
func (w *WorkstationState) SetUsers(count int, users []string) {
	w.ActiveUsers = count
	seen := make(map[string]bool, len(users))
	w.UserList = w.UserList[:0]
	for _, u := range users {
		u = strings.TrimSpace(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		w.UserList = append(w.UserList, u)
		if len(w.UserList) == MaxTrackedUsers {
			break
		}
	}
}

// JoinedUserList renders the tracked usernames as a comma-separated string
// for storage and display.
func (w *WorkstationState) JoinedUserList() string {
	return strings.Join(w.UserList, ",")
}

// SplitUserList parses a comma-separated username list produced by
// JoinedUserList.
func SplitUserList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	users := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			users = append(users, p)
		}
	}
	if len(users) == 0 {
		return nil
	}
	return users
}
