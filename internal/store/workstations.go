package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

// TouchWorkstation advances a workstation's check timestamps as part of a
// probe ingest. last_check always moves forward; last_successful_check only
// moves on a successful probe. Creates the state row if it does not exist.
func (t *Tx) TouchWorkstation(ctx context.Context, workstation string, at time.Time, success bool) error {
	var successAt sql.NullString
	if success {
		successAt = sql.NullString{String: formatTime(at), Valid: true}
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO workstation_state (workstation, is_online, last_check, last_successful_check)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(workstation) DO UPDATE SET
			last_check = excluded.last_check,
			last_successful_check = COALESCE(excluded.last_successful_check, workstation_state.last_successful_check)`,
		workstation, formatTime(at), successAt,
	)
	if err != nil {
		return fmt.Errorf("touch workstation: %w", err)
	}
	return nil
}

// UpsertWorkstationState stores a full per-cycle snapshot of a workstation.
func (t *Tx) UpsertWorkstationState(ctx context.Context, state *models.WorkstationState) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO workstation_state (
			workstation, is_online, last_check, last_successful_check,
			active_users, user_list, mount_summary, consecutive_failures
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(workstation) DO UPDATE SET
			is_online = excluded.is_online,
			last_check = excluded.last_check,
			last_successful_check = COALESCE(excluded.last_successful_check, workstation_state.last_successful_check),
			active_users = excluded.active_users,
			user_list = excluded.user_list,
			mount_summary = excluded.mount_summary,
			consecutive_failures = excluded.consecutive_failures`,
		state.Workstation,
		boolToInt(state.IsOnline),
		nullTime(state.LastCheck),
		nullTime(state.LastSuccessfulCheck),
		state.ActiveUsers,
		nullString(state.JoinedUserList()),
		nullString(state.MountSummary),
		state.ConsecutiveFailures,
	)
	if err != nil {
		return fmt.Errorf("upsert workstation state: %w", err)
	}
	return nil
}

// WorkstationState returns the state row for a single workstation, or
// ErrNotFound if the workstation has never been recorded.
func (s *Store) WorkstationState(ctx context.Context, workstation string) (*models.WorkstationState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workstation, is_online, last_check, last_successful_check,
		       active_users, user_list, mount_summary, consecutive_failures
		FROM workstation_state
		WHERE workstation = ?`,
		workstation,
	)
	if err != nil {
		return nil, fmt.Errorf("query workstation state: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanWorkstationState(rows)
}

// WorkstationStates returns the state rows for all known workstations.
func (s *Store) WorkstationStates(ctx context.Context) ([]*models.WorkstationState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workstation, is_online, last_check, last_successful_check,
		       active_users, user_list, mount_summary, consecutive_failures
		FROM workstation_state
		ORDER BY workstation`)
	if err != nil {
		return nil, fmt.Errorf("query workstation states: %w", err)
	}
	defer rows.Close()

	var states []*models.WorkstationState
	for rows.Next() {
		state, err := scanWorkstationState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

func scanWorkstationState(rows *sql.Rows) (*models.WorkstationState, error) {
	var (
		state     models.WorkstationState
		online    int
		lastCheck sql.NullString
		lastOK    sql.NullString
		userList  sql.NullString
		summary   sql.NullString
	)

	if err := rows.Scan(
		&state.Workstation, &online, &lastCheck, &lastOK,
		&state.ActiveUsers, &userList, &summary, &state.ConsecutiveFailures,
	); err != nil {
		return nil, fmt.Errorf("scan workstation state: %w", err)
	}

	state.IsOnline = online != 0
	state.LastCheck = timePtr(lastCheck)
	state.LastSuccessfulCheck = timePtr(lastOK)
	state.UserList = models.SplitUserList(userList.String)
	state.MountSummary = summary.String

	return &state, nil
}
