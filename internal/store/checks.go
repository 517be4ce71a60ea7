package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

// AppendMountCheck inserts a probe result into the append-only check log and
// returns its row ID.
func (t *Tx) AppendMountCheck(ctx context.Context, check *models.MountCheck) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO mount_checks (
			timestamp, workstation, mount_point, device, filesystem, status,
			response_time_ms, error_message, action_taken, users_active, monitored_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(check.Timestamp),
		check.Workstation,
		check.MountPoint,
		nullString(check.Device),
		nullString(check.Filesystem),
		string(check.Status),
		nullInt(check.ResponseTimeMs),
		nullString(check.ErrorMessage),
		nullString(check.ActionTaken),
		check.UsersActive,
		nullString(check.MonitoredBy),
	)
	if err != nil {
		return 0, fmt.Errorf("insert mount check: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("mount check insert id: %w", err)
	}
	return id, nil
}

// AppendSoftwareCheck inserts a software accessibility result.
func (t *Tx) AppendSoftwareCheck(ctx context.Context, check *models.SoftwareCheck) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO software_checks (
			timestamp, workstation, software_name, mount_point, is_accessible, check_time_ms
		) VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(check.Timestamp),
		check.Workstation,
		check.SoftwareName,
		nullString(check.MountPoint),
		boolToInt(check.IsAccessible),
		nullInt(check.CheckTimeMs),
	)
	if err != nil {
		return 0, fmt.Errorf("insert software check: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("software check insert id: %w", err)
	}
	return id, nil
}

// MountHistory returns the checks recorded for a workstation within the last
// `hours` hours, newest first. An empty mountPoint matches all mount points.
func (s *Store) MountHistory(ctx context.Context, workstation, mountPoint string, hours int, now time.Time) ([]*models.MountCheck, error) {
	since := formatTime(now.Add(-time.Duration(hours) * time.Hour))

	query := `
		SELECT id, timestamp, workstation, mount_point, device, filesystem, status,
		       response_time_ms, error_message, action_taken, users_active, monitored_by
		FROM mount_checks
		WHERE workstation = ? AND timestamp >= ?`
	args := []any{workstation, since}

	if mountPoint != "" {
		query += " AND mount_point = ?"
		args = append(args, mountPoint)
	}
	query += " ORDER BY timestamp DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query mount history: %w", err)
	}
	defer rows.Close()

	return scanMountCheckRows(rows)
}

// scanMountCheckRows reads all remaining rows from a mount_checks query.
func scanMountCheckRows(rows *sql.Rows) ([]*models.MountCheck, error) {
	var checks []*models.MountCheck
	for rows.Next() {
		check, err := scanMountCheck(rows)
		if err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

// scanMountCheck reads a single mount_checks row.
func scanMountCheck(rows *sql.Rows) (*models.MountCheck, error) {
	var (
		check     models.MountCheck
		ts        string
		status    string
		device    sql.NullString
		fs        sql.NullString
		respMs    sql.NullInt64
		errMsg    sql.NullString
		action    sql.NullString
		monitored sql.NullString
	)

	if err := rows.Scan(
		&check.ID, &ts, &check.Workstation, &check.MountPoint,
		&device, &fs, &status, &respMs, &errMsg, &action,
		&check.UsersActive, &monitored,
	); err != nil {
		return nil, fmt.Errorf("scan mount check: %w", err)
	}

	parsed, err := parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("parse check timestamp: %w", err)
	}

	check.Timestamp = parsed
	check.Status = models.MountStatus(status)
	check.Device = device.String
	check.Filesystem = fs.String
	check.ResponseTimeMs = intPtr(respMs)
	check.ErrorMessage = errMsg.String
	check.ActionTaken = action.String
	check.MonitoredBy = monitored.String

	return &check, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
