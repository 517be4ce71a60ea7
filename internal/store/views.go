package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

// CurrentStatus reports the latest check per (workstation, mount point) pair,
// joined with workstation state where a state row exists. Ties on identical
// timestamps go to the later insert.
func (s *Store) CurrentStatus(ctx context.Context) ([]*models.CurrentMountStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.workstation, c.mount_point, c.status, c.timestamp, c.device,
		       c.error_message, c.action_taken,
		       w.is_online, w.active_users, w.user_list
		FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY workstation, mount_point
				ORDER BY timestamp DESC, id DESC
			) AS rn
			FROM mount_checks
		) c
		LEFT JOIN workstation_state w ON w.workstation = c.workstation
		WHERE c.rn = 1
		ORDER BY c.workstation, c.mount_point`)
	if err != nil {
		return nil, fmt.Errorf("query current status: %w", err)
	}
	defer rows.Close()

	var statuses []*models.CurrentMountStatus
	for rows.Next() {
		var (
			cs       models.CurrentMountStatus
			status   string
			ts       string
			device   sql.NullString
			errMsg   sql.NullString
			action   sql.NullString
			online   sql.NullInt64
			users    sql.NullInt64
			userList sql.NullString
		)

		if err := rows.Scan(
			&cs.Workstation, &cs.MountPoint, &status, &ts, &device,
			&errMsg, &action, &online, &users, &userList,
		); err != nil {
			return nil, fmt.Errorf("scan current status: %w", err)
		}

		parsed, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse status timestamp: %w", err)
		}

		cs.Status = models.MountStatus(status)
		cs.CheckedAt = parsed
		cs.Device = device.String
		cs.ErrorMessage = errMsg.String
		cs.ActionTaken = action.String
		if online.Valid {
			isOnline := online.Int64 != 0
			cs.Online = &isOnline
		}
		if users.Valid {
			cs.ActiveUsers = int(users.Int64)
		}
		cs.UserList = models.SplitUserList(userList.String)

		statuses = append(statuses, &cs)
	}
	return statuses, rows.Err()
}

// Reliability aggregates per-workstation success rates over the trailing
// window. Only status 'mounted' counts as success; a remount that reports
// 'newly_mounted' means the mount had been lost. Workstations with no checks
// in the window are omitted.
func (s *Store) Reliability(ctx context.Context, days int, now time.Time) ([]*models.ReliabilityRow, error) {
	since := formatTime(now.AddDate(0, 0, -days))

	rows, err := s.db.QueryContext(ctx, `
		SELECT workstation,
		       COUNT(*) AS total,
		       SUM(CASE WHEN status = 'mounted' THEN 1 ELSE 0 END) AS successful
		FROM mount_checks
		WHERE timestamp >= ?
		GROUP BY workstation
		ORDER BY CAST(successful AS REAL) / total ASC, workstation`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query reliability: %w", err)
	}
	defer rows.Close()

	var result []*models.ReliabilityRow
	for rows.Next() {
		row := models.ReliabilityRow{WindowDays: days}
		if err := rows.Scan(&row.Workstation, &row.TotalChecks, &row.SuccessfulChecks); err != nil {
			return nil, fmt.Errorf("scan reliability: %w", err)
		}
		row.SuccessRate = float64(row.SuccessfulChecks) / float64(row.TotalChecks) * 100
		result = append(result, &row)
	}
	return result, rows.Err()
}

// RecentFailures groups failed checks within the trailing window by
// (workstation, mount point), most failures first.
func (s *Store) RecentFailures(ctx context.Context, hours int, now time.Time) ([]*models.RecentFailureRow, error) {
	since := formatTime(now.Add(-time.Duration(hours) * time.Hour))

	rows, err := s.db.QueryContext(ctx, `
		SELECT workstation, mount_point,
		       COUNT(*) AS failures,
		       MAX(timestamp) AS last_failure,
		       GROUP_CONCAT(DISTINCT error_message) AS errors
		FROM mount_checks
		WHERE timestamp >= ? AND status NOT IN ('mounted', 'newly_mounted')
		GROUP BY workstation, mount_point
		ORDER BY failures DESC, workstation, mount_point`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent failures: %w", err)
	}
	defer rows.Close()

	var result []*models.RecentFailureRow
	for rows.Next() {
		var (
			row    models.RecentFailureRow
			last   string
			errors sql.NullString
		)
		if err := rows.Scan(&row.Workstation, &row.MountPoint, &row.Failures, &last, &errors); err != nil {
			return nil, fmt.Errorf("scan recent failures: %w", err)
		}

		parsed, err := parseTime(last)
		if err != nil {
			return nil, fmt.Errorf("parse failure timestamp: %w", err)
		}
		row.LastFailure = parsed
		row.Errors = errors.String
		result = append(result, &row)
	}
	return result, rows.Err()
}

// SoftwareSummary aggregates software accessibility over the trailing window.
func (s *Store) SoftwareSummary(ctx context.Context, days int, now time.Time) ([]*models.SoftwareSummaryRow, error) {
	since := formatTime(now.AddDate(0, 0, -days))

	rows, err := s.db.QueryContext(ctx, `
		SELECT workstation, software_name, mount_point,
		       COUNT(*) AS total,
		       SUM(CASE WHEN is_accessible = 1 THEN 1 ELSE 0 END) AS accessible,
		       MAX(timestamp) AS last_check
		FROM software_checks
		WHERE timestamp >= ?
		GROUP BY workstation, software_name, mount_point
		ORDER BY workstation, software_name`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("query software summary: %w", err)
	}
	defer rows.Close()

	var result []*models.SoftwareSummaryRow
	for rows.Next() {
		var (
			row        models.SoftwareSummaryRow
			mountPoint sql.NullString
			last       string
		)
		if err := rows.Scan(
			&row.Workstation, &row.SoftwareName, &mountPoint,
			&row.TotalChecks, &row.AccessibleChecks, &last,
		); err != nil {
			return nil, fmt.Errorf("scan software summary: %w", err)
		}

		parsed, err := parseTime(last)
		if err != nil {
			return nil, fmt.Errorf("parse software timestamp: %w", err)
		}
		row.MountPoint = mountPoint.String
		row.LastCheck = parsed
		result = append(result, &row)
	}
	return result, rows.Err()
}

// WorkstationDetail assembles a single workstation's state, recent check
// history, and open episodes.
func (s *Store) WorkstationDetail(ctx context.Context, workstation string, hours int, now time.Time) (*models.WorkstationDetail, error) {
	detail := &models.WorkstationDetail{WindowHours: hours}

	state, err := s.WorkstationState(ctx, workstation)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	detail.State = state

	checks, err := s.MountHistory(ctx, workstation, "", hours, now)
	if err != nil {
		return nil, err
	}
	detail.Checks = checks

	if detail.State == nil && len(detail.Checks) == 0 {
		return nil, ErrNotFound
	}

	episodes, err := s.OpenEpisodesFor(ctx, workstation)
	if err != nil {
		return nil, err
	}
	detail.OpenEpisodes = episodes

	return detail, nil
}

// exportTables names every table exposed by DBInfo and ExportTable, with a
// stable column order.
var exportTables = map[string][]string{
	"mount_checks": {
		"id", "timestamp", "workstation", "mount_point", "device", "filesystem",
		"status", "response_time_ms", "error_message", "action_taken",
		"users_active", "monitored_by",
	},
	"workstation_state": {
		"workstation", "is_online", "last_check", "last_successful_check",
		"active_users", "user_list", "mount_summary", "consecutive_failures",
	},
	"failure_episodes": {
		"id", "workstation", "mount_point", "first_failure", "last_failure",
		"failure_count", "resolved", "resolved_at",
	},
	"software_checks": {
		"id", "timestamp", "workstation", "software_name", "mount_point",
		"is_accessible", "check_time_ms",
	},
	"off_hours_issues": {
		"id", "detected_at", "workstation", "issue_type", "details",
		"notified", "notified_at",
	},
}

// exportTableOrder keeps DBInfo output deterministic.
var exportTableOrder = []string{
	"mount_checks", "workstation_state", "failure_episodes",
	"software_checks", "off_hours_issues",
}

// DBInfo reports database file size, per-table row counts, and the span of
// the check log.
func (s *Store) DBInfo(ctx context.Context) (*models.DBInfo, error) {
	info := &models.DBInfo{
		Path:        s.path,
		TableCounts: make(map[string]int64, len(exportTableOrder)),
	}

	if st, err := os.Stat(s.path); err == nil {
		info.SizeBytes = st.Size()
	}

	for _, table := range exportTableOrder {
		var n int64
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		info.TableCounts[table] = n
	}

	var oldest, newest sql.NullString
	row := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM mount_checks")
	if err := row.Scan(&oldest, &newest); err != nil {
		return nil, fmt.Errorf("check log span: %w", err)
	}
	info.OldestCheck = timePtr(oldest)
	info.NewestCheck = timePtr(newest)

	return info, nil
}

// ExportTable dumps a whole table for CSV/JSON export. Only known tables are
// allowed; anything else returns ErrNotFound.
func (s *Store) ExportTable(ctx context.Context, table string) (*models.TableDump, error) {
	columns, ok := exportTables[table]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", ErrNotFound, table)
	}

	query := "SELECT " + joinColumns(columns) + " FROM " + table + " ORDER BY " + columns[0]
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", table, err)
	}
	defer rows.Close()

	dump := &models.TableDump{Table: table, Columns: columns}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", table, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		dump.Rows = append(dump.Rows, values)
	}
	return dump, rows.Err()
}

func joinColumns(columns []string) string {
	out := ""
	for i, c := range columns {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
