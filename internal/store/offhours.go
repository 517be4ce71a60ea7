package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

// UnnotifiedIssue finds the pending issue for a (workstation, issue type)
// pair, or ErrNotFound when none is queued.
func (t *Tx) UnnotifiedIssue(ctx context.Context, workstation string, issueType models.IssueType) (*models.OffHoursIssue, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, detected_at, workstation, issue_type, details, notified, notified_at
		FROM off_hours_issues
		WHERE workstation = ? AND issue_type = ? AND notified = 0
		ORDER BY id DESC
		LIMIT 1`,
		workstation, string(issueType),
	)
	if err != nil {
		return nil, fmt.Errorf("query unnotified issue: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanIssue(rows)
}

// InsertIssue queues a new off-hours issue and returns its row ID.
func (t *Tx) InsertIssue(ctx context.Context, issue *models.OffHoursIssue) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO off_hours_issues (detected_at, workstation, issue_type, details, notified, notified_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		formatTime(issue.DetectedAt),
		issue.Workstation,
		string(issue.IssueType),
		nullString(issue.Details),
		boolToInt(issue.Notified),
		nullTime(issue.NotifiedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert issue: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("issue insert id: %w", err)
	}
	return id, nil
}

// UpdateIssue refreshes the details and detection time of a queued issue.
func (t *Tx) UpdateIssue(ctx context.Context, issue *models.OffHoursIssue) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE off_hours_issues
		SET detected_at = ?, details = ?
		WHERE id = ?`,
		formatTime(issue.DetectedAt), nullString(issue.Details), issue.ID,
	)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update issue rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnnotifiedIssues returns every pending issue in detection order.
func (t *Tx) UnnotifiedIssues(ctx context.Context) ([]*models.OffHoursIssue, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, detected_at, workstation, issue_type, details, notified, notified_at
		FROM off_hours_issues
		WHERE notified = 0
		ORDER BY detected_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query unnotified issues: %w", err)
	}
	defer rows.Close()

	return scanIssueRows(rows)
}

// MarkIssuesNotified stamps every pending issue as delivered at asOf and
// returns how many rows changed.
func (t *Tx) MarkIssuesNotified(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE off_hours_issues
		SET notified = 1, notified_at = ?
		WHERE notified = 0`,
		formatTime(asOf),
	)
	if err != nil {
		return 0, fmt.Errorf("mark issues notified: %w", err)
	}
	return result.RowsAffected()
}

// OffHoursIssues lists queued issues, optionally restricted to pending ones.
func (s *Store) OffHoursIssues(ctx context.Context, pendingOnly bool) ([]*models.OffHoursIssue, error) {
	query := `
		SELECT id, detected_at, workstation, issue_type, details, notified, notified_at
		FROM off_hours_issues`
	if pendingOnly {
		query += " WHERE notified = 0"
	}
	query += " ORDER BY detected_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query off-hours issues: %w", err)
	}
	defer rows.Close()

	return scanIssueRows(rows)
}

func scanIssueRows(rows *sql.Rows) ([]*models.OffHoursIssue, error) {
	var issues []*models.OffHoursIssue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func scanIssue(rows *sql.Rows) (*models.OffHoursIssue, error) {
	var (
		issue      models.OffHoursIssue
		detected   string
		issueType  string
		details    sql.NullString
		notified   int
		notifiedAt sql.NullString
	)

	if err := rows.Scan(
		&issue.ID, &detected, &issue.Workstation, &issueType,
		&details, &notified, &notifiedAt,
	); err != nil {
		return nil, fmt.Errorf("scan issue: %w", err)
	}

	ts, err := parseTime(detected)
	if err != nil {
		return nil, fmt.Errorf("parse issue timestamp: %w", err)
	}

	issue.DetectedAt = ts
	issue.IssueType = models.IssueType(issueType)
	issue.Details = details.String
	issue.Notified = notified != 0
	issue.NotifiedAt = timePtr(notifiedAt)

	return &issue, nil
}
