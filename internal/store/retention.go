package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

// RetentionConfig reads the retention singleton. The row is seeded by
// migrate, so a missing row means a corrupted database.
func (s *Store) RetentionConfig(ctx context.Context) (models.RetentionConfig, error) {
	var (
		cfg        models.RetentionConfig
		aggressive int
	)

	row := s.db.QueryRowContext(ctx,
		"SELECT keep_hours, aggressive_cleanup FROM retention_config WHERE id = 1")
	if err := row.Scan(&cfg.KeepHours, &aggressive); err != nil {
		return cfg, fmt.Errorf("read retention config: %w", err)
	}

	cfg.Aggressive = aggressive != 0
	return cfg, nil
}

// SetRetentionConfig replaces the retention singleton.
func (t *Tx) SetRetentionConfig(ctx context.Context, cfg models.RetentionConfig) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE retention_config
		SET keep_hours = ?, aggressive_cleanup = ?
		WHERE id = 1`,
		cfg.KeepHours, boolToInt(cfg.Aggressive),
	)
	if err != nil {
		return fmt.Errorf("update retention config: %w", err)
	}
	return nil
}

// The sweep predicates below come in count/delete pairs so a dry run reports
// exactly what a real sweep would remove.

func (t *Tx) CountMountChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "mount_checks", "timestamp < ?", formatTime(cutoff))
}

func (t *Tx) DeleteMountChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "mount_checks", "timestamp < ?", formatTime(cutoff))
}

func (t *Tx) CountSoftwareChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "software_checks", "timestamp < ?", formatTime(cutoff))
}

func (t *Tx) DeleteSoftwareChecksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "software_checks", "timestamp < ?", formatTime(cutoff))
}

// Resolved episodes age out by resolution time, not by first failure, so an
// episode that resolved recently survives even if it opened long ago.
func (t *Tx) CountResolvedEpisodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "failure_episodes", "resolved = 1 AND resolved_at < ?", formatTime(cutoff))
}

func (t *Tx) DeleteResolvedEpisodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "failure_episodes", "resolved = 1 AND resolved_at < ?", formatTime(cutoff))
}

// Open episodes are only touched by aggressive sweeps, keyed on the last
// observed failure.
func (t *Tx) CountOpenEpisodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "failure_episodes", "resolved = 0 AND last_failure < ?", formatTime(cutoff))
}

func (t *Tx) DeleteOpenEpisodesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "failure_episodes", "resolved = 0 AND last_failure < ?", formatTime(cutoff))
}

func (t *Tx) CountStaleWorkstations(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "workstation_state", "last_check < ?", formatTime(cutoff))
}

func (t *Tx) DeleteStaleWorkstations(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "workstation_state", "last_check < ?", formatTime(cutoff))
}

func (t *Tx) CountNotifiedIssuesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "off_hours_issues", "notified = 1 AND detected_at < ?", formatTime(cutoff))
}

func (t *Tx) DeleteNotifiedIssuesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "off_hours_issues", "notified = 1 AND detected_at < ?", formatTime(cutoff))
}

func (t *Tx) CountPendingIssuesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.countWhere(ctx, "off_hours_issues", "notified = 0 AND detected_at < ?", formatTime(cutoff))
}

func (t *Tx) DeletePendingIssuesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return t.deleteWhere(ctx, "off_hours_issues", "notified = 0 AND detected_at < ?", formatTime(cutoff))
}

func (t *Tx) countWhere(ctx context.Context, table, where string, args ...any) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (t *Tx) deleteWhere(ctx context.Context, table, where string, args ...any) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, where)
	result, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return result.RowsAffected()
}
