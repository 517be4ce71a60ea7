package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mountwarden/mountwarden/internal/models"
)

// OpenEpisodes returns the unresolved episodes for a (workstation, mount
// point) pair, most recently updated first. Healthy data has at most one row;
// legacy data may have more, and the caller treats the first as authoritative.
func (t *Tx) OpenEpisodes(ctx context.Context, workstation, mountPoint string) ([]*models.FailureEpisode, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, workstation, mount_point, first_failure, last_failure,
		       failure_count, resolved, resolved_at
		FROM failure_episodes
		WHERE workstation = ? AND mount_point = ? AND resolved = 0
		ORDER BY last_failure DESC, id DESC`,
		workstation, mountPoint,
	)
	if err != nil {
		return nil, fmt.Errorf("query open episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodeRows(rows)
}

// InsertEpisode creates a new failure episode and returns its row ID.
func (t *Tx) InsertEpisode(ctx context.Context, ep *models.FailureEpisode) (int64, error) {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO failure_episodes (
			workstation, mount_point, first_failure, last_failure,
			failure_count, resolved, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ep.Workstation,
		ep.MountPoint,
		formatTime(ep.FirstFailure),
		formatTime(ep.LastFailure),
		ep.FailureCount,
		boolToInt(ep.Resolved),
		nullTime(ep.ResolvedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert episode: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("episode insert id: %w", err)
	}
	return id, nil
}

// UpdateEpisode persists a recorded failure against an existing episode.
func (t *Tx) UpdateEpisode(ctx context.Context, ep *models.FailureEpisode) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE failure_episodes
		SET last_failure = ?, failure_count = ?
		WHERE id = ?`,
		formatTime(ep.LastFailure), ep.FailureCount, ep.ID,
	)
	if err != nil {
		return fmt.Errorf("update episode: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update episode rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveEpisode marks a single episode resolved at the given time.
func (t *Tx) ResolveEpisode(ctx context.Context, id int64, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE failure_episodes
		SET resolved = 1, resolved_at = ?
		WHERE id = ? AND resolved = 0`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("resolve episode: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve episode rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnresolvedEpisodes returns every open episode, worst first: highest failure
// count, then earliest first failure.
func (s *Store) UnresolvedEpisodes(ctx context.Context) ([]*models.FailureEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workstation, mount_point, first_failure, last_failure,
		       failure_count, resolved, resolved_at
		FROM failure_episodes
		WHERE resolved = 0
		ORDER BY failure_count DESC, first_failure ASC`)
	if err != nil {
		return nil, fmt.Errorf("query unresolved episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodeRows(rows)
}

// OpenEpisodesFor returns the open episodes for one workstation across all of
// its mount points, most recently updated first.
func (s *Store) OpenEpisodesFor(ctx context.Context, workstation string) ([]*models.FailureEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workstation, mount_point, first_failure, last_failure,
		       failure_count, resolved, resolved_at
		FROM failure_episodes
		WHERE workstation = ? AND resolved = 0
		ORDER BY last_failure DESC, id DESC`,
		workstation,
	)
	if err != nil {
		return nil, fmt.Errorf("query workstation episodes: %w", err)
	}
	defer rows.Close()

	return scanEpisodeRows(rows)
}

func scanEpisodeRows(rows *sql.Rows) ([]*models.FailureEpisode, error) {
	var episodes []*models.FailureEpisode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, rows.Err()
}

func scanEpisode(rows *sql.Rows) (*models.FailureEpisode, error) {
	var (
		ep         models.FailureEpisode
		first      string
		last       string
		resolved   int
		resolvedAt sql.NullString
	)

	if err := rows.Scan(
		&ep.ID, &ep.Workstation, &ep.MountPoint, &first, &last,
		&ep.FailureCount, &resolved, &resolvedAt,
	); err != nil {
		return nil, fmt.Errorf("scan episode: %w", err)
	}

	firstTs, err := parseTime(first)
	if err != nil {
		return nil, fmt.Errorf("parse first failure: %w", err)
	}
	lastTs, err := parseTime(last)
	if err != nil {
		return nil, fmt.Errorf("parse last failure: %w", err)
	}

	ep.FirstFailure = firstTs
	ep.LastFailure = lastTs
	ep.Resolved = resolved != 0
	ep.ResolvedAt = timePtr(resolvedAt)

	return &ep, nil
}
