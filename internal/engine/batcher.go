package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/store"
)

// Batcher holds issues detected during the quiet window for a single deferred
// notification the next morning, instead of paging anyone overnight.
type Batcher struct {
	store  Store
	window models.QuietWindow
	logger zerolog.Logger
}

// NewBatcher creates a Batcher for the given quiet window.
func NewBatcher(st Store, window models.QuietWindow, logger zerolog.Logger) *Batcher {
	return &Batcher{
		store:  st,
		window: window,
		logger: logger.With().Str("component", "offhours").Logger(),
	}
}

// NewBatcherWithStore creates a Batcher using the SQLite store directly.
func NewBatcherWithStore(s *store.Store, window models.QuietWindow, logger zerolog.Logger) *Batcher {
	return NewBatcher(sqliteStore{s: s}, window, logger)
}

// Window returns the configured quiet window.
func (b *Batcher) Window() models.QuietWindow {
	return b.window
}

// InQuietWindow reports whether t falls inside the quiet window. Callers
// route issues here when it does and to the immediate alerter when it does
// not.
func (b *Batcher) InQuietWindow(t time.Time) bool {
	return b.window.Contains(t)
}

// Report queues an issue for the morning flush. If an unnotified issue with
// the same (workstation, issue type) key is already queued, its details and
// detection time are refreshed in place so the morning summary carries one
// line per distinct problem, not one per probe cycle. Returns true when a new
// row was created.
func (b *Batcher) Report(ctx context.Context, issue *models.OffHoursIssue) (bool, error) {
	if err := issue.Validate(); err != nil {
		return false, fmt.Errorf("validate issue: %w", err)
	}

	var created bool
	err := b.store.Write(ctx, func(tx Tx) error {
		existing, err := tx.UnnotifiedIssue(ctx, issue.Workstation, issue.IssueType)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			id, err := tx.InsertIssue(ctx, issue)
			if err != nil {
				return err
			}
			issue.ID = id
			created = true
			return nil
		}

		existing.DetectedAt = issue.DetectedAt
		existing.Details = issue.Details
		if err := tx.UpdateIssue(ctx, existing); err != nil {
			return err
		}
		issue.ID = existing.ID
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("report issue: %w", err)
	}

	b.logger.Debug().
		Str("workstation", issue.Workstation).
		Str("issue_type", string(issue.IssueType)).
		Bool("created", created).
		Msg("off-hours issue recorded")

	return created, nil
}

// FlushPending drains the queue: it returns every unnotified issue and marks
// them notified at asOf in the same transaction, so concurrent flushes cannot
// double-send. A one-shot drain; delivery after the flush is the caller's
// responsibility.
func (b *Batcher) FlushPending(ctx context.Context, asOf time.Time) ([]*models.OffHoursIssue, error) {
	var flushed []*models.OffHoursIssue

	err := b.store.Write(ctx, func(tx Tx) error {
		pending, err := tx.UnnotifiedIssues(ctx)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		n, err := tx.MarkIssuesNotified(ctx, asOf)
		if err != nil {
			return err
		}
		if n != int64(len(pending)) {
			return fmt.Errorf("flush marked %d issues, expected %d", n, len(pending))
		}

		at := asOf
		for _, issue := range pending {
			issue.Notified = true
			issue.NotifiedAt = &at
		}
		flushed = pending
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flush pending issues: %w", err)
	}

	if len(flushed) > 0 {
		b.logger.Info().Int("issues", len(flushed)).Msg("off-hours issues flushed")
	}

	return flushed, nil
}
