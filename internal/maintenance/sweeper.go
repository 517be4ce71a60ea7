// Package maintenance runs retention sweeps and the schedules around them.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/store"
)

// CompactionThreshold is the minimum number of rows a sweep must delete
// before the database file is compacted afterwards. Compaction is an
// optimization; a failed compaction never fails the sweep.
const CompactionThreshold = 1000

// Sweeper deletes records that have aged out of the retention window.
type Sweeper struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewSweeper creates a Sweeper over the given store.
func NewSweeper(s *store.Store, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:  s,
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

// Sweep runs one retention pass using the stored policy. With dryRun set it
// reports what would be deleted without deleting anything.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (*models.CleanupReport, error) {
	cfg, err := s.store.RetentionConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load retention config: %w", err)
	}
	return s.SweepWith(ctx, cfg, dryRun)
}

// SweepWith runs one retention pass against an explicit policy. All deletes
// happen in a single transaction, so an interrupted sweep removes nothing.
//
// Standard mode deletes aged checks, software checks, resolved episodes, and
// delivered off-hours issues. Aggressive mode additionally deletes open
// episodes whose last failure predates the cutoff, workstation rows not
// checked since the cutoff, and undelivered issues older than the cutoff.
func (s *Sweeper) SweepWith(ctx context.Context, cfg models.RetentionConfig, dryRun bool) (*models.CleanupReport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	cutoff := cfg.Cutoff(start)
	report := models.NewCleanupReport(cfg, cutoff, dryRun)

	if cfg.Disabled() {
		report.Skipped = true
		s.logger.Info().Msg("retention sweeping disabled, nothing to do")
		return report, nil
	}

	err := s.store.Write(ctx, func(tx *store.Tx) error {
		steps := []struct {
			table      string
			count      func(context.Context, time.Time) (int64, error)
			delete     func(context.Context, time.Time) (int64, error)
			aggressive bool
		}{
			{"mount_checks", tx.CountMountChecksBefore, tx.DeleteMountChecksBefore, false},
			{"software_checks", tx.CountSoftwareChecksBefore, tx.DeleteSoftwareChecksBefore, false},
			{"failure_episodes", tx.CountResolvedEpisodesBefore, tx.DeleteResolvedEpisodesBefore, false},
			{"off_hours_issues", tx.CountNotifiedIssuesBefore, tx.DeleteNotifiedIssuesBefore, false},
			{"failure_episodes", tx.CountOpenEpisodesBefore, tx.DeleteOpenEpisodesBefore, true},
			{"off_hours_issues", tx.CountPendingIssuesBefore, tx.DeletePendingIssuesBefore, true},
			{"workstation_state", tx.CountStaleWorkstations, tx.DeleteStaleWorkstations, true},
		}

		for _, step := range steps {
			if step.aggressive && !cfg.Aggressive {
				continue
			}

			var (
				n   int64
				err error
			)
			if dryRun {
				n, err = step.count(ctx, cutoff)
			} else {
				n, err = step.delete(ctx, cutoff)
			}
			if err != nil {
				return err
			}
			report.DeletedByTable[step.table] += n
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("retention sweep: %w", err)
	}

	report.Duration = time.Since(start)

	if !dryRun && report.TotalDeleted() >= CompactionThreshold {
		if err := s.store.Compact(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("database compaction failed")
		} else {
			report.Compacted = true
		}
	}

	s.logger.Info().
		Str("mode", report.Mode).
		Bool("dry_run", dryRun).
		Int64("deleted_rows", report.TotalDeleted()).
		Time("cutoff", cutoff).
		Dur("duration", report.Duration).
		Msg("retention sweep completed")

	return report, nil
}

// UpdateConfig validates and persists a new retention policy.
func (s *Sweeper) UpdateConfig(ctx context.Context, cfg models.RetentionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	err := s.store.Write(ctx, func(tx *store.Tx) error {
		return tx.SetRetentionConfig(ctx, cfg)
	})
	if err != nil {
		return fmt.Errorf("update retention config: %w", err)
	}

	s.logger.Info().
		Int("keep_hours", cfg.KeepHours).
		Str("mode", cfg.Mode()).
		Msg("retention config updated")

	return nil
}

// Config reads the active retention policy.
func (s *Sweeper) Config(ctx context.Context) (models.RetentionConfig, error) {
	return s.store.RetentionConfig(ctx)
}
