// Package engine implements the mount health state machine: probe ingestion,
// failure episode lifecycle, and off-hours issue batching.
//
// Every mutation runs inside one store transaction, so a probe's check row,
// its episode transition, and the workstation touch land together or not at
// all.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/store"
)

// Tx defines the transactional operations the engine mutates through.
// *store.Tx satisfies it.
type Tx interface {
	AppendMountCheck(ctx context.Context, check *models.MountCheck) (int64, error)
	AppendSoftwareCheck(ctx context.Context, check *models.SoftwareCheck) (int64, error)
	OpenEpisodes(ctx context.Context, workstation, mountPoint string) ([]*models.FailureEpisode, error)
	InsertEpisode(ctx context.Context, ep *models.FailureEpisode) (int64, error)
	UpdateEpisode(ctx context.Context, ep *models.FailureEpisode) error
	ResolveEpisode(ctx context.Context, id int64, at time.Time) error
	TouchWorkstation(ctx context.Context, workstation string, at time.Time, success bool) error
	UpsertWorkstationState(ctx context.Context, state *models.WorkstationState) error
	UnnotifiedIssue(ctx context.Context, workstation string, issueType models.IssueType) (*models.OffHoursIssue, error)
	InsertIssue(ctx context.Context, issue *models.OffHoursIssue) (int64, error)
	UpdateIssue(ctx context.Context, issue *models.OffHoursIssue) error
	UnnotifiedIssues(ctx context.Context) ([]*models.OffHoursIssue, error)
	MarkIssuesNotified(ctx context.Context, asOf time.Time) (int64, error)
}

// Store serializes engine mutations into atomic transactions.
type Store interface {
	Write(ctx context.Context, fn func(tx Tx) error) error
}

// sqliteStore adapts *store.Store to the Store interface.
type sqliteStore struct {
	s *store.Store
}

func (a sqliteStore) Write(ctx context.Context, fn func(tx Tx) error) error {
	return a.s.Write(ctx, func(tx *store.Tx) error {
		return fn(tx)
	})
}

// Transition describes what the failure tracker did with one probe result.
type Transition string

const (
	// TransitionNone means a healthy check with no open episode to resolve.
	TransitionNone Transition = "none"
	// TransitionOpened means a failed check started a new episode.
	TransitionOpened Transition = "opened"
	// TransitionExtended means a failed check incremented an open episode.
	TransitionExtended Transition = "extended"
	// TransitionResolved means a healthy check closed an open episode.
	TransitionResolved Transition = "resolved"
)

// IngestResult reports what one ingest did.
type IngestResult struct {
	CheckID    int64
	Transition Transition
	// Episode is the episode the transition touched, nil for TransitionNone.
	Episode *models.FailureEpisode
	// ResolvedCount is how many episodes were closed. Greater than one only
	// when legacy duplicate open episodes existed for the pair.
	ResolvedCount int
}

// Engine applies probe results to the health state.
type Engine struct {
	store  Store
	logger zerolog.Logger
}

// New creates an Engine on top of any transactional store.
func New(st Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  st,
		logger: logger.With().Str("component", "engine").Logger(),
	}
}

// NewWithStore creates an Engine using the SQLite store directly.
func NewWithStore(s *store.Store, logger zerolog.Logger) *Engine {
	return New(sqliteStore{s: s}, logger)
}

// Ingest records a probe result and applies the episode lifecycle in one
// transaction: a success status resolves any open episode for the pair, a
// failure status extends the open episode or starts a new one, and the
// workstation's check timestamps advance either way.
func (e *Engine) Ingest(ctx context.Context, check *models.MountCheck) (*IngestResult, error) {
	if err := check.Validate(); err != nil {
		return nil, fmt.Errorf("validate check: %w", err)
	}

	result := &IngestResult{Transition: TransitionNone}

	err := e.store.Write(ctx, func(tx Tx) error {
		id, err := tx.AppendMountCheck(ctx, check)
		if err != nil {
			return err
		}
		check.ID = id
		result.CheckID = id

		open, err := tx.OpenEpisodes(ctx, check.Workstation, check.MountPoint)
		if err != nil {
			return err
		}

		if len(open) > 1 {
			// Legacy data can hold duplicate open episodes for one pair. The
			// most recently updated one is authoritative; the rest drain on
			// the next successful check.
			e.logger.Warn().
				Str("workstation", check.Workstation).
				Str("mount_point", check.MountPoint).
				Int("open_episodes", len(open)).
				Msg("duplicate open episodes for mount, using most recently updated")
		}

		if check.Status.IsSuccess() {
			for _, ep := range open {
				if err := tx.ResolveEpisode(ctx, ep.ID, check.Timestamp); err != nil {
					return err
				}
				ep.Resolve(check.Timestamp)
				result.ResolvedCount++
			}
			if len(open) > 0 {
				result.Transition = TransitionResolved
				result.Episode = open[0]
			}
		} else if len(open) > 0 {
			ep := open[0]
			ep.RecordFailure(check.Timestamp)
			if err := tx.UpdateEpisode(ctx, ep); err != nil {
				return err
			}
			result.Transition = TransitionExtended
			result.Episode = ep
		} else {
			ep := models.NewFailureEpisode(check.Workstation, check.MountPoint, check.Timestamp)
			id, err := tx.InsertEpisode(ctx, ep)
			if err != nil {
				return err
			}
			ep.ID = id
			result.Transition = TransitionOpened
			result.Episode = ep
		}

		return tx.TouchWorkstation(ctx, check.Workstation, check.Timestamp, check.Status.IsSuccess())
	})
	if err != nil {
		return nil, fmt.Errorf("ingest check: %w", err)
	}

	e.logger.Debug().
		Str("workstation", check.Workstation).
		Str("mount_point", check.MountPoint).
		Str("status", string(check.Status)).
		Str("transition", string(result.Transition)).
		Msg("check ingested")

	return result, nil
}

// RecordWorkstationStatus stores the end-of-cycle snapshot for one host.
func (e *Engine) RecordWorkstationStatus(ctx context.Context, state *models.WorkstationState) error {
	if state.Workstation == "" {
		return fmt.Errorf("workstation is required")
	}

	err := e.store.Write(ctx, func(tx Tx) error {
		return tx.UpsertWorkstationState(ctx, state)
	})
	if err != nil {
		return fmt.Errorf("record workstation status: %w", err)
	}
	return nil
}

// RecordSoftwareCheck stores a software accessibility result.
func (e *Engine) RecordSoftwareCheck(ctx context.Context, check *models.SoftwareCheck) error {
	if err := check.Validate(); err != nil {
		return fmt.Errorf("validate software check: %w", err)
	}

	err := e.store.Write(ctx, func(tx Tx) error {
		_, err := tx.AppendSoftwareCheck(ctx, check)
		return err
	})
	if err != nil {
		return fmt.Errorf("record software check: %w", err)
	}
	return nil
}
