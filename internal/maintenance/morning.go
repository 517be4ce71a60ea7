package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/metrics"
	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/notifications"
)

// Flusher drains the off-hours issue queue.
type Flusher interface {
	FlushPending(ctx context.Context, asOf time.Time) ([]*models.OffHoursIssue, error)
}

// MorningScheduler emails the deduplicated off-hours issue list once a day,
// at the hour the quiet window ends.
type MorningScheduler struct {
	flusher Flusher
	sender  notifications.Sender
	metrics *metrics.Metrics
	hour    int
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewMorningScheduler creates the daily flush scheduler. hour is on the
// 24-hour clock, normally the quiet window's end hour.
func NewMorningScheduler(flusher Flusher, sender notifications.Sender, m *metrics.Metrics, hour int, logger zerolog.Logger) *MorningScheduler {
	return &MorningScheduler{
		flusher: flusher,
		sender:  sender,
		metrics: m,
		hour:    hour,
		cron:    cron.New(),
		logger:  logger.With().Str("component", "morning_scheduler").Logger(),
	}
}

// Start begins the daily flush schedule.
func (s *MorningScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("morning scheduler already running")
	}
	if s.hour < 0 || s.hour > 23 {
		return fmt.Errorf("morning flush hour %d out of range", s.hour)
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("0 %d * * *", s.hour), s.runFlush)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Int("hour", s.hour).Msg("morning flush scheduler started")

	return nil
}

// Stop stops the scheduler gracefully. The returned context is done once any
// in-flight flush finishes.
func (s *MorningScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping morning flush scheduler")
	return s.cron.Stop()
}

// runFlush executes one scheduled flush. Failures are logged, never fatal to
// the daemon.
func (s *MorningScheduler) runFlush() {
	if err := s.Flush(context.Background(), time.Now()); err != nil {
		s.logger.Error().Err(err).Msg("morning flush failed")
	}
}

// Flush drains pending off-hours issues as of the given time and emails the
// summary when any were held overnight. The drain marks issues notified
// before delivery, so a failed send does not re-queue them.
func (s *MorningScheduler) Flush(ctx context.Context, asOf time.Time) error {
	issues, err := s.flusher.FlushPending(ctx, asOf)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		s.logger.Debug().Msg("no off-hours issues pending")
		return nil
	}

	if err := s.sender.SendMorningSummary(issues, asOf); err != nil {
		return fmt.Errorf("send morning summary: %w", err)
	}

	s.metrics.RecordAlert("morning")
	s.logger.Info().Int("issues", len(issues)).Msg("morning summary sent")

	return nil
}

// RunNow triggers an immediate flush (useful for testing).
func (s *MorningScheduler) RunNow() {
	s.runFlush()
}
