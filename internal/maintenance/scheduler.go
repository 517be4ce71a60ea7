package maintenance

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/metrics"
)

// Scheduler runs the retention sweep on a nightly schedule, as a safety net
// behind the per-cycle sweeps.
type Scheduler struct {
	sweeper *Sweeper
	metrics *metrics.Metrics
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a nightly sweep scheduler.
func NewScheduler(sweeper *Sweeper, m *metrics.Metrics, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		metrics: m,
		cron:    cron.New(),
		logger:  logger.With().Str("component", "retention_scheduler").Logger(),
	}
}

// Start begins the daily sweep schedule at 3:00 AM.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("retention scheduler already running")
	}

	_, err := s.cron.AddFunc("0 3 * * *", s.runSweep)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("retention scheduler started (daily at 03:00)")

	return nil
}

// Stop stops the scheduler gracefully. The returned context is done once any
// in-flight sweep finishes.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping retention scheduler")
	return s.cron.Stop()
}

// runSweep executes one scheduled sweep. Failures are logged and retried on
// the next schedule, never fatal to the daemon.
func (s *Scheduler) runSweep() {
	report, err := s.sweeper.Sweep(context.Background(), false)
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled retention sweep failed")
		return
	}
	for table, n := range report.DeletedByTable {
		s.metrics.RecordSweep(table, n)
	}
}

// RunNow triggers an immediate sweep (useful for testing).
func (s *Scheduler) RunNow() {
	s.runSweep()
}
