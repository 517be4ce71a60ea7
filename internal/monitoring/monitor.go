// Package monitoring drives probe cycles across the workstation fleet,
// feeding results through the health engine and routing issues to immediate
// alerts or the off-hours batcher.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/engine"
	"github.com/mountwarden/mountwarden/internal/metrics"
	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/notifications"
	"github.com/mountwarden/mountwarden/internal/probe"
	"github.com/mountwarden/mountwarden/internal/store"
)

// Prober abstracts the SSH/ping probe layer.
type Prober interface {
	Ping(ctx context.Context, host string) bool
	CheckMounts(ctx context.Context, host string) ([]probe.MountEntry, error)
	VerifySoftware(ctx context.Context, host, mountPoint, name string) (bool, error)
	DirectoryExists(ctx context.Context, host, dir string) (bool, error)
	Remount(ctx context.Context, host string) (string, error)
	ActiveUsers(ctx context.Context, host string) (int, []string)
}

// HealthEngine records probe results and applies the failure lifecycle.
type HealthEngine interface {
	Ingest(ctx context.Context, check *models.MountCheck) (*engine.IngestResult, error)
	RecordWorkstationStatus(ctx context.Context, state *models.WorkstationState) error
	RecordSoftwareCheck(ctx context.Context, check *models.SoftwareCheck) error
}

// IssueBatcher defers issues detected during the quiet window.
type IssueBatcher interface {
	InQuietWindow(t time.Time) bool
	Report(ctx context.Context, issue *models.OffHoursIssue) (bool, error)
}

// StateStore provides the reads the monitor needs between cycles.
type StateStore interface {
	WorkstationState(ctx context.Context, workstation string) (*models.WorkstationState, error)
	UnresolvedEpisodes(ctx context.Context) ([]*models.FailureEpisode, error)
}

// CleanupRunner executes the post-cycle retention sweep.
type CleanupRunner interface {
	Sweep(ctx context.Context, dryRun bool) (*models.CleanupReport, error)
}

// Workstation is one monitored host and the mounts it must carry.
type Workstation struct {
	Host   string
	Mounts []string
}

// Software is one critical path verified when its mount is healthy.
type Software struct {
	Name       string
	MountPoint string
}

// Config holds the cycle runner settings.
type Config struct {
	// Interval is the time between full probe cycles.
	Interval time.Duration
	// MaxConcurrent bounds how many workstations are probed at once. Probes
	// for a single workstation always run sequentially.
	MaxConcurrent int
	// AutoRemount enables one remount attempt when a host's mounts fail.
	AutoRemount bool
	// TrackUsers enables active-session collection on each probe.
	TrackUsers bool
	// Workstations is the monitored inventory.
	Workstations []Workstation
	// Software lists critical paths verified per cycle.
	Software []Software
}

// DefaultConfig returns a Config with sensible defaults and an empty
// inventory.
func DefaultConfig() Config {
	return Config{
		Interval:      time.Hour,
		MaxConcurrent: 4,
		AutoRemount:   true,
		TrackUsers:    true,
	}
}

// Monitor runs periodic probe cycles over the workstation inventory.
type Monitor struct {
	prober  Prober
	engine  HealthEngine
	batcher IssueBatcher
	sender  notifications.Sender
	states  StateStore
	cleanup CleanupRunner
	metrics *metrics.Metrics
	config  Config
	logger  zerolog.Logger

	controlHost string
	monitoredBy string

	mu        sync.Mutex
	lastCycle *time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a Monitor instance.
func NewMonitor(
	prober Prober,
	eng HealthEngine,
	batcher IssueBatcher,
	sender notifications.Sender,
	states StateStore,
	cleanup CleanupRunner,
	m *metrics.Metrics,
	config Config,
	logger zerolog.Logger,
) *Monitor {
	host, _ := os.Hostname()
	return &Monitor{
		prober:      prober,
		engine:      eng,
		batcher:     batcher,
		sender:      sender,
		states:      states,
		cleanup:     cleanup,
		metrics:     m,
		config:      config,
		logger:      logger.With().Str("component", "monitor").Logger(),
		controlHost: host,
		monitoredBy: os.Getenv("USER"),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the cycle loop. The first cycle runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info().
		Dur("interval", m.config.Interval).
		Int("workstations", len(m.config.Workstations)).
		Int("max_concurrent", m.config.MaxConcurrent).
		Bool("auto_remount", m.config.AutoRemount).
		Msg("monitor started")
}

// Stop gracefully stops the cycle loop.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info().Msg("monitor stopped")
}

// run is the main cycle loop.
func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	m.runCycle(ctx)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	if _, err := m.RunOnce(ctx); err != nil {
		m.logger.Error().Err(err).Msg("probe cycle failed")
	}
}

// RunOnce executes one full probe cycle and returns its report. Per-host
// probe and storage failures are recorded in the report and logged, never
// fatal; the only error returned is cycle cancellation.
func (m *Monitor) RunOnce(ctx context.Context) (*models.CycleReport, error) {
	report := &models.CycleReport{
		CycleID:     uuid.New().String(),
		ControlHost: m.controlHost,
		MonitoredBy: m.monitoredBy,
		StartedAt:   time.Now(),
		Results:     make([]*models.WorkstationResult, len(m.config.Workstations)),
	}

	logger := m.logger.With().Str("cycle_id", report.CycleID).Logger()
	logger.Info().Int("workstations", len(m.config.Workstations)).Msg("cycle started")

	workers := m.config.MaxConcurrent
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup
	for i, ws := range m.config.Workstations {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, ws Workstation) {
			defer wg.Done()
			defer func() { <-sem }()
			report.Results[i] = m.probeWorkstation(ctx, logger, ws)
		}(i, ws)
	}
	wg.Wait()

	// Cancellation between probes leaves empty slots.
	results := report.Results[:0]
	for _, res := range report.Results {
		if res != nil {
			results = append(results, res)
		}
	}
	report.Results = results
	report.FinishedAt = time.Now()

	if err := ctx.Err(); err != nil {
		logger.Warn().Int("probed", len(report.Results)).Msg("cycle cancelled")
		return report, err
	}

	m.routeIssues(ctx, logger, report)

	if cleanup, err := m.cleanup.Sweep(ctx, false); err != nil {
		logger.Error().Err(err).Msg("post-cycle retention sweep failed")
	} else {
		report.Cleanup = cleanup
		for table, n := range cleanup.DeletedByTable {
			m.metrics.RecordSweep(table, n)
		}
	}

	if open, err := m.states.UnresolvedEpisodes(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to count open episodes")
	} else {
		m.metrics.SetOpenEpisodes(len(open))
	}
	m.metrics.ObserveCycle(report.Duration(), report.FinishedAt)

	finished := report.FinishedAt
	m.mu.Lock()
	m.lastCycle = &finished
	m.mu.Unlock()

	logger.Info().
		Int("total", report.Total()).
		Int("online", report.Online()).
		Int("offline", report.Offline()).
		Int("with_issues", report.WithIssues()).
		Dur("duration", report.Duration()).
		Msg("cycle finished")

	return report, nil
}

// LastCycle returns when the most recent cycle finished, or nil before the
// first cycle completes.
func (m *Monitor) LastCycle() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCycle
}

// probeWorkstation runs the full probe sequence for one host: reachability,
// active users, mount checks with optional remount, software checks, and the
// per-cycle state snapshot.
func (m *Monitor) probeWorkstation(ctx context.Context, logger zerolog.Logger, ws Workstation) *models.WorkstationResult {
	now := time.Now()
	result := &models.WorkstationResult{Workstation: ws.Host}

	if !m.prober.Ping(ctx, ws.Host) {
		result.Error = "workstation offline"
		m.recordSnapshot(ctx, logger, result, nil, now)
		logger.Warn().Str("workstation", ws.Host).Msg("workstation offline")
		return result
	}
	result.Online = true

	var users []string
	if m.config.TrackUsers {
		count, names := m.prober.ActiveUsers(ctx, ws.Host)
		result.ActiveUsers = count
		users = names
	}

	checks, probeErr := m.checkMounts(ctx, ws, now)

	if !checksHealthy(checks) && m.config.AutoRemount {
		outcome, err := m.prober.Remount(ctx, ws.Host)
		result.ActionsTaken = append(result.ActionsTaken, "remount attempted: "+outcome)
		if err == nil {
			// Record the post-remount state, not the one it replaced.
			checks, probeErr = m.checkMounts(ctx, ws, time.Now())
		}
	}

	action := strings.Join(result.ActionsTaken, ", ")
	for _, check := range checks {
		check.UsersActive = result.ActiveUsers
		check.MonitoredBy = m.controlHost
		check.ActionTaken = action

		res, err := m.engine.Ingest(ctx, check)
		if err != nil {
			logger.Error().Err(err).
				Str("workstation", check.Workstation).
				Str("mount_point", check.MountPoint).
				Msg("failed to record mount check")
			continue
		}
		m.metrics.RecordCheck(string(check.Status))
		m.metrics.RecordTransition(string(res.Transition))
	}

	result.Mounts = checks
	result.MountsOK = probeErr == nil && checksHealthy(checks)
	if probeErr != nil {
		result.Error = probeErr.Error()
	}

	if result.MountsOK {
		m.checkSoftware(ctx, logger, ws, result)
	}

	m.recordSnapshot(ctx, logger, result, users, now)
	return result
}

// checkMounts probes one host's mount table and classifies each expected
// mount. An expected mount absent from the output is checked for a missing
// mount point directory; a probe timeout marks every expected mount
// unreachable.
func (m *Monitor) checkMounts(ctx context.Context, ws Workstation, at time.Time) ([]*models.MountCheck, error) {
	start := time.Now()
	entries, err := m.prober.CheckMounts(ctx, ws.Host)
	elapsed := time.Since(start)

	checks := make([]*models.MountCheck, 0, len(ws.Mounts))

	if err != nil {
		status := models.MountStatusFailed
		if errors.Is(err, probe.ErrTimeout) {
			status = models.MountStatusUnreachable
		}
		for _, mountPoint := range ws.Mounts {
			check := models.NewMountCheck(ws.Host, mountPoint, status, at)
			check.ErrorMessage = err.Error()
			check.SetResponseTime(elapsed)
			checks = append(checks, check)
		}
		return checks, err
	}

	byPoint := make(map[string]probe.MountEntry, len(entries))
	for _, e := range entries {
		byPoint[e.MountPoint] = e
	}

	for _, mountPoint := range ws.Mounts {
		check := models.NewMountCheck(ws.Host, mountPoint, models.MountStatusNotMounted, at)
		check.SetResponseTime(elapsed)
		if e, ok := byPoint[mountPoint]; ok {
			check.Status = e.Status
			check.Device = e.Device
		} else if exists, derr := m.prober.DirectoryExists(ctx, ws.Host, mountPoint); derr == nil && !exists {
			check.Status = models.MountStatusDirectoryMissing
		}
		checks = append(checks, check)
	}

	return checks, nil
}

// checkSoftware verifies each critical path whose mount point is part of this
// host's inventory. Only called when the host's mounts are healthy.
func (m *Monitor) checkSoftware(ctx context.Context, logger zerolog.Logger, ws Workstation, result *models.WorkstationResult) {
	for _, sw := range m.config.Software {
		if !containsMount(ws.Mounts, sw.MountPoint) {
			continue
		}

		start := time.Now()
		accessible, err := m.prober.VerifySoftware(ctx, ws.Host, sw.MountPoint, sw.Name)
		if err != nil {
			logger.Warn().Err(err).
				Str("workstation", ws.Host).
				Str("software", sw.Name).
				Msg("software check failed")
			accessible = false
		}

		check := models.NewSoftwareCheck(ws.Host, sw.Name, sw.MountPoint, accessible, time.Now())
		check.SetCheckTime(time.Since(start))
		if err := m.engine.RecordSoftwareCheck(ctx, check); err != nil {
			logger.Error().Err(err).
				Str("workstation", ws.Host).
				Str("software", sw.Name).
				Msg("failed to record software check")
		}

		if !accessible {
			result.SoftwareIssues = append(result.SoftwareIssues, models.SoftwareIssue{
				Software:   sw.Name,
				MountPoint: sw.MountPoint,
			})
		}
	}
}

// recordSnapshot upserts the per-cycle state row, carrying the consecutive
// failure streak forward. A fully healthy cycle resets the streak.
func (m *Monitor) recordSnapshot(ctx context.Context, logger zerolog.Logger, result *models.WorkstationResult, users []string, at time.Time) {
	state := models.NewWorkstationState(result.Workstation)
	state.IsOnline = result.Online
	state.LastCheck = &at
	state.MountSummary = mountSummary(result)
	state.SetUsers(result.ActiveUsers, users)

	if result.Online && result.MountsOK {
		ok := at
		state.LastSuccessfulCheck = &ok
	} else {
		prior, err := m.states.WorkstationState(ctx, result.Workstation)
		switch {
		case err == nil:
			state.ConsecutiveFailures = prior.ConsecutiveFailures + 1
		case errors.Is(err, store.ErrNotFound):
			state.ConsecutiveFailures = 1
		default:
			logger.Warn().Err(err).
				Str("workstation", result.Workstation).
				Msg("failed to read prior workstation state")
			state.ConsecutiveFailures = 1
		}
	}

	if err := m.engine.RecordWorkstationStatus(ctx, state); err != nil {
		logger.Error().Err(err).
			Str("workstation", result.Workstation).
			Msg("failed to record workstation status")
	}
}

// routeIssues delivers cycle problems: immediately by email outside the quiet
// window, into the off-hours batcher inside it.
func (m *Monitor) routeIssues(ctx context.Context, logger zerolog.Logger, report *models.CycleReport) {
	problems := report.Problems()
	if len(problems) == 0 {
		return
	}

	if !m.batcher.InQuietWindow(report.FinishedAt) {
		if err := m.sender.SendCycleAlert(report); err != nil {
			logger.Error().Err(err).Msg("cycle alert failed")
			return
		}
		m.metrics.RecordAlert("cycle")
		return
	}

	for _, res := range problems {
		for _, issue := range issuesFor(res, report.FinishedAt) {
			created, err := m.batcher.Report(ctx, issue)
			if err != nil {
				logger.Error().Err(err).
					Str("workstation", issue.Workstation).
					Str("issue_type", string(issue.IssueType)).
					Msg("failed to batch issue")
				continue
			}
			if created {
				m.metrics.RecordIssueBatched()
			}
		}
	}
	logger.Info().Int("workstations", len(problems)).Msg("issues held for morning summary")
}

// issuesFor converts one problem result into off-hours issues, at most one
// per issue type.
func issuesFor(res *models.WorkstationResult, at time.Time) []*models.OffHoursIssue {
	var issues []*models.OffHoursIssue

	switch {
	case !res.Online:
		issues = append(issues, models.NewOffHoursIssue(
			res.Workstation, models.IssueTypeOffline, "workstation did not answer ping", at))
	case !res.MountsOK:
		details := res.Error
		if details == "" {
			details = failingMounts(res)
		}
		issues = append(issues, models.NewOffHoursIssue(
			res.Workstation, models.IssueTypeMountFailure, details, at))
	}

	if len(res.SoftwareIssues) > 0 {
		names := make([]string, 0, len(res.SoftwareIssues))
		for _, sw := range res.SoftwareIssues {
			names = append(names, fmt.Sprintf("%s (%s)", sw.Software, sw.MountPoint))
		}
		issues = append(issues, models.NewOffHoursIssue(
			res.Workstation, models.IssueTypeSoftwareMissing, strings.Join(names, ", "), at))
	}

	return issues
}

// failingMounts lists the unhealthy mounts of a result for issue details.
func failingMounts(res *models.WorkstationResult) string {
	var failing []string
	for _, c := range res.Mounts {
		if !c.Status.IsSuccess() {
			failing = append(failing, fmt.Sprintf("%s (%s)", c.MountPoint, c.Status))
		}
	}
	if len(failing) == 0 {
		return "mount check failed"
	}
	return strings.Join(failing, ", ")
}

// mountSummary renders the cycle's mount state in "n/m mounts ok" shorthand.
func mountSummary(result *models.WorkstationResult) string {
	if !result.Online {
		return "offline"
	}
	if len(result.Mounts) == 0 {
		return ""
	}
	ok := 0
	for _, c := range result.Mounts {
		if c.Status.IsSuccess() {
			ok++
		}
	}
	return fmt.Sprintf("%d/%d mounts ok", ok, len(result.Mounts))
}

func checksHealthy(checks []*models.MountCheck) bool {
	for _, c := range checks {
		if !c.Status.IsSuccess() {
			return false
		}
	}
	return true
}

func containsMount(mounts []string, mountPoint string) bool {
	for _, m := range mounts {
		if m == mountPoint {
			return true
		}
	}
	return false
}
