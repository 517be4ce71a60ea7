package engine

import (
	"context"
	"errors"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
	"github.com/mountwarden/mountwarden/internal/store"
)

var testTime = time.Date(2025, 6, 10, 21, 0, 0, 0, time.UTC)

// mockStore implements Store and Tx with in-memory state.
type mockStore struct {
	checks         []*models.MountCheck
	softwareChecks []*models.SoftwareCheck
	episodes       []*models.FailureEpisode
	states         map[string]*models.WorkstationState
	issues         []*models.OffHoursIssue

	appendErr  error
	openErr    error
	insertErr  error
	updateErr  error
	resolveErr error
	touchErr   error
}

func newMockStore() *mockStore {
	return &mockStore{states: make(map[string]*models.WorkstationState)}
}

func (m *mockStore) Write(_ context.Context, fn func(tx Tx) error) error {
	return fn(m)
}

func (m *mockStore) AppendMountCheck(_ context.Context, check *models.MountCheck) (int64, error) {
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	copied := *check
	copied.ID = int64(len(m.checks) + 1)
	m.checks = append(m.checks, &copied)
	return copied.ID, nil
}

func (m *mockStore) AppendSoftwareCheck(_ context.Context, check *models.SoftwareCheck) (int64, error) {
	copied := *check
	copied.ID = int64(len(m.softwareChecks) + 1)
	m.softwareChecks = append(m.softwareChecks, &copied)
	return copied.ID, nil
}

func (m *mockStore) OpenEpisodes(_ context.Context, workstation, mountPoint string) ([]*models.FailureEpisode, error) {
	if m.openErr != nil {
		return nil, m.openErr
	}
	var open []*models.FailureEpisode
	for _, ep := range m.episodes {
		if ep.Workstation == workstation && ep.MountPoint == mountPoint && !ep.Resolved {
			open = append(open, ep)
		}
	}
	sort.Slice(open, func(i, j int) bool {
		if !open[i].LastFailure.Equal(open[j].LastFailure) {
			return open[i].LastFailure.After(open[j].LastFailure)
		}
		return open[i].ID > open[j].ID
	})
	return open, nil
}

func (m *mockStore) InsertEpisode(_ context.Context, ep *models.FailureEpisode) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	ep.ID = int64(len(m.episodes) + 1)
	m.episodes = append(m.episodes, ep)
	return ep.ID, nil
}

func (m *mockStore) UpdateEpisode(_ context.Context, ep *models.FailureEpisode) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for i, existing := range m.episodes {
		if existing.ID == ep.ID {
			m.episodes[i] = ep
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) ResolveEpisode(_ context.Context, id int64, at time.Time) error {
	if m.resolveErr != nil {
		return m.resolveErr
	}
	for _, ep := range m.episodes {
		if ep.ID == id && !ep.Resolved {
			ep.Resolve(at)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) TouchWorkstation(_ context.Context, workstation string, at time.Time, success bool) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	state, ok := m.states[workstation]
	if !ok {
		state = models.NewWorkstationState(workstation)
		state.IsOnline = true
		m.states[workstation] = state
	}
	t := at
	state.LastCheck = &t
	if success {
		state.LastSuccessfulCheck = &t
	}
	return nil
}

func (m *mockStore) UpsertWorkstationState(_ context.Context, state *models.WorkstationState) error {
	m.states[state.Workstation] = state
	return nil
}

func (m *mockStore) UnnotifiedIssue(_ context.Context, workstation string, issueType models.IssueType) (*models.OffHoursIssue, error) {
	for i := len(m.issues) - 1; i >= 0; i-- {
		issue := m.issues[i]
		if issue.Workstation == workstation && issue.IssueType == issueType && !issue.Notified {
			return issue, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) InsertIssue(_ context.Context, issue *models.OffHoursIssue) (int64, error) {
	issue.ID = int64(len(m.issues) + 1)
	m.issues = append(m.issues, issue)
	return issue.ID, nil
}

func (m *mockStore) UpdateIssue(_ context.Context, issue *models.OffHoursIssue) error {
	for i, existing := range m.issues {
		if existing.ID == issue.ID {
			m.issues[i] = issue
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockStore) UnnotifiedIssues(_ context.Context) ([]*models.OffHoursIssue, error) {
	var pending []*models.OffHoursIssue
	for _, issue := range m.issues {
		if !issue.Notified {
			pending = append(pending, issue)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].DetectedAt.Equal(pending[j].DetectedAt) {
			return pending[i].DetectedAt.Before(pending[j].DetectedAt)
		}
		return pending[i].ID < pending[j].ID
	})
	return pending, nil
}

func (m *mockStore) MarkIssuesNotified(_ context.Context, asOf time.Time) (int64, error) {
	var n int64
	for _, issue := range m.issues {
		if !issue.Notified {
			issue.Notified = true
			t := asOf
			issue.NotifiedAt = &t
			n++
		}
	}
	return n, nil
}

func (m *mockStore) openEpisodeCount(workstation, mountPoint string) int {
	count := 0
	for _, ep := range m.episodes {
		if ep.Workstation == workstation && ep.MountPoint == mountPoint && !ep.Resolved {
			count++
		}
	}
	return count
}

func testEngine(st Store) *Engine {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return New(st, logger)
}

func TestIngestOpensEpisodeOnFailure(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	check := models.NewMountCheck("adam", "/mnt/a", models.MountStatusNotMounted, testTime)
	result, err := eng.Ingest(ctx, check)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if result.Transition != TransitionOpened {
		t.Errorf("transition mismatch: got %s, want %s", result.Transition, TransitionOpened)
	}
	if result.Episode == nil {
		t.Fatal("expected an episode")
	}
	if result.Episode.FailureCount != 1 {
		t.Errorf("failure count mismatch: got %d, want 1", result.Episode.FailureCount)
	}
	if !result.Episode.FirstFailure.Equal(testTime) {
		t.Errorf("first failure mismatch: got %v, want %v", result.Episode.FirstFailure, testTime)
	}
	if !result.Episode.LastFailure.Equal(testTime) {
		t.Errorf("last failure mismatch: got %v, want %v", result.Episode.LastFailure, testTime)
	}
	if len(mock.checks) != 1 {
		t.Errorf("check count mismatch: got %d, want 1", len(mock.checks))
	}
}

func TestIngestLifecycle(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	t0 := testTime
	t1 := testTime.Add(5 * time.Minute)
	t2 := testTime.Add(10 * time.Minute)
	t3 := testTime.Add(15 * time.Minute)

	// t0: failure opens an episode.
	r0, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusNotMounted, t0))
	if err != nil {
		t.Fatalf("ingest t0: %v", err)
	}
	if r0.Transition != TransitionOpened {
		t.Fatalf("t0 transition mismatch: got %s, want %s", r0.Transition, TransitionOpened)
	}
	firstID := r0.Episode.ID

	// t1: another failure extends the same episode.
	r1, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusFailed, t1))
	if err != nil {
		t.Fatalf("ingest t1: %v", err)
	}
	if r1.Transition != TransitionExtended {
		t.Errorf("t1 transition mismatch: got %s, want %s", r1.Transition, TransitionExtended)
	}
	if r1.Episode.ID != firstID {
		t.Errorf("t1 touched episode %d, want %d", r1.Episode.ID, firstID)
	}
	if r1.Episode.FailureCount != 2 {
		t.Errorf("t1 failure count mismatch: got %d, want 2", r1.Episode.FailureCount)
	}
	if !r1.Episode.LastFailure.Equal(t1) {
		t.Errorf("t1 last failure mismatch: got %v, want %v", r1.Episode.LastFailure, t1)
	}
	if !r1.Episode.FirstFailure.Equal(t0) {
		t.Errorf("t1 first failure must stay %v, got %v", t0, r1.Episode.FirstFailure)
	}
	if n := mock.openEpisodeCount("adam", "/mnt/a"); n != 1 {
		t.Errorf("open episode count mismatch: got %d, want 1", n)
	}

	// t2: success resolves it and opens nothing new.
	r2, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, t2))
	if err != nil {
		t.Fatalf("ingest t2: %v", err)
	}
	if r2.Transition != TransitionResolved {
		t.Errorf("t2 transition mismatch: got %s, want %s", r2.Transition, TransitionResolved)
	}
	if r2.ResolvedCount != 1 {
		t.Errorf("t2 resolved count mismatch: got %d, want 1", r2.ResolvedCount)
	}
	if !r2.Episode.Resolved {
		t.Error("t2 episode not marked resolved")
	}
	if r2.Episode.ResolvedAt == nil || !r2.Episode.ResolvedAt.Equal(t2) {
		t.Errorf("t2 resolved_at mismatch: got %v, want %v", r2.Episode.ResolvedAt, t2)
	}
	if n := mock.openEpisodeCount("adam", "/mnt/a"); n != 0 {
		t.Errorf("open episode count after resolve: got %d, want 0", n)
	}

	// t3: a new failure starts a fresh episode, not a resurrection.
	r3, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusNotMounted, t3))
	if err != nil {
		t.Fatalf("ingest t3: %v", err)
	}
	if r3.Transition != TransitionOpened {
		t.Errorf("t3 transition mismatch: got %s, want %s", r3.Transition, TransitionOpened)
	}
	if r3.Episode.ID == firstID {
		t.Error("t3 reused the resolved episode instead of opening a new one")
	}
	if r3.Episode.FailureCount != 1 {
		t.Errorf("t3 failure count mismatch: got %d, want 1", r3.Episode.FailureCount)
	}
}

func TestIngestSuccessWithoutEpisode(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)

	result, err := eng.Ingest(context.Background(), models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, testTime))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if result.Transition != TransitionNone {
		t.Errorf("transition mismatch: got %s, want %s", result.Transition, TransitionNone)
	}
	if result.Episode != nil {
		t.Error("expected no episode")
	}
	if len(mock.episodes) != 0 {
		t.Errorf("episode rows created: got %d, want 0", len(mock.episodes))
	}
}

func TestIngestNewlyMountedResolves(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusNotMounted, testTime)); err != nil {
		t.Fatalf("ingest failure: %v", err)
	}

	// A remount during the probe counts as success for the lifecycle.
	result, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusNewlyMounted, testTime.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ingest remount: %v", err)
	}
	if result.Transition != TransitionResolved {
		t.Errorf("transition mismatch: got %s, want %s", result.Transition, TransitionResolved)
	}
}

func TestIngestIndependentKeys(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusNotMounted, testTime)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/b", models.MountStatusNotMounted, testTime)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := eng.Ingest(ctx, models.NewMountCheck("eve", "/mnt/a", models.MountStatusNotMounted, testTime)); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	// A success on one key leaves the others open.
	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, testTime.Add(time.Minute))); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if n := mock.openEpisodeCount("adam", "/mnt/a"); n != 0 {
		t.Errorf("adam /mnt/a open count: got %d, want 0", n)
	}
	if n := mock.openEpisodeCount("adam", "/mnt/b"); n != 1 {
		t.Errorf("adam /mnt/b open count: got %d, want 1", n)
	}
	if n := mock.openEpisodeCount("eve", "/mnt/a"); n != 1 {
		t.Errorf("eve /mnt/a open count: got %d, want 1", n)
	}
}

func TestIngestDuplicateOpenEpisodes(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	// Seed legacy duplicates directly.
	older := models.NewFailureEpisode("adam", "/mnt/a", testTime.Add(-2*time.Hour))
	newer := models.NewFailureEpisode("adam", "/mnt/a", testTime.Add(-1*time.Hour))
	if _, err := mock.InsertEpisode(ctx, older); err != nil {
		t.Fatalf("seed older: %v", err)
	}
	if _, err := mock.InsertEpisode(ctx, newer); err != nil {
		t.Fatalf("seed newer: %v", err)
	}

	// A failure updates only the most recently updated episode.
	result, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusFailed, testTime))
	if err != nil {
		t.Fatalf("ingest failure: %v", err)
	}
	if result.Transition != TransitionExtended {
		t.Errorf("transition mismatch: got %s, want %s", result.Transition, TransitionExtended)
	}
	if result.Episode.ID != newer.ID {
		t.Errorf("updated episode %d, want most recent %d", result.Episode.ID, newer.ID)
	}
	if older.FailureCount != 1 {
		t.Errorf("older episode touched: count %d, want 1", older.FailureCount)
	}

	// A success drains every open episode for the pair.
	result, err = eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, testTime.Add(time.Minute)))
	if err != nil {
		t.Fatalf("ingest success: %v", err)
	}
	if result.ResolvedCount != 2 {
		t.Errorf("resolved count mismatch: got %d, want 2", result.ResolvedCount)
	}
	if n := mock.openEpisodeCount("adam", "/mnt/a"); n != 0 {
		t.Errorf("open episode count: got %d, want 0", n)
	}
}

func TestIngestRejectsInvalidCheck(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	tests := []struct {
		name  string
		check *models.MountCheck
	}{
		{"unknown status", models.NewMountCheck("adam", "/mnt/a", "exploded", testTime)},
		{"empty workstation", models.NewMountCheck("", "/mnt/a", models.MountStatusMounted, testTime)},
		{"empty mount point", models.NewMountCheck("adam", "", models.MountStatusMounted, testTime)},
		{"zero timestamp", models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, time.Time{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.Ingest(ctx, tt.check); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	// Nothing was written.
	if len(mock.checks) != 0 {
		t.Errorf("checks written: got %d, want 0", len(mock.checks))
	}
	if len(mock.episodes) != 0 {
		t.Errorf("episodes written: got %d, want 0", len(mock.episodes))
	}
}

func TestIngestTouchesWorkstation(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, testTime)); err != nil {
		t.Fatalf("ingest success: %v", err)
	}

	state := mock.states["adam"]
	if state == nil {
		t.Fatal("workstation state not created")
	}
	if state.LastCheck == nil || !state.LastCheck.Equal(testTime) {
		t.Errorf("last check mismatch: got %v, want %v", state.LastCheck, testTime)
	}
	if state.LastSuccessfulCheck == nil || !state.LastSuccessfulCheck.Equal(testTime) {
		t.Errorf("last successful check mismatch: got %v, want %v", state.LastSuccessfulCheck, testTime)
	}

	later := testTime.Add(5 * time.Minute)
	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusUnreachable, later)); err != nil {
		t.Fatalf("ingest failure: %v", err)
	}

	if !state.LastCheck.Equal(later) {
		t.Errorf("last check not advanced: got %v, want %v", state.LastCheck, later)
	}
	if !state.LastSuccessfulCheck.Equal(testTime) {
		t.Errorf("last successful check moved on failure: got %v, want %v", state.LastSuccessfulCheck, testTime)
	}
}

func TestIngestStoreFailure(t *testing.T) {
	mock := newMockStore()
	mock.appendErr = errors.New("disk full")
	eng := testEngine(mock)

	_, err := eng.Ingest(context.Background(), models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, testTime))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, mock.appendErr) {
		t.Errorf("error chain lost: %v", err)
	}
}

func TestRecordSoftwareCheck(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	check := models.NewSoftwareCheck("adam", "houdini", "/mnt/apps", true, testTime)
	if err := eng.RecordSoftwareCheck(ctx, check); err != nil {
		t.Fatalf("record software check: %v", err)
	}
	if len(mock.softwareChecks) != 1 {
		t.Errorf("software check count: got %d, want 1", len(mock.softwareChecks))
	}

	bad := models.NewSoftwareCheck("adam", "", "/mnt/apps", true, testTime)
	if err := eng.RecordSoftwareCheck(ctx, bad); err == nil {
		t.Error("expected a validation error")
	}
}

func TestRecordWorkstationStatus(t *testing.T) {
	mock := newMockStore()
	eng := testEngine(mock)
	ctx := context.Background()

	state := models.NewWorkstationState("adam")
	state.IsOnline = true
	state.SetUsers(2, []string{"alice", "bob"})

	if err := eng.RecordWorkstationStatus(ctx, state); err != nil {
		t.Fatalf("record status: %v", err)
	}
	if mock.states["adam"] == nil {
		t.Fatal("state not stored")
	}

	if err := eng.RecordWorkstationStatus(ctx, models.NewWorkstationState("")); err == nil {
		t.Error("expected a validation error")
	}
}

// TestEngineWithSQLiteStore runs the lifecycle against a real database to
// cover the adapter and the store's ordering guarantees.
func TestEngineWithSQLiteStore(t *testing.T) {
	logger := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	s, err := store.New(t.TempDir()+"/mountwarden.db", logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	eng := NewWithStore(s, logger)
	ctx := context.Background()

	times := []time.Time{
		testTime,
		testTime.Add(5 * time.Minute),
		testTime.Add(10 * time.Minute),
	}

	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusNotMounted, times[0])); err != nil {
		t.Fatalf("ingest t0: %v", err)
	}
	if _, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusFailed, times[1])); err != nil {
		t.Fatalf("ingest t1: %v", err)
	}

	open, err := s.UnresolvedEpisodes(ctx)
	if err != nil {
		t.Fatalf("unresolved episodes: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open episode count: got %d, want 1", len(open))
	}
	if open[0].FailureCount != 2 {
		t.Errorf("failure count mismatch: got %d, want 2", open[0].FailureCount)
	}

	result, err := eng.Ingest(ctx, models.NewMountCheck("adam", "/mnt/a", models.MountStatusMounted, times[2]))
	if err != nil {
		t.Fatalf("ingest t2: %v", err)
	}
	if result.Transition != TransitionResolved {
		t.Errorf("transition mismatch: got %s, want %s", result.Transition, TransitionResolved)
	}

	open, err = s.UnresolvedEpisodes(ctx)
	if err != nil {
		t.Fatalf("unresolved episodes: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open episode count after resolve: got %d, want 0", len(open))
	}

	state, err := s.WorkstationState(ctx, "adam")
	if err != nil {
		t.Fatalf("workstation state: %v", err)
	}
	if state.LastCheck == nil || !state.LastCheck.Equal(times[2]) {
		t.Errorf("last check mismatch: got %v, want %v", state.LastCheck, times[2])
	}
	if state.LastSuccessfulCheck == nil || !state.LastSuccessfulCheck.Equal(times[2]) {
		t.Errorf("last successful check mismatch: got %v, want %v", state.LastSuccessfulCheck, times[2])
	}
}
