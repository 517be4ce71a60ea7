package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/mountwarden/mountwarden/internal/models"
)

type mockFailureStore struct {
	failures    []*models.RecentFailureRow
	episodes    []*models.FailureEpisode
	failuresErr error
	episodesErr error
	gotHours    int
}

func (m *mockFailureStore) RecentFailures(_ context.Context, hours int, _ time.Time) ([]*models.RecentFailureRow, error) {
	m.gotHours = hours
	if m.failuresErr != nil {
		return nil, m.failuresErr
	}
	return m.failures, nil
}

func (m *mockFailureStore) UnresolvedEpisodes(_ context.Context) ([]*models.FailureEpisode, error) {
	if m.episodesErr != nil {
		return nil, m.episodesErr
	}
	return m.episodes, nil
}

func setupFailuresTestRouter(s FailureStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewFailuresHandler(s, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func TestRecentFailures(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &mockFailureStore{failures: []*models.RecentFailureRow{
			{Workstation: "edit-bay-03", MountPoint: "/Volumes/SAN", Failures: 5},
		}}
		r := setupFailuresTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/failures", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Failures    []*models.RecentFailureRow `json:"failures"`
			Count       int                        `json:"count"`
			WindowHours int                        `json:"window_hours"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.Count != 1 {
			t.Fatalf("expected count 1, got %d", resp.Count)
		}
		if resp.WindowHours != 24 {
			t.Fatalf("expected default window of 24 hours, got %d", resp.WindowHours)
		}
	})

	t.Run("custom window", func(t *testing.T) {
		s := &mockFailureStore{}
		r := setupFailuresTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/failures?hours=168", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s.gotHours != 168 {
			t.Fatalf("expected 168 hour window, got %d", s.gotHours)
		}
	})

	t.Run("window above cap falls back to default", func(t *testing.T) {
		s := &mockFailureStore{}
		r := setupFailuresTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/failures?hours=9999", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s.gotHours != 24 {
			t.Fatalf("expected default window of 24 hours, got %d", s.gotHours)
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockFailureStore{failuresErr: errors.New("db locked")}
		r := setupFailuresTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/failures", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}

func TestUnresolvedFailures(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &mockFailureStore{episodes: []*models.FailureEpisode{
			{ID: 1, Workstation: "edit-bay-03", MountPoint: "/Volumes/SAN", FailureCount: 12},
			{ID: 2, Workstation: "color-01", MountPoint: "/Volumes/Archive", FailureCount: 2},
		}}
		r := setupFailuresTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/failures/unresolved", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Episodes []*models.FailureEpisode `json:"episodes"`
			Count    int                      `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.Count != 2 {
			t.Fatalf("expected count 2, got %d", resp.Count)
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockFailureStore{episodesErr: errors.New("db locked")}
		r := setupFailuresTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/failures/unresolved", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}
