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

type mockStatsStore struct {
	reliability []*models.ReliabilityRow
	software    []*models.SoftwareSummaryRow
	info        *models.DBInfo
	err         error
	gotDays     int
}

func (m *mockStatsStore) Reliability(_ context.Context, days int, _ time.Time) ([]*models.ReliabilityRow, error) {
	m.gotDays = days
	if m.err != nil {
		return nil, m.err
	}
	return m.reliability, nil
}

func (m *mockStatsStore) SoftwareSummary(_ context.Context, days int, _ time.Time) ([]*models.SoftwareSummaryRow, error) {
	m.gotDays = days
	if m.err != nil {
		return nil, m.err
	}
	return m.software, nil
}

func (m *mockStatsStore) DBInfo(_ context.Context) (*models.DBInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.info, nil
}

func setupStatsTestRouter(s StatsStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewStatsHandler(s, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func TestReliability(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &mockStatsStore{reliability: []*models.ReliabilityRow{
			{Workstation: "edit-bay-03", TotalChecks: 100, SuccessfulChecks: 80, SuccessRate: 80.0},
			{Workstation: "edit-bay-01", TotalChecks: 100, SuccessfulChecks: 99, SuccessRate: 99.0},
		}}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/reliability", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Reliability []*models.ReliabilityRow `json:"reliability"`
			Count       int                      `json:"count"`
			WindowDays  int                      `json:"window_days"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.Count != 2 {
			t.Fatalf("expected count 2, got %d", resp.Count)
		}
		if resp.WindowDays != 7 {
			t.Fatalf("expected default window of 7 days, got %d", resp.WindowDays)
		}
	})

	t.Run("custom window", func(t *testing.T) {
		s := &mockStatsStore{}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/reliability?days=30", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s.gotDays != 30 {
			t.Fatalf("expected 30 day window, got %d", s.gotDays)
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockStatsStore{err: errors.New("db locked")}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/reliability", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}

func TestSoftwareSummary(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &mockStatsStore{software: []*models.SoftwareSummaryRow{
			{Workstation: "color-01", SoftwareName: "Resolve", MountPoint: "/Volumes/SAN", TotalChecks: 50, AccessibleChecks: 50},
		}}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/software", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Software   []*models.SoftwareSummaryRow `json:"software"`
			Count      int                          `json:"count"`
			WindowDays int                          `json:"window_days"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.Count != 1 {
			t.Fatalf("expected count 1, got %d", resp.Count)
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockStatsStore{err: errors.New("db locked")}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/software", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}

func TestDBStats(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &mockStatsStore{info: &models.DBInfo{
			Path:        "/var/lib/mountwarden/mountwarden.db",
			SizeBytes:   4096,
			TableCounts: map[string]int64{"mount_checks": 1200},
		}}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp models.DBInfo
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.TableCounts["mount_checks"] != 1200 {
			t.Fatalf("expected 1200 mount_checks, got %d", resp.TableCounts["mount_checks"])
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockStatsStore{err: errors.New("db locked")}
		r := setupStatsTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/stats", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}
