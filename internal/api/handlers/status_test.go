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
	"github.com/mountwarden/mountwarden/internal/store"
)

type mockStatusStore struct {
	rows      []*models.CurrentMountStatus
	detail    *models.WorkstationDetail
	listErr   error
	detailErr error
	gotHours  int
}

func (m *mockStatusStore) CurrentStatus(_ context.Context) ([]*models.CurrentMountStatus, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.rows, nil
}

func (m *mockStatusStore) WorkstationDetail(_ context.Context, _ string, hours int, _ time.Time) (*models.WorkstationDetail, error) {
	m.gotHours = hours
	if m.detailErr != nil {
		return nil, m.detailErr
	}
	return m.detail, nil
}

func setupStatusTestRouter(s StatusStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewStatusHandler(s, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

func TestListStatus(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &mockStatusStore{rows: []*models.CurrentMountStatus{
			{Workstation: "edit-bay-01", MountPoint: "/Volumes/SAN", Status: "mounted"},
			{Workstation: "edit-bay-02", MountPoint: "/Volumes/SAN", Status: "failed"},
		}}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Mounts []*models.CurrentMountStatus `json:"mounts"`
			Count  int                          `json:"count"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.Count != 2 || len(resp.Mounts) != 2 {
			t.Fatalf("expected 2 mounts, got count=%d len=%d", resp.Count, len(resp.Mounts))
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockStatusStore{listErr: errors.New("db locked")}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}

func TestWorkstationDetail(t *testing.T) {
	detail := &models.WorkstationDetail{WindowHours: 24}

	t.Run("success", func(t *testing.T) {
		s := &mockStatusStore{detail: detail}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status/edit-bay-01", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp map[string]json.RawMessage
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if _, ok := resp["detail"]; !ok {
			t.Fatal("expected 'detail' key")
		}
		if s.gotHours != 24 {
			t.Fatalf("expected default window of 24 hours, got %d", s.gotHours)
		}
	})

	t.Run("custom window", func(t *testing.T) {
		s := &mockStatusStore{detail: detail}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status/edit-bay-01?hours=72", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s.gotHours != 72 {
			t.Fatalf("expected 72 hour window, got %d", s.gotHours)
		}
	})

	t.Run("invalid window falls back to default", func(t *testing.T) {
		s := &mockStatusStore{detail: detail}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status/edit-bay-01?hours=banana", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if s.gotHours != 24 {
			t.Fatalf("expected default window of 24 hours, got %d", s.gotHours)
		}
	})

	t.Run("unknown workstation", func(t *testing.T) {
		s := &mockStatusStore{detailErr: store.ErrNotFound}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status/no-such-host", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("store error", func(t *testing.T) {
		s := &mockStatusStore{detailErr: errors.New("db locked")}
		r := setupStatusTestRouter(s)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/status/edit-bay-01", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", w.Code)
		}
	})
}
