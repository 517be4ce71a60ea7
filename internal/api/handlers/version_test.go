package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestVersionEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewVersionHandler("1.2.3", "abc1234", "2026-08-01", zerolog.Nop())
	handler.RegisterPublicRoutes(r)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/version", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp VersionInfo
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", resp.Version)
	}
	if resp.Commit != "abc1234" || resp.BuildDate != "2026-08-01" {
		t.Fatalf("unexpected build info: %+v", resp)
	}
	if !strings.HasPrefix(resp.GoVersion, "go") {
		t.Fatalf("expected a go version, got %q", resp.GoVersion)
	}
}
