package server

import (
	"context"
	"image"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/veil-sh/veil/internal/config"
	"github.com/veil-sh/veil/internal/detect"
	"github.com/veil-sh/veil/internal/logger"
	"github.com/veil-sh/veil/internal/pipeline"
	"github.com/veil-sh/veil/internal/preset"
)

type noopOCR struct{}

func (noopOCR) Recognize(ctx context.Context, page image.Image) ([]detect.OCRWord, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pl, err := pipeline.New(pipeline.Options{OCR: noopOCR{}}, logger.NewNop())
	if err != nil {
		t.Fatalf("pipeline construction failed: %v", err)
	}
	s, err := New(config.GetDefaults(), logger.NewNop(), pl, preset.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("server construction failed: %v", err)
	}
	return s
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t)

	status := s.systemStatus()
	if status.Status != "healthy" {
		t.Errorf("status = %s, want healthy", status.Status)
	}
	if status.Version != Version {
		t.Errorf("version = %s, want %s", status.Version, Version)
	}
	if status.UptimeSeconds < 0 {
		t.Errorf("uptime = %f", status.UptimeSeconds)
	}
	// History is disabled, so the aggregate totals stay zero
	if status.TotalFiles != 0 || status.TotalDetections != 0 {
		t.Errorf("totals = %d/%d, want 0/0", status.TotalFiles, status.TotalDetections)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/info", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"name":"veil"`) || !strings.Contains(body, Version) {
		t.Errorf("body = %s", body)
	}
}
