package health_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vladislavdragonenkov/shopcore/internal/health"
)

func TestHandler_Healthy(t *testing.T) {
	handler := health.NewHandler("test")
	handler.RegisterChecker("storage", health.NewSimpleChecker("storage", func() error { return nil }))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var response health.Response
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.Status != health.StatusHealthy {
		t.Fatalf("expected healthy, got %s", response.Status)
	}
	if response.Version != "test" {
		t.Fatalf("expected version test, got %s", response.Version)
	}
}

func TestHandler_Unhealthy(t *testing.T) {
	handler := health.NewHandler("test")
	handler.RegisterChecker("storage", health.NewSimpleChecker("storage", func() error {
		return errors.New("connection refused")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := health.NewHandler("test")

	w := httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected ready, got %d", w.Code)
	}

	handler.RegisterChecker("storage", health.NewSimpleChecker("storage", func() error {
		return errors.New("down")
	}))
	w = httptest.NewRecorder()
	handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
