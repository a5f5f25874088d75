package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lei/hybrid-capture/internal/models"
	"github.com/lei/hybrid-capture/pkg/logger"
)

type stubGovernor struct{ report models.Report }

func (s stubGovernor) GenerateReport() models.Report { return s.report }

func TestHealthReturnsOK(t *testing.T) {
	handlers := NewHandlers(stubGovernor{}, nil)
	router := NewRouter(handlers, NewLoggingMiddleware(logger.New("error", "text")))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got == "" {
		t.Fatalf("expected a body, got empty response")
	}
}

type failingPinger struct{}

func (failingPinger) Ping() error { return errors.New("connection refused") }

func TestHealthReportsDegradedWhenStoreUnreachable(t *testing.T) {
	handlers := NewHandlers(stubGovernor{}, failingPinger{})
	router := NewRouter(handlers, NewLoggingMiddleware(logger.New("error", "text")))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStatusReturnsGovernorReport(t *testing.T) {
	report := models.Report{
		Summary:    "3 samples tracked, 1 alerts active",
		Efficiency: 2.5,
		Alerts:     []models.Alert{{Severity: models.SeverityWarning, Message: "low budget"}},
	}
	handlers := NewHandlers(stubGovernor{report: report}, nil)
	router := NewRouter(handlers, NewLoggingMiddleware(logger.New("error", "text")))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	handlers := NewHandlers(stubGovernor{}, nil)
	router := NewRouter(handlers, NewLoggingMiddleware(logger.New("error", "text")))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
