package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/argus-vision/argus/config"
	"github.com/argus-vision/argus/internal/orchestrator"
	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/tools"
)

func newOrchestratorServer(t *testing.T, apiKey string) *Server {
	t.Helper()
	store := resource.New(100)
	registry := tools.NewRegistry(nil)
	cfg := &config.Config{}
	cfg.LLM.APIKey = apiKey
	cfg.Orchestrator.DefaultInterval = time.Hour
	return &Server{
		cfg:    cfg,
		store:  store,
		orch:   orchestrator.New(store, registry, nil, time.Minute, nil),
		logger: testLogger(),
	}
}

func TestOrchestratorStartRequiresAPIKey(t *testing.T) {
	s := newOrchestratorServer(t, "")
	_, err := postJSON(t, s, s.handleOrchestrator, `{"action":"start"}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without api key, got %v", err)
	}
	if s.orch.Running() {
		t.Fatal("orchestrator started without a key")
	}
}

func TestOrchestratorRequestKeySuffices(t *testing.T) {
	s := newOrchestratorServer(t, "")
	defer s.orch.Stop()
	rec, err := postJSON(t, s, s.handleOrchestrator, `{"action":"start","apiKey":"sk-req","interval":"1h"}`)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	if !s.orch.Running() {
		t.Fatal("orchestrator not running with request-supplied key")
	}
}

func TestOrchestratorStartStopRoundTrip(t *testing.T) {
	s := newOrchestratorServer(t, "sk-test")
	defer s.orch.Stop()

	rec, err := postJSON(t, s, s.handleOrchestrator, `{"action":"start","interval":"1h"}`)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if !st.Running {
		t.Fatal("status not running after start")
	}

	// Starting again replaces the schedule and is not an error.
	if _, err := postJSON(t, s, s.handleOrchestrator, `{"action":"start"}`); err != nil {
		t.Fatalf("second start: %v", err)
	}

	rec, err = postJSON(t, s, s.handleOrchestrator, `{"action":"stop"}`)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.Running {
		t.Fatal("status still running after stop")
	}
}

func TestOrchestratorRejectsBadInterval(t *testing.T) {
	s := newOrchestratorServer(t, "sk-test")
	_, err := postJSON(t, s, s.handleOrchestrator, `{"action":"start","interval":"soon"}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad interval, got %v", err)
	}
}

func TestOrchestratorRejectsUnknownAction(t *testing.T) {
	s := newOrchestratorServer(t, "sk-test")
	_, err := postJSON(t, s, s.handleOrchestrator, `{"action":"restart"}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %v", err)
	}
}

func TestOrchestratorTriggerWithoutModelIsSafe(t *testing.T) {
	s := newOrchestratorServer(t, "sk-test")
	rec, err := postJSON(t, s, s.handleOrchestrator, `{"action":"trigger"}`)
	if err != nil {
		t.Fatalf("trigger: %v", err)
	}
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.PassesTotal != 1 || st.LastOutcome != "no_model" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestOrchestratorStatusAction(t *testing.T) {
	s := newOrchestratorServer(t, "sk-test")
	rec, err := postJSON(t, s, s.handleOrchestrator, `{"action":"status"}`)
	if err != nil {
		t.Fatalf("status action: %v", err)
	}
	var st orchestrator.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if st.Running || st.PassesTotal != 0 {
		t.Fatalf("unexpected fresh status: %+v", st)
	}
}

func TestOrchestratorStatusEndpoint(t *testing.T) {
	s := newOrchestratorServer(t, "sk-test")
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/orchestrator/status", nil)
	rec := httptest.NewRecorder()
	if err := s.handleOrchestratorStatus(e.NewContext(req, rec)); err != nil {
		t.Fatalf("status: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
}
