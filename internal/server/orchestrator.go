package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type orchestratorRequest struct {
	Action   string `json:"action"`
	APIKey   string `json:"apiKey,omitempty"`
	Interval string `json:"interval,omitempty"`
	CronSpec string `json:"cronSpec,omitempty"`
}

// handleOrchestrator is the single control surface for the loop: one POST
// with action start|stop|trigger|status. Start requires an API key from the
// request or configuration, since every pass spends model tokens.
func (s *Server) handleOrchestrator(c echo.Context) error {
	var req orchestratorRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	switch req.Action {
	case "start":
		if req.APIKey == "" && s.cfg.Orchestrator.APIKey == "" && s.cfg.LLM.APIKey == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "api key required to start the orchestrator")
		}
		interval := s.cfg.Orchestrator.DefaultInterval
		if req.Interval != "" {
			d, err := time.ParseDuration(req.Interval)
			if err != nil || d <= 0 {
				return echo.NewHTTPError(http.StatusBadRequest, "interval must be a positive duration")
			}
			interval = d
		}
		cronSpec := s.cfg.Orchestrator.CronSpec
		if req.CronSpec != "" {
			cronSpec = req.CronSpec
		}
		if err := s.orch.Start(interval, cronSpec); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	case "stop":
		s.orch.Stop()
	case "trigger":
		s.orch.Trigger(c.Request().Context())
	case "status":
		// Fall through to the status response.
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be one of start, stop, trigger, status")
	}
	return c.JSON(http.StatusOK, s.orch.Status())
}

// handleOrchestratorStatus serves the same snapshot on GET for dashboards.
func (s *Server) handleOrchestratorStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orch.Status())
}
