package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/argus-vision/argus/models"
)

type integrationsRequest struct {
	Action       string               `json:"action"`
	Integrations []models.Integration `json:"integrations,omitempty"`
}

// handleIntegrations is the dashboard sync surface: action "sync" replaces
// the full integration set, action "get" returns the current one. The
// dashboard is the source of truth; the store (and the optional Redis mirror)
// follow it.
func (s *Server) handleIntegrations(c echo.Context) error {
	var req integrationsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	switch req.Action {
	case "sync":
		for _, in := range req.Integrations {
			if in.Name == "" {
				return echo.NewHTTPError(http.StatusBadRequest, "every integration requires a name")
			}
		}
		stored := s.store.ReplaceIntegrations(req.Integrations)
		return c.JSON(http.StatusOK, map[string]interface{}{"integrations": stored})
	case "get":
		return c.JSON(http.StatusOK, map[string]interface{}{"integrations": s.store.ListIntegrations()})
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "action must be sync or get")
	}
}

func (s *Server) handleListIntegrations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"integrations": s.store.ListIntegrations()})
}
