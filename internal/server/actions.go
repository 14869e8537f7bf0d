package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/argus-vision/argus/internal/tools"
)

var actionsTracer = otel.Tracer("argus/server/actions")

type actionRequest struct {
	Config struct {
		Option      string `json:"option"`
		Description string `json:"description"`
	} `json:"config"`
	APIKey string `json:"apiKey,omitempty"`
}

// handleAction executes one natural-language action node: the executor
// extracts parameters via the model and dispatches exactly one provider call.
func (s *Server) handleAction(c echo.Context) error {
	ctx, span := actionsTracer.Start(c.Request().Context(), "Server.handleAction")
	defer span.End()

	var req actionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	option := strings.TrimSpace(strings.ToLower(req.Config.Option))
	if !tools.ValidOption(option) {
		return echo.NewHTTPError(http.StatusBadRequest, "config.option must be one of call, email, text")
	}
	if strings.TrimSpace(req.Config.Description) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "config.description is required")
	}
	span.SetAttributes(attribute.String("option", option))

	res := s.executor.Execute(ctx, option, req.Config.Description)
	if !res.Success {
		// Handled failure: the request was well-formed but the action could
		// not be completed.
		return c.JSON(http.StatusInternalServerError, res)
	}
	return c.JSON(http.StatusOK, res)
}
