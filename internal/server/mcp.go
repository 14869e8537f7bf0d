package server

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
)

var mcpTracer = otel.Tracer("argus/server/mcp")

// maxProtocolBody bounds one JSON-RPC request.
const maxProtocolBody = 1 << 20

// handleProtocol relays one JSON-RPC message to the dispatcher. The HTTP
// status is always 200; errors travel inside the JSON-RPC envelope.
func (s *Server) handleProtocol(c echo.Context) error {
	ctx, span := mcpTracer.Start(c.Request().Context(), "Server.handleProtocol")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxProtocolBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	resp := s.protocol.HandleMessage(ctx, body)
	return c.JSONBlob(http.StatusOK, resp)
}

// handleProtocolIdentity serves the plain-JSON identity document.
func (s *Server) handleProtocolIdentity(c echo.Context) error {
	return c.JSON(http.StatusOK, s.protocol.Identity())
}
