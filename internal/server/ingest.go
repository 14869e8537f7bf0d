package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"

	"github.com/argus-vision/argus/models"
)

var ingestTracer = otel.Tracer("argus/server/ingest")

// ingestRequest is the tagged union accepted by the ingestion endpoint.
type ingestRequest struct {
	Type models.ResourceType `json:"type"`
	Data json.RawMessage     `json:"data"`
}

// handleIngest accepts one resource of any kind. Validation is all-or-nothing:
// a rejected payload leaves the store untouched and no event is emitted.
func (s *Server) handleIngest(c echo.Context) error {
	_, span := ingestTracer.Start(c.Request().Context(), "Server.handleIngest")
	defer span.End()

	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		s.countIngest("unknown", "rejected")
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.Type == "" {
		s.countIngest("unknown", "rejected")
		return echo.NewHTTPError(http.StatusBadRequest, "type is required")
	}
	if len(req.Data) == 0 {
		s.countIngest(string(req.Type), "rejected")
		return echo.NewHTTPError(http.StatusBadRequest, "data is required")
	}

	stored, err := s.ingestOne(req.Type, req.Data)
	if err != nil {
		s.countIngest(string(req.Type), "rejected")
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s.countIngest(string(req.Type), "accepted")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%s ingested", req.Type),
		"stored":  stored,
	})
}

// ingestOne decodes and stores one resource, returning the stored copy with
// its assigned id and timestamp.
func (s *Server) ingestOne(kind models.ResourceType, data json.RawMessage) (interface{}, error) {
	switch kind {
	case models.TypeDetection:
		var d models.Detection
		if err := strictDecode(data, &d); err != nil {
			return nil, err
		}
		if d.FeedID == "" {
			return nil, fmt.Errorf("detection requires feedId")
		}
		if !models.ValidDetectionType(d.Type) {
			return nil, fmt.Errorf("unknown detection type %q", d.Type)
		}
		if d.Severity == "" {
			d.Severity = models.SeverityLow
		}
		if !models.ValidSeverity(d.Severity) {
			return nil, fmt.Errorf("unknown severity %q", d.Severity)
		}
		return s.store.AddDetection(d), nil
	case models.TypeIdentityMatch:
		var m models.IdentityMatch
		if err := strictDecode(data, &m); err != nil {
			return nil, err
		}
		if m.FeedID == "" {
			return nil, fmt.Errorf("identity match requires feedId")
		}
		return s.store.AddIdentityMatch(m), nil
	case models.TypeTranscript:
		var t models.AudioTranscript
		if err := strictDecode(data, &t); err != nil {
			return nil, err
		}
		if t.FeedID == "" {
			return nil, fmt.Errorf("transcript requires feedId")
		}
		return s.store.AddTranscript(t), nil
	case models.TypeSummary:
		var v models.VideoSummary
		if err := strictDecode(data, &v); err != nil {
			return nil, err
		}
		if v.FeedID == "" {
			return nil, fmt.Errorf("summary requires feedId")
		}
		return s.store.AddSummary(v), nil
	case models.TypeWorkflow:
		var w models.ActiveWorkflow
		if err := strictDecode(data, &w); err != nil {
			return nil, err
		}
		if w.Name == "" {
			return nil, fmt.Errorf("workflow requires name")
		}
		return s.store.AddWorkflow(w), nil
	case models.TypeTrace:
		var t models.NodeExecutionTrace
		if err := strictDecode(data, &t); err != nil {
			return nil, err
		}
		if t.WorkflowID == "" || t.NodeID == "" {
			return nil, fmt.Errorf("trace requires workflowId and nodeId")
		}
		return s.store.AddTrace(t), nil
	default:
		return nil, fmt.Errorf("unknown resource type %q", kind)
	}
}

// strictDecode rejects unknown fields so typos fail loudly instead of
// silently dropping data.
func strictDecode(data json.RawMessage, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}

func (s *Server) countIngest(kind, outcome string) {
	if s.metrics != nil {
		s.metrics.IngestedResources.WithLabelValues(kind, outcome).Inc()
	}
}
