package models

import (
	"errors"
	"time"
)

// ErrResourceNotFound is returned when a resource id is not present in a collection.
var ErrResourceNotFound = errors.New("resource not found")

// ResourceType tags every event emitted by the resource store.
type ResourceType string

const (
	TypeDetection     ResourceType = "detection"
	TypeIdentityMatch ResourceType = "identity_match"
	TypeTranscript    ResourceType = "transcript"
	TypeSummary       ResourceType = "summary"
	TypeWorkflow      ResourceType = "workflow"
	TypeTrace         ResourceType = "trace"
	TypeIntegration   ResourceType = "integration"
)

// Event is what subscribers receive for every store mutation.
type Event struct {
	Type ResourceType `json:"type"`
	Data interface{}  `json:"data"`
}

// BoundingBox is a normalized rectangle within a video frame.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type DetectionType string

const (
	DetectionPerson  DetectionType = "person"
	DetectionVehicle DetectionType = "vehicle"
	DetectionMotion  DetectionType = "motion"
	DetectionObject  DetectionType = "object"
	DetectionAlert   DetectionType = "alert"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Detection is one observation from a feed's detection pipeline. Labels,
// confidences and boxes are parallel best-effort arrays; the store does not
// require equal lengths.
type Detection struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	FeedID        string        `json:"feedId"`
	FeedName      string        `json:"feedName,omitempty"`
	Type          DetectionType `json:"type"`
	BoundingBoxes []BoundingBox `json:"boundingBoxes,omitempty"`
	Labels        []string      `json:"labels,omitempty"`
	Confidences   []float64     `json:"confidences,omitempty"`
	Description   string        `json:"description,omitempty"`
	Severity      Severity      `json:"severity"`
}

// IdentityMatch links a detected person to a known identity. An empty
// MatchedIdentityID means the match is unresolved; it is still retained.
type IdentityMatch struct {
	ID                string      `json:"id"`
	Timestamp         time.Time   `json:"timestamp"`
	FeedID            string      `json:"feedId"`
	DetectedPersonID  string      `json:"detectedPersonId"`
	MatchedIdentityID string      `json:"matchedIdentityId,omitempty"`
	Confidence        float64     `json:"confidence"`
	BoundingBox       BoundingBox `json:"boundingBox"`
}

// AudioTranscript is a transcribed audio segment. Start/end are seconds into
// the feed; the store accepts inverted ranges rather than dropping data.
type AudioTranscript struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	FeedID     string    `json:"feedId"`
	StartTime  float64   `json:"startTime"`
	EndTime    float64   `json:"endTime"`
	Transcript string    `json:"transcript"`
	Confidence float64   `json:"confidence"`
	Language   string    `json:"language,omitempty"`
}

// SummaryPeriod bounds the window a video summary covers.
type SummaryPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// KeyMoment is a notable instant inside a summary period.
type KeyMoment struct {
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Importance  float64   `json:"importance,omitempty"`
}

// VideoSummary condenses a period of footage. Key moments are kept in
// timestamp order and are not deduplicated.
type VideoSummary struct {
	ID            string        `json:"id"`
	Timestamp     time.Time     `json:"timestamp"`
	FeedID        string        `json:"feedId"`
	SummaryPeriod SummaryPeriod `json:"summaryPeriod"`
	Summary       string        `json:"summary"`
	KeyMoments    []KeyMoment   `json:"keyMoments,omitempty"`
}

type WorkflowStatus string

const (
	WorkflowRunning WorkflowStatus = "running"
	WorkflowPaused  WorkflowStatus = "paused"
	WorkflowStopped WorkflowStatus = "stopped"
)

// ActiveWorkflow is an automation graph currently known to the system.
// Status is the only field the orchestrator mutates after creation.
type ActiveWorkflow struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Status      WorkflowStatus         `json:"status"`
	StartedAt   time.Time              `json:"startedAt"`
	LastEventAt time.Time              `json:"lastEventAt"`
	NodeCount   int                    `json:"nodeCount"`
	Config      map[string]interface{} `json:"config,omitempty"`
}

type TraceStatus string

const (
	TraceStarted  TraceStatus = "started"
	TraceFinished TraceStatus = "finished"
	TraceError    TraceStatus = "error"
)

// NodeExecutionTrace records one step of a workflow node execution. Traces
// for a single node form a sequence; no ordering is promised across nodes.
type NodeExecutionTrace struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	NodeID     string                 `json:"nodeId"`
	NodeType   string                 `json:"nodeType"`
	Timestamp  time.Time              `json:"timestamp"`
	Status     TraceStatus            `json:"status"`
	Input      map[string]interface{} `json:"input,omitempty"`
	Output     map[string]interface{} `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMS int64                  `json:"durationMs,omitempty"`
}

type IntegrationStatus string

const (
	IntegrationActive  IntegrationStatus = "active"
	IntegrationStandby IntegrationStatus = "standby"
	IntegrationError   IntegrationStatus = "error"
)

// Integration describes an external service wired into the dashboard. Config
// is opaque to the store; only the tool registry interprets it.
type Integration struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Icon        string                 `json:"icon,omitempty"`
	Description string                 `json:"description,omitempty"`
	Status      IntegrationStatus      `json:"status"`
	Config      map[string]interface{} `json:"config,omitempty"`
	ToolName    string                 `json:"toolName,omitempty"`
}

// ValidDetectionType reports whether t is one of the known detection types.
func ValidDetectionType(t DetectionType) bool {
	switch t {
	case DetectionPerson, DetectionVehicle, DetectionMotion, DetectionObject, DetectionAlert:
		return true
	}
	return false
}

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// ClampConfidence forces a confidence into [0,1]; producers are not trusted
// to stay in range.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
