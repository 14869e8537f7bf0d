package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the automation core's prometheus collectors.
type Metrics struct {
	EventsBroadcast    *prometheus.CounterVec
	IngestedResources  *prometheus.CounterVec
	ToolCalls          *prometheus.CounterVec
	OrchestratorPasses *prometheus.CounterVec
	PushSessions       prometheus.Gauge
	HeartbeatsSent     prometheus.Counter
}

// NewMetrics registers all collectors on reg. Pass prometheus.DefaultRegisterer
// in production; tests use a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_events_broadcast_total",
			Help: "Store events fanned out to push sessions, by resource kind.",
		}, []string{"kind"}),
		IngestedResources: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_ingested_resources_total",
			Help: "Resources accepted or rejected at the ingestion surface.",
		}, []string{"type", "outcome"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_tool_calls_total",
			Help: "Tool registry invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		OrchestratorPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_orchestrator_passes_total",
			Help: "Orchestration passes by outcome (completed, skipped, failed).",
		}, []string{"outcome"}),
		PushSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "argus_push_sessions",
			Help: "Currently connected push (SSE) sessions.",
		}),
		HeartbeatsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "argus_heartbeats_sent_total",
			Help: "Heartbeat envelopes written to push sessions.",
		}),
	}
}
