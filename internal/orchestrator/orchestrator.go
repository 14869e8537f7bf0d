// Package orchestrator runs the periodic decide-and-act loop: snapshot the
// automation state, ask the model which tools to invoke, and execute the
// returned plan through the tool registry.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/telemetry"
	"github.com/argus-vision/argus/internal/tools"
	"github.com/argus-vision/argus/provider"
)

// plannedAction is one step of the model's plan.
type plannedAction struct {
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
	Reason    string                 `json:"reason,omitempty"`
}

type plan struct {
	Actions []plannedAction `json:"actions"`
}

// Status describes the loop for the status endpoint.
type Status struct {
	Running      bool      `json:"running"`
	Interval     string    `json:"interval,omitempty"`
	CronSpec     string    `json:"cronSpec,omitempty"`
	PassesTotal  int64     `json:"passesTotal"`
	LastPassAt   time.Time `json:"lastPassAt,omitempty"`
	LastOutcome  string    `json:"lastOutcome,omitempty"`
	ActionsTaken int64     `json:"actionsTaken"`
}

// Orchestrator drives autonomous passes over the store.
type Orchestrator struct {
	store       *resource.Store
	registry    *tools.Registry
	llm         provider.Provider
	metrics     *telemetry.Metrics
	passTimeout time.Duration
	logger      *log.Logger

	// transMu serializes start/stop transitions end to end, so two
	// concurrent Start calls can never each install a loop. mu guards the
	// fields below for cheap snapshot reads.
	transMu  sync.Mutex
	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
	cronSpec string

	inFlight     atomic.Bool
	passesTotal  atomic.Int64
	actionsTaken atomic.Int64

	statusMu    sync.Mutex
	lastPassAt  time.Time
	lastOutcome string
}

// New builds a stopped orchestrator. metrics may be nil in tests.
func New(store *resource.Store, registry *tools.Registry, llm provider.Provider, passTimeout time.Duration, metrics *telemetry.Metrics) *Orchestrator {
	if passTimeout <= 0 {
		passTimeout = 2 * time.Minute
	}
	return &Orchestrator{
		store:       store,
		registry:    registry,
		llm:         llm,
		metrics:     metrics,
		passTimeout: passTimeout,
		logger:      log.New(log.Writer(), "[ORCH] ", log.LstdFlags),
	}
}

// Start launches the loop at the given interval. An optional cron expression
// overrides the fixed interval. Starting a running orchestrator replaces its
// schedule: the old loop is torn down and a new one started.
func (o *Orchestrator) Start(interval time.Duration, cronSpec string) error {
	if cronSpec != "" {
		if _, err := cronexpr.Parse(cronSpec); err != nil {
			return fmt.Errorf("invalid cron spec %q: %w", cronSpec, err)
		}
	} else if interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	o.transMu.Lock()
	defer o.transMu.Unlock()

	o.mu.Lock()
	running := o.running
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()
	if running {
		cancel()
		<-done
	}

	ctx, loopCancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	o.mu.Lock()
	o.cancel = loopCancel
	o.done = loopDone
	o.running = true
	o.interval = interval
	o.cronSpec = cronSpec
	o.mu.Unlock()
	go o.loop(ctx, loopDone, interval, cronSpec)
	o.logger.Printf("started (interval=%s cron=%q)", interval, cronSpec)
	return nil
}

// Stop halts the loop and waits for the in-flight pass, if any, to hand back.
// Stopping a stopped orchestrator is a no-op.
func (o *Orchestrator) Stop() {
	o.transMu.Lock()
	defer o.transMu.Unlock()

	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	cancel := o.cancel
	done := o.done
	o.mu.Unlock()

	cancel()
	<-done
	o.logger.Printf("stopped")
}

// Running reports whether the loop is active.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Status returns a snapshot for the status endpoint.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	running := o.running
	interval := o.interval
	cronSpec := o.cronSpec
	o.mu.Unlock()

	o.statusMu.Lock()
	lastAt := o.lastPassAt
	lastOutcome := o.lastOutcome
	o.statusMu.Unlock()

	st := Status{
		Running:      running,
		CronSpec:     cronSpec,
		PassesTotal:  o.passesTotal.Load(),
		LastPassAt:   lastAt,
		LastOutcome:  lastOutcome,
		ActionsTaken: o.actionsTaken.Load(),
	}
	if running && cronSpec == "" {
		st.Interval = interval.String()
	}
	return st
}

// loop closes the done channel it was created with, never the shared field,
// so a replaced loop cannot close its successor's channel.
func (o *Orchestrator) loop(ctx context.Context, done chan struct{}, interval time.Duration, cronSpec string) {
	defer close(done)

	next := func() <-chan time.Time {
		if cronSpec == "" {
			return time.After(interval)
		}
		expr := cronexpr.MustParse(cronSpec)
		return time.After(time.Until(expr.Next(time.Now())))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-next():
			o.Trigger(ctx)
		}
	}
}

// Trigger runs one pass immediately. When a pass is already in flight the
// call is skipped instead of queued, so slow model turns never pile up.
func (o *Orchestrator) Trigger(ctx context.Context) {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Printf("pass skipped: previous pass still in flight")
		o.countPass("skipped")
		return
	}
	defer o.inFlight.Store(false)

	ctx, cancel := context.WithTimeout(ctx, o.passTimeout)
	defer cancel()

	o.passesTotal.Add(1)
	outcome := o.pass(ctx)
	o.countPass(outcome)

	o.statusMu.Lock()
	o.lastPassAt = time.Now().UTC()
	o.lastOutcome = outcome
	o.statusMu.Unlock()
}

// pass executes one snapshot→decide→act cycle and names its outcome.
func (o *Orchestrator) pass(ctx context.Context) string {
	if o.llm == nil {
		return "no_model"
	}

	userPrompt, err := o.buildPrompt()
	if err != nil {
		o.logger.Printf("pass aborted: %v", err)
		return "error"
	}

	raw, err := o.llm.Generate(ctx, decisionSystemPrompt, userPrompt)
	if err != nil {
		o.logger.Printf("model call failed: %v", err)
		return "error"
	}

	p, err := parsePlan(raw)
	if err != nil {
		// A garbled plan is not fatal: log and wait for the next tick.
		o.logger.Printf("unparsable plan: %v", err)
		return "unparsable"
	}
	if len(p.Actions) == 0 {
		return "idle"
	}

	executed := 0
	for _, a := range p.Actions {
		if a.Tool == "" {
			continue
		}
		res, err := o.registry.Call(ctx, a.Tool, a.Arguments)
		if err != nil {
			o.logger.Printf("action %s rejected: %v", a.Tool, err)
			continue
		}
		if res.IsError {
			o.logger.Printf("action %s failed: %s", a.Tool, firstText(res))
			continue
		}
		executed++
		o.actionsTaken.Add(1)
	}
	if executed == 0 {
		return "no_actions"
	}
	return "acted"
}

const decisionSystemPrompt = `You are the automation brain of a video monitoring system. You receive a
snapshot of current detections, identity matches, transcripts, workflows and
integrations, plus a catalog of tools you may invoke.

Decide which tools, if any, to invoke right now. Prefer doing nothing over
acting on weak evidence.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "actions": [
    {"tool": "tool name", "arguments": {"key": "value"}, "reason": "one sentence"}
  ]
}
Return {"actions": []} when no action is warranted. Do not include any other text.`

// buildPrompt renders the state snapshot and tool catalog for the model.
func (o *Orchestrator) buildPrompt() (string, error) {
	snapshot := map[string]interface{}{
		"counts":          o.store.Counts(),
		"detections":      tail(o.store.ListDetections(), 20),
		"identityMatches": tail(o.store.ListIdentityMatches(), 10),
		"transcripts":     tail(o.store.ListTranscripts(), 10),
		"workflows":       o.store.ListWorkflows(),
		"integrations":    o.store.ListIntegrations(),
	}
	state, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	catalog := make([]map[string]interface{}, 0)
	for _, t := range o.registry.List() {
		catalog = append(catalog, map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"inputSchema": t.InputSchema,
		})
	}
	toolsJSON, err := json.Marshal(catalog)
	if err != nil {
		return "", fmt.Errorf("marshal tool catalog: %w", err)
	}

	var b strings.Builder
	b.WriteString("CURRENT STATE:\n")
	b.Write(state)
	b.WriteString("\n\nAVAILABLE TOOLS:\n")
	b.Write(toolsJSON)
	b.WriteString("\n\nWhat actions should be taken now?")
	return b.String(), nil
}

// parsePlan decodes the model output, tolerating surrounding prose or fences.
func parsePlan(raw string) (plan, error) {
	var p plan
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return p, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &p); err != nil {
		return p, fmt.Errorf("decode plan: %w", err)
	}
	return p, nil
}

func (o *Orchestrator) countPass(outcome string) {
	if o.metrics != nil {
		o.metrics.OrchestratorPasses.WithLabelValues(outcome).Inc()
	}
}

func firstText(res tools.Result) string {
	if len(res.Content) > 0 {
		return res.Content[0].Text
	}
	return ""
}

// tail keeps the newest n entries of an insertion-ordered slice.
func tail[T any](in []T, n int) []T {
	if len(in) <= n {
		return in
	}
	return in[len(in)-n:]
}
