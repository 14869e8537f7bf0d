// Package tools declares the invocable tool surface: named, schema-described
// actions with external side effects, dispatched by the protocol server and
// by the orchestration loop.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/argus-vision/argus/internal/telemetry"
)

// ErrUnknownTool is returned when a call names a tool that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// ArgumentError marks a caller mistake (missing required field); the
// dispatcher maps it to an invalid-params protocol error rather than an
// execution failure.
type ArgumentError struct {
	Tool  string
	Field string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("tool %s: missing required argument %q", e.Tool, e.Field)
}

// Content is one piece of a tool result.
type Content struct {
	Type     string      `json:"type"` // "text" or "resource"
	Text     string      `json:"text,omitempty"`
	Resource interface{} `json:"resource,omitempty"`
}

// Result is what a tool execution returns. IsError marks a handled business
// failure (provider rejected the action); the protocol call itself still
// succeeds.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult builds a single-text success result.
func TextResult(format string, args ...interface{}) Result {
	return Result{Content: []Content{{Type: "text", Text: fmt.Sprintf(format, args...)}}}
}

// ErrorResult wraps a handled failure so it travels inside a successful
// protocol envelope.
func ErrorResult(err error) Result {
	return Result{Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true}
}

// Handler executes one tool call.
type Handler func(ctx context.Context, args map[string]interface{}) (Result, error)

// Tool couples a descriptor with its handler.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
	Handler     Handler                `json:"-"`
}

// Registry holds the declared tools in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	tools   map[string]Tool
	metrics *telemetry.Metrics
	logger  *log.Logger
}

// NewRegistry creates an empty registry. metrics may be nil in tests.
func NewRegistry(metrics *telemetry.Metrics) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		metrics: metrics,
		logger:  log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
	}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// List returns the advertised descriptors in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		t.Handler = nil
		out = append(out, t)
	}
	return out
}

// Call validates the tool name and required arguments, then executes the
// handler. Handler errors become IsError results; validation failures return
// Go errors for the dispatcher to translate.
func (r *Registry) Call(ctx context.Context, name string, args map[string]interface{}) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		r.count(name, "unknown")
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	for _, field := range requiredFields(t.InputSchema) {
		if _, present := args[field]; !present {
			r.count(name, "invalid_args")
			return Result{}, &ArgumentError{Tool: name, Field: field}
		}
	}
	res, err := t.Handler(ctx, args)
	if err != nil {
		// Handled failure: surface inside the result envelope.
		r.count(name, "error")
		r.logger.Printf("tool %s failed: %v", name, err)
		return ErrorResult(err), nil
	}
	if res.IsError {
		r.count(name, "error")
	} else {
		r.count(name, "ok")
	}
	return res, nil
}

func (r *Registry) count(tool, outcome string) {
	if r.metrics != nil {
		r.metrics.ToolCalls.WithLabelValues(tool, outcome).Inc()
	}
}

// requiredFields tolerates both []string and decoded-JSON []interface{}.
func requiredFields(schema map[string]interface{}) []string {
	if schema == nil {
		return nil
	}
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, v := range req {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
