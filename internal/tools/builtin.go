package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/argus-vision/argus/internal/actions"
	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/search"
	"github.com/argus-vision/argus/models"
)

// Deps carries everything the built-in tools touch. Optional providers may
// be nil; the corresponding tool then reports a handled failure.
type Deps struct {
	Store       *resource.Store
	Caller      actions.Caller
	Emailer     actions.Emailer
	Texter      actions.Texter
	Webhook     *actions.WebhookClient
	Transcripts *search.TranscriptIndex
}

// RegisterBuiltin declares the standard tool set on r.
func RegisterBuiltin(r *Registry, deps Deps) {
	r.Register(Tool{
		Name:        "trigger_workflow",
		Description: "Start (or resume) an automation workflow by id.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"workflowId": map[string]interface{}{"type": "string"},
				"input":      map[string]interface{}{"type": "object"},
			},
			"required": []string{"workflowId"},
		},
		Handler: deps.triggerWorkflow,
	})
	r.Register(Tool{
		Name:        "send_notification",
		Description: "Send a notification to the dashboard and optional external channels (email, sms, webhook).",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"title":    map[string]interface{}{"type": "string"},
				"message":  map[string]interface{}{"type": "string"},
				"severity": map[string]interface{}{"type": "string", "enum": []string{"low", "medium", "high"}},
				"channels": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"metadata": map[string]interface{}{"type": "object"},
			},
			"required": []string{"title", "message"},
		},
		Handler: deps.sendNotification,
	})
	r.Register(Tool{
		Name:        "call_webhook",
		Description: "Call an external webhook with an arbitrary method, headers and JSON body.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url":     map[string]interface{}{"type": "string"},
				"method":  map[string]interface{}{"type": "string"},
				"headers": map[string]interface{}{"type": "object"},
				"body":    map[string]interface{}{"type": "object"},
			},
			"required": []string{"url"},
		},
		Handler: deps.callWebhook,
	})
	r.Register(Tool{
		Name:        "mutate_graph",
		Description: "Mutate a workflow graph: add, update or remove nodes and edges.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"workflowId": map[string]interface{}{"type": "string"},
				"operation": map[string]interface{}{
					"type": "string",
					"enum": []string{"add_node", "remove_node", "update_node", "add_edge", "remove_edge", "update_edge"},
				},
				"nodeId": map[string]interface{}{"type": "string"},
				"node":   map[string]interface{}{"type": "object"},
				"edgeId": map[string]interface{}{"type": "string"},
				"edge":   map[string]interface{}{"type": "object"},
			},
			"required": []string{"workflowId", "operation"},
		},
		Handler: deps.mutateGraph,
	})
	r.Register(Tool{
		Name:        "call_phone",
		Description: "Place an outbound phone call via the configured voice provider.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"to":          map[string]interface{}{"type": "string"},
				"message":     map[string]interface{}{"type": "string"},
				"assistantId": map[string]interface{}{"type": "string"},
				"provider":    map[string]interface{}{"type": "string"},
			},
			"required": []string{"to"},
		},
		Handler: deps.callPhone,
	})
	r.Register(Tool{
		Name:        "search_transcripts",
		Description: "Full-text search over recent audio transcripts.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{"type": "string"},
				"limit": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 50},
			},
			"required": []string{"query"},
		},
		Handler: deps.searchTranscripts,
	})
}

func (d Deps) triggerWorkflow(ctx context.Context, args map[string]interface{}) (Result, error) {
	workflowID := str(args["workflowId"])
	if workflowID == "" {
		return Result{}, errors.New("workflowId is empty")
	}
	w, ok := d.Store.GetWorkflow(workflowID)
	if !ok {
		return Result{}, fmt.Errorf("workflow %s not found", workflowID)
	}
	started := time.Now().UTC()
	if _, err := d.Store.SetWorkflowStatus(workflowID, models.WorkflowRunning); err != nil {
		return Result{}, fmt.Errorf("start workflow %s: %w", workflowID, err)
	}
	d.Store.AddTrace(models.NodeExecutionTrace{
		WorkflowID: workflowID,
		NodeID:     "trigger",
		NodeType:   "trigger_workflow",
		Status:     models.TraceFinished,
		Input:      asMap(args["input"]),
		DurationMS: time.Since(started).Milliseconds(),
	})
	return TextResult("workflow %q (%s) triggered", w.Name, workflowID), nil
}

func (d Deps) sendNotification(ctx context.Context, args map[string]interface{}) (Result, error) {
	title := str(args["title"])
	message := str(args["message"])
	severity := models.Severity(str(args["severity"]))
	if !models.ValidSeverity(severity) {
		severity = models.SeverityMedium
	}
	channels := asStrSlice(args["channels"])
	if len(channels) == 0 {
		channels = []string{"dashboard"}
	}
	metadata := asMap(args["metadata"])

	var delivered []string
	for _, ch := range channels {
		switch ch {
		case "dashboard":
			// Dashboard delivery is an alert resource; connected push
			// sessions receive it immediately.
			d.Store.AddDetection(models.Detection{
				FeedID:      str(metadata["feedId"]),
				FeedName:    "system",
				Type:        models.DetectionAlert,
				Severity:    severity,
				Description: title + ": " + message,
			})
			delivered = append(delivered, ch)
		case "email":
			if d.Emailer == nil {
				return Result{}, errors.New("email channel not configured")
			}
			if _, err := d.Emailer.Send(ctx, str(metadata["to"]), title, message); err != nil {
				return Result{}, fmt.Errorf("email notification: %w", err)
			}
			delivered = append(delivered, ch)
		case "sms", "text":
			if d.Texter == nil {
				return Result{}, errors.New("sms channel not configured")
			}
			if _, err := d.Texter.SendSMS(ctx, str(metadata["to"]), title+": "+message); err != nil {
				return Result{}, fmt.Errorf("sms notification: %w", err)
			}
			delivered = append(delivered, ch)
		case "webhook":
			if d.Webhook == nil {
				return Result{}, errors.New("webhook channel not configured")
			}
			status, _, err := d.Webhook.Do(ctx, str(metadata["url"]), "POST", nil, map[string]interface{}{
				"title": title, "message": message, "severity": severity,
			})
			if err != nil {
				return Result{}, fmt.Errorf("webhook notification: %w", err)
			}
			if status >= 400 {
				return Result{}, fmt.Errorf("webhook notification rejected with status %d", status)
			}
			delivered = append(delivered, ch)
		default:
			return Result{}, fmt.Errorf("unknown notification channel %q", ch)
		}
	}
	return TextResult("notification %q delivered to %v", title, delivered), nil
}

func (d Deps) callWebhook(ctx context.Context, args map[string]interface{}) (Result, error) {
	if d.Webhook == nil {
		return Result{}, errors.New("webhook client not configured")
	}
	target := str(args["url"])
	if target == "" {
		return Result{}, errors.New("url is empty")
	}
	headers := map[string]string{}
	for k, v := range asMap(args["headers"]) {
		headers[k] = str(v)
	}
	status, body, err := d.Webhook.Do(ctx, target, str(args["method"]), headers, args["body"])
	if err != nil {
		return Result{}, err
	}
	if status >= 400 {
		return Result{}, fmt.Errorf("webhook returned status %d: %s", status, body)
	}
	return TextResult("webhook %s returned %d", target, status), nil
}

func (d Deps) mutateGraph(ctx context.Context, args map[string]interface{}) (Result, error) {
	workflowID := str(args["workflowId"])
	op := str(args["operation"])
	w, ok := d.Store.GetWorkflow(workflowID)
	if !ok {
		return Result{}, fmt.Errorf("workflow %s not found", workflowID)
	}
	if w.Config == nil {
		w.Config = map[string]interface{}{}
	}
	nodes := asSlice(w.Config["nodes"])
	edges := asSlice(w.Config["edges"])

	switch op {
	case "add_node":
		node := asMap(args["node"])
		if len(node) == 0 {
			return Result{}, errors.New("add_node requires a node object")
		}
		nodes = append(nodes, node)
	case "remove_node":
		nodeID := str(args["nodeId"])
		if nodeID == "" {
			return Result{}, errors.New("remove_node requires nodeId")
		}
		nodes = removeByID(nodes, nodeID)
		// Drop edges touching the removed node.
		kept := edges[:0]
		for _, e := range edges {
			m := asMap(e)
			if str(m["from"]) == nodeID || str(m["to"]) == nodeID {
				continue
			}
			kept = append(kept, e)
		}
		edges = kept
	case "update_node":
		nodeID := str(args["nodeId"])
		patch := asMap(args["node"])
		if nodeID == "" || len(patch) == 0 {
			return Result{}, errors.New("update_node requires nodeId and node")
		}
		if !mergeByID(nodes, nodeID, patch) {
			return Result{}, fmt.Errorf("node %s not found in workflow %s", nodeID, workflowID)
		}
	case "add_edge":
		edge := asMap(args["edge"])
		if len(edge) == 0 {
			return Result{}, errors.New("add_edge requires an edge object")
		}
		edges = append(edges, edge)
	case "remove_edge":
		edgeID := str(args["edgeId"])
		if edgeID == "" {
			return Result{}, errors.New("remove_edge requires edgeId")
		}
		edges = removeByID(edges, edgeID)
	case "update_edge":
		edgeID := str(args["edgeId"])
		patch := asMap(args["edge"])
		if edgeID == "" || len(patch) == 0 {
			return Result{}, errors.New("update_edge requires edgeId and edge")
		}
		if !mergeByID(edges, edgeID, patch) {
			return Result{}, fmt.Errorf("edge %s not found in workflow %s", edgeID, workflowID)
		}
	default:
		return Result{}, fmt.Errorf("unknown graph operation %q", op)
	}

	w.Config["nodes"] = nodes
	w.Config["edges"] = edges
	w.NodeCount = len(nodes)
	w.LastEventAt = time.Now().UTC()
	d.Store.AddWorkflow(w)
	d.Store.AddTrace(models.NodeExecutionTrace{
		WorkflowID: workflowID,
		NodeID:     str(args["nodeId"]),
		NodeType:   "mutate_graph",
		Status:     models.TraceFinished,
		Input:      map[string]interface{}{"operation": op},
	})
	return TextResult("workflow %s: %s applied (%d nodes, %d edges)", workflowID, op, len(nodes), len(edges)), nil
}

func (d Deps) callPhone(ctx context.Context, args map[string]interface{}) (Result, error) {
	if d.Caller == nil {
		return Result{}, errors.New("telephony provider not configured")
	}
	to := str(args["to"])
	if to == "" {
		return Result{}, errors.New("to is empty")
	}
	callID, err := d.Caller.Call(ctx, to, str(args["message"]), str(args["assistantId"]))
	if err != nil {
		return Result{}, fmt.Errorf("place call to %s: %w", to, err)
	}
	return TextResult("call to %s placed (id %s)", to, callID), nil
}

func (d Deps) searchTranscripts(ctx context.Context, args map[string]interface{}) (Result, error) {
	if d.Transcripts == nil {
		return Result{}, errors.New("transcript search not available")
	}
	query := str(args["query"])
	if query == "" {
		return Result{}, errors.New("query is empty")
	}
	limit := asInt(args["limit"])
	if limit == 0 {
		limit = 10
	}
	limit = clampInt(limit, 1, 50)
	hits, err := d.Transcripts.Search(query, limit)
	if err != nil {
		return Result{}, err
	}
	if len(hits) == 0 {
		return TextResult("no transcripts matched %q", query), nil
	}
	return Result{Content: []Content{
		{Type: "text", Text: fmt.Sprintf("%d transcripts matched %q", len(hits), query)},
		{Type: "resource", Resource: hits},
	}}, nil
}

// ---------- argument helpers ----------

func str(v interface{}) string { s, _ := v.(string); return s }

func asInt(v interface{}) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case int:
		return x
	case json.Number:
		i, _ := x.Int64()
		return int(i)
	default:
		return 0
	}
}

func asMap(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

func asSlice(v interface{}) []interface{} {
	s, _ := v.([]interface{})
	return s
}

func asStrSlice(v interface{}) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func removeByID(list []interface{}, id string) []interface{} {
	kept := list[:0]
	for _, e := range list {
		if str(asMap(e)["id"]) == id {
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func mergeByID(list []interface{}, id string, patch map[string]interface{}) bool {
	for _, e := range list {
		m := asMap(e)
		if str(m["id"]) != id {
			continue
		}
		for k, v := range patch {
			if k == "id" {
				continue
			}
			m[k] = v
		}
		return true
	}
	return false
}
