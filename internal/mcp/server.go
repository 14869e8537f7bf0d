// Package mcp implements the JSON-RPC 2.0 dispatcher that exposes the
// resource store and the tool registry to protocol clients. The server is
// transport-independent: HandleMessage consumes one raw request and produces
// one raw response; the HTTP layer mounts it on a POST endpoint.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/tools"
	"github.com/argus-vision/argus/models"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// uriScheme prefixes every resource uri, e.g. argus://detections/d1.
const uriScheme = "argus://"

// ---------- JSON-RPC skeleton ----------

type rpcReq struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResp struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Capabilities is the plain-JSON identity document served on GET.
type Capabilities struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Capabilities map[string]bool `json:"capabilities"`
}

// resourceDescriptor advertises one readable collection.
type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

// Server routes protocol calls to the store and the tool registry.
type Server struct {
	name        string
	version     string
	store       *resource.Store
	registry    *tools.Registry
	callTimeout time.Duration
	logger      *log.Logger
}

// NewServer wires the dispatcher.
func NewServer(name, version string, store *resource.Store, registry *tools.Registry) *Server {
	return &Server{
		name:        name,
		version:     version,
		store:       store,
		registry:    registry,
		callTimeout: 60 * time.Second,
		logger:      log.New(log.Writer(), "[MCP] ", log.LstdFlags),
	}
}

// Identity reports server name/version and capability flags.
func (s *Server) Identity() Capabilities {
	return Capabilities{
		Name:    s.name,
		Version: s.version,
		Capabilities: map[string]bool{
			"resources": true,
			"tools":     true,
		},
	}
}

// HandleMessage processes one raw JSON-RPC request and returns the encoded
// response. Every failure path yields a structured error response; nothing
// escapes as a panic or a Go error.
func (s *Server) HandleMessage(ctx context.Context, raw []byte) []byte {
	var req rpcReq
	if err := json.Unmarshal(raw, &req); err != nil {
		return encode(errorResp(nil, codeParseError, "Parse error", err.Error()))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return encode(errorResp(req.ID, codeInvalidRequest, "Invalid Request", nil))
	}

	switch req.Method {
	case "initialize":
		return encode(resultResp(req.ID, map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": s.name, "version": s.version},
			"capabilities":    s.Identity().Capabilities,
		}))
	case "resources/list":
		return encode(resultResp(req.ID, map[string]interface{}{"resources": s.listResources()}))
	case "resources/read":
		return encode(s.readResource(req))
	case "tools/list":
		return encode(resultResp(req.ID, map[string]interface{}{"tools": s.registry.List()}))
	case "tools/call":
		return encode(s.callTool(ctx, req))
	default:
		return encode(errorResp(req.ID, codeMethodNotFound, "Method not found", req.Method))
	}
}

func (s *Server) listResources() []resourceDescriptor {
	kinds := []struct {
		kind models.ResourceType
		path string
		desc string
	}{
		{models.TypeDetection, "detections", "Recent detections across all feeds"},
		{models.TypeIdentityMatch, "identity_matches", "Face/identity match results"},
		{models.TypeTranscript, "transcripts", "Audio transcript segments"},
		{models.TypeSummary, "summaries", "Video summary periods"},
		{models.TypeWorkflow, "workflows", "Active automation workflows"},
		{models.TypeTrace, "traces", "Workflow node execution traces"},
		{models.TypeIntegration, "integrations", "Configured external integrations"},
	}
	counts := s.store.Counts()
	out := make([]resourceDescriptor, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, resourceDescriptor{
			URI:         uriScheme + k.path,
			Name:        k.path,
			Description: fmt.Sprintf("%s (%d stored)", k.desc, counts[k.kind]),
			MimeType:    "application/json",
		})
	}
	return out
}

func (s *Server) readResource(req rpcReq) rpcResp {
	var params struct {
		URI string `json:"uri"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResp(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
	}
	if params.URI == "" {
		return errorResp(req.ID, codeInvalidParams, "Invalid params", "uri is required")
	}
	kind, id, err := parseURI(params.URI)
	if err != nil {
		return errorResp(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	var payload interface{}
	var found bool
	if id == "" {
		payload, found = s.store.ListKind(kind)
	} else {
		payload, found = s.store.GetKind(kind, id)
	}
	if !found {
		// Unknown id reads back as an empty contents list, not an error.
		return resultResp(req.ID, map[string]interface{}{"contents": []interface{}{}})
	}
	text, err := json.Marshal(payload)
	if err != nil {
		return errorResp(req.ID, codeInternalError, "Internal error", err.Error())
	}
	return resultResp(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{{
			"uri":      params.URI,
			"mimeType": "application/json",
			"text":     string(text),
		}},
	})
}

func (s *Server) callTool(ctx context.Context, req rpcReq) rpcResp {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResp(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
	}
	if params.Name == "" {
		return errorResp(req.ID, codeInvalidParams, "Invalid params", "name is required")
	}

	// Per-call timeout to avoid stuck handlers.
	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	res, err := s.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		var argErr *tools.ArgumentError
		if errors.As(err, &argErr) {
			return errorResp(req.ID, codeInvalidParams, "Invalid params", argErr.Error())
		}
		if errors.Is(err, tools.ErrUnknownTool) {
			return errorResp(req.ID, codeInvalidParams, "Invalid params", err.Error())
		}
		return errorResp(req.ID, codeInternalError, "Internal error", err.Error())
	}
	// Handled tool failures (res.IsError) still travel as successful results.
	return resultResp(req.ID, res)
}

// parseURI splits argus://<kind-path>[/<id>] into a resource kind and an
// optional id.
func parseURI(uri string) (models.ResourceType, string, error) {
	if !strings.HasPrefix(uri, uriScheme) {
		return "", "", fmt.Errorf("uri must start with %s", uriScheme)
	}
	rest := strings.TrimPrefix(uri, uriScheme)
	path, id, _ := strings.Cut(rest, "/")
	var kind models.ResourceType
	switch path {
	case "detections":
		kind = models.TypeDetection
	case "identity_matches":
		kind = models.TypeIdentityMatch
	case "transcripts":
		kind = models.TypeTranscript
	case "summaries":
		kind = models.TypeSummary
	case "workflows":
		kind = models.TypeWorkflow
	case "traces":
		kind = models.TypeTrace
	case "integrations":
		kind = models.TypeIntegration
	default:
		return "", "", fmt.Errorf("unknown resource collection %q", path)
	}
	return kind, id, nil
}

func resultResp(id json.RawMessage, result interface{}) rpcResp {
	return rpcResp{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResp(id json.RawMessage, code int, message string, data interface{}) rpcResp {
	return rpcResp{JSONRPC: "2.0", ID: normalizeID(id), Error: &rpcError{Code: code, Message: message, Data: data}}
}

// normalizeID echoes the request id, or null when it could not be determined.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func encode(resp rpcResp) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		// Result contained something unencodable; degrade to an internal error.
		fallback := rpcResp{JSONRPC: "2.0", ID: resp.ID, Error: &rpcError{Code: codeInternalError, Message: "Internal error"}}
		out, _ = json.Marshal(fallback)
	}
	return out
}
