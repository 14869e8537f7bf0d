package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/argus-vision/argus/config"
	"github.com/argus-vision/argus/internal/mcp"
	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/tools"
)

func newProtocolServer(t *testing.T) *Server {
	t.Helper()
	store := resource.New(100)
	registry := tools.NewRegistry(nil)
	return &Server{
		cfg:      &config.Config{},
		store:    store,
		protocol: mcp.NewServer("argus-test", "0.0.1", store, registry),
		logger:   testLogger(),
	}
}

func TestProtocolEndpointAlways200(t *testing.T) {
	s := newProtocolServer(t)

	for _, body := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","id":2,"method":"no/such"}`,
		`{broken`,
	} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		if err := s.handleProtocol(e.NewContext(req, rec)); err != nil {
			t.Fatalf("handleProtocol(%q): %v", body, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("body %q: status = %d, want 200", body, rec.Code)
		}
		var resp map[string]interface{}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("body %q: non-JSON response: %v", body, err)
		}
		if resp["jsonrpc"] != "2.0" {
			t.Fatalf("body %q: missing jsonrpc envelope", body)
		}
	}
}

func TestProtocolIdentityOnGET(t *testing.T) {
	s := newProtocolServer(t)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	if err := s.handleProtocolIdentity(e.NewContext(req, rec)); err != nil {
		t.Fatalf("identity: %v", err)
	}
	var caps mcp.Capabilities
	if err := json.Unmarshal(rec.Body.Bytes(), &caps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if caps.Name != "argus-test" || !caps.Capabilities["tools"] || !caps.Capabilities["resources"] {
		t.Fatalf("wrong identity: %+v", caps)
	}
}
