package server

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/argus-vision/argus/internal/tools"
)

type cannedLLM struct{ output string }

func (c *cannedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.output, nil
}

type recordingTexter struct {
	to, body string
}

func (r *recordingTexter) SendSMS(ctx context.Context, to, body string) (string, error) {
	r.to, r.body = to, body
	return "sms-1", nil
}

func TestHandleActionDispatchesText(t *testing.T) {
	s := newTestHTTPServer(t)
	texter := &recordingTexter{}
	s.executor = tools.NewActionExecutor(&cannedLLM{output: `{"recipient":"+15550100","message":"gate open"}`}, nil, nil, texter)

	rec, err := postJSON(t, s, s.handleAction, `{"config":{"option":"text","description":"text the guard that the gate is open"}}`)
	if err != nil {
		t.Fatalf("handleAction: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res tools.ActionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if texter.to != "+15550100" {
		t.Fatalf("wrong recipient: %s", texter.to)
	}
}

func TestHandleActionRejectsBadOption(t *testing.T) {
	s := newTestHTTPServer(t)
	s.executor = tools.NewActionExecutor(&cannedLLM{}, nil, nil, nil)
	_, err := postJSON(t, s, s.handleAction, `{"config":{"option":"fax","description":"fax the guard"}}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandleActionRequiresDescription(t *testing.T) {
	s := newTestHTTPServer(t)
	s.executor = tools.NewActionExecutor(&cannedLLM{}, nil, nil, nil)
	_, err := postJSON(t, s, s.handleAction, `{"config":{"option":"text","description":"  "}}`)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandleActionHandledFailureIs500(t *testing.T) {
	s := newTestHTTPServer(t)
	// Unparsable extraction: the executor fails closed.
	s.executor = tools.NewActionExecutor(&cannedLLM{output: "cannot comply"}, nil, nil, &recordingTexter{})

	rec, err := postJSON(t, s, s.handleAction, `{"config":{"option":"text","description":"text someone"},"apiKey":"sk-ignored"}`)
	if err != nil {
		t.Fatalf("handleAction: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var res tools.ActionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Success || res.Error == "" {
		t.Fatalf("expected structured failure: %+v", res)
	}
}
