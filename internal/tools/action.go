package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/argus-vision/argus/internal/actions"
	"github.com/argus-vision/argus/provider"
)

// Action options accepted by the executor.
const (
	OptionCall  = "call"
	OptionEmail = "email"
	OptionText  = "text"
)

// ValidOption reports whether opt names a supported action kind.
func ValidOption(opt string) bool {
	switch opt {
	case OptionCall, OptionEmail, OptionText:
		return true
	}
	return false
}

// ActionResult is the structured outcome of one action-node execution.
type ActionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// actionParams is what the model must extract from the free-text description.
type actionParams struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject,omitempty"`
	Message   string `json:"message"`
}

// ActionExecutor turns a natural-language action description into one
// concrete provider call. It fails closed: when the model's output cannot be
// parsed into valid parameters, nothing is dispatched.
type ActionExecutor struct {
	llm     provider.Provider
	caller  actions.Caller
	emailer actions.Emailer
	texter  actions.Texter
	logger  *log.Logger
}

// NewActionExecutor wires the executor. Any provider may be nil; the
// corresponding option then fails with a structured error.
func NewActionExecutor(llm provider.Provider, caller actions.Caller, emailer actions.Emailer, texter actions.Texter) *ActionExecutor {
	return &ActionExecutor{
		llm:     llm,
		caller:  caller,
		emailer: emailer,
		texter:  texter,
		logger:  log.New(log.Writer(), "[ACTION] ", log.LstdFlags),
	}
}

const extractSystemPrompt = `You extract structured action parameters from a free-text instruction.

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{
  "recipient": "phone number or email address of the target",
  "subject": "short subject line (email only, otherwise empty)",
  "message": "the exact message body to deliver"
}
Do not include any other text or explanation.`

// Execute runs one action: extract parameters via the model, then dispatch
// to the provider matching option.
func (e *ActionExecutor) Execute(ctx context.Context, option, description string) ActionResult {
	if !ValidOption(option) {
		return ActionResult{Success: false, Message: "unsupported action option", Error: fmt.Sprintf("option %q is not one of call, email, text", option)}
	}
	if e.llm == nil {
		return ActionResult{Success: false, Message: "action extraction unavailable", Error: "no generative model configured"}
	}

	userPrompt := fmt.Sprintf("ACTION KIND: %s\nINSTRUCTION: %s", option, description)
	raw, err := e.llm.Generate(ctx, extractSystemPrompt, userPrompt)
	if err != nil {
		return ActionResult{Success: false, Message: "parameter extraction failed", Error: err.Error()}
	}

	params, err := parseActionParams(raw)
	if err != nil {
		// Fail closed: never dispatch on an ambiguous extraction.
		e.logger.Printf("unparsable extraction for %s action: %v", option, err)
		return ActionResult{Success: false, Message: "could not extract valid action parameters", Error: err.Error()}
	}

	switch option {
	case OptionCall:
		if e.caller == nil {
			return ActionResult{Success: false, Message: "telephony provider not configured", Error: "no caller"}
		}
		id, err := e.caller.Call(ctx, params.Recipient, params.Message, "")
		if err != nil {
			return ActionResult{Success: false, Message: "call failed", Error: err.Error()}
		}
		return ActionResult{Success: true, Message: fmt.Sprintf("call to %s placed (id %s)", params.Recipient, id)}
	case OptionEmail:
		if e.emailer == nil {
			return ActionResult{Success: false, Message: "email provider not configured", Error: "no emailer"}
		}
		subject := params.Subject
		if subject == "" {
			subject = "Notification"
		}
		id, err := e.emailer.Send(ctx, params.Recipient, subject, params.Message)
		if err != nil {
			return ActionResult{Success: false, Message: "email failed", Error: err.Error()}
		}
		return ActionResult{Success: true, Message: fmt.Sprintf("email to %s sent (id %s)", params.Recipient, id)}
	default: // OptionText
		if e.texter == nil {
			return ActionResult{Success: false, Message: "messaging provider not configured", Error: "no texter"}
		}
		id, err := e.texter.SendSMS(ctx, params.Recipient, params.Message)
		if err != nil {
			return ActionResult{Success: false, Message: "text failed", Error: err.Error()}
		}
		return ActionResult{Success: true, Message: fmt.Sprintf("text to %s sent (id %s)", params.Recipient, id)}
	}
}

// parseActionParams decodes the model output, tolerating surrounding prose
// or code fences but rejecting anything without a usable recipient+message.
func parseActionParams(raw string) (actionParams, error) {
	var params actionParams
	payload := extractJSONObject(raw)
	if payload == "" {
		return params, fmt.Errorf("no JSON object in model output")
	}
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return params, fmt.Errorf("decode action parameters: %w", err)
	}
	params.Recipient = strings.TrimSpace(params.Recipient)
	params.Message = strings.TrimSpace(params.Message)
	if params.Recipient == "" {
		return params, fmt.Errorf("extraction missing recipient")
	}
	if params.Message == "" {
		return params, fmt.Errorf("extraction missing message")
	}
	return params, nil
}

// extractJSONObject returns the first top-level {...} span in s.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
