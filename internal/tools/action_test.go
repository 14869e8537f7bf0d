package tools

import (
	"context"
	"errors"
	"testing"
)

// fakeLLM returns canned output for parameter extraction.
type fakeLLM struct {
	output string
	err    error
	calls  int
}

func (f *fakeLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	return f.output, f.err
}

// fakeTexter records dispatched messages.
type fakeTexter struct {
	to, body string
	calls    int
}

func (f *fakeTexter) SendSMS(ctx context.Context, to, body string) (string, error) {
	f.calls++
	f.to, f.body = to, body
	return "sms-1", nil
}

func TestExecuteRejectsUnknownOption(t *testing.T) {
	e := NewActionExecutor(&fakeLLM{}, nil, nil, nil)
	res := e.Execute(context.Background(), "carrier_pigeon", "notify bob")
	if res.Success {
		t.Fatal("unknown option accepted")
	}
}

func TestExecuteTextDispatchesExtractedParams(t *testing.T) {
	llm := &fakeLLM{output: `{"recipient":"+15550100","subject":"","message":"gate open"}`}
	texter := &fakeTexter{}
	e := NewActionExecutor(llm, nil, nil, texter)

	res := e.Execute(context.Background(), OptionText, "text the guard that the gate is open")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if texter.calls != 1 || texter.to != "+15550100" || texter.body != "gate open" {
		t.Fatalf("wrong dispatch: %+v", texter)
	}
}

func TestExecuteToleratesProseAroundJSON(t *testing.T) {
	llm := &fakeLLM{output: "Sure! Here you go:\n```json\n{\"recipient\":\"ops@example.com\",\"message\":\"hello\"}\n```"}
	texter := &fakeTexter{}
	e := NewActionExecutor(llm, nil, nil, texter)

	res := e.Execute(context.Background(), OptionText, "whatever")
	if !res.Success {
		t.Fatalf("fenced JSON rejected: %+v", res)
	}
}

func TestExecuteFailsClosedOnMissingRecipient(t *testing.T) {
	llm := &fakeLLM{output: `{"recipient":"","message":"hello"}`}
	texter := &fakeTexter{}
	e := NewActionExecutor(llm, nil, nil, texter)

	res := e.Execute(context.Background(), OptionText, "text someone")
	if res.Success {
		t.Fatal("dispatched without a recipient")
	}
	if texter.calls != 0 {
		t.Fatal("provider was called despite invalid extraction")
	}
}

func TestExecuteFailsClosedOnGarbageOutput(t *testing.T) {
	llm := &fakeLLM{output: "I cannot help with that."}
	texter := &fakeTexter{}
	e := NewActionExecutor(llm, nil, nil, texter)

	res := e.Execute(context.Background(), OptionText, "text someone")
	if res.Success {
		t.Fatal("dispatched on unparsable extraction")
	}
	if texter.calls != 0 {
		t.Fatal("provider was called despite unparsable extraction")
	}
}

func TestExecuteSurfacesModelError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("rate limited")}
	e := NewActionExecutor(llm, nil, nil, &fakeTexter{})
	res := e.Execute(context.Background(), OptionText, "text someone")
	if res.Success {
		t.Fatal("succeeded despite model error")
	}
	if res.Error == "" {
		t.Fatal("model error not surfaced")
	}
}

func TestExecuteWithoutProviderForOption(t *testing.T) {
	llm := &fakeLLM{output: `{"recipient":"+15550100","message":"hi"}`}
	e := NewActionExecutor(llm, nil, nil, nil)
	res := e.Execute(context.Background(), OptionCall, "call the guard")
	if res.Success {
		t.Fatal("call succeeded without a telephony provider")
	}
}
