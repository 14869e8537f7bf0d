package orchestrator

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/argus-vision/argus/internal/resource"
	"github.com/argus-vision/argus/internal/tools"
	"github.com/argus-vision/argus/models"
)

// scriptedLLM returns a fixed plan, optionally blocking until released.
type scriptedLLM struct {
	mu     sync.Mutex
	output string
	block  chan struct{}
	calls  int
}

func (s *scriptedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.output, nil
}

func (s *scriptedLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestOrchestrator(llm *scriptedLLM) (*Orchestrator, *resource.Store, *tools.Registry) {
	store := resource.New(100)
	registry := tools.NewRegistry(nil)
	return New(store, registry, llm, time.Minute, nil), store, registry
}

func TestTriggerExecutesPlannedActions(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[{"tool":"mark","arguments":{"flag":"x"},"reason":"test"}]}`}
	o, _, registry := newTestOrchestrator(llm)

	var gotArgs map[string]interface{}
	registry.Register(tools.Tool{
		Name:        "mark",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			gotArgs = args
			return tools.TextResult("done"), nil
		},
	})

	o.Trigger(context.Background())

	if gotArgs == nil || gotArgs["flag"] != "x" {
		t.Fatalf("planned action not executed: %v", gotArgs)
	}
	st := o.Status()
	if st.PassesTotal != 1 || st.ActionsTaken != 1 || st.LastOutcome != "acted" {
		t.Fatalf("wrong status: %+v", st)
	}
}

func TestTriggerSkipsWhenPassInFlight(t *testing.T) {
	block := make(chan struct{})
	llm := &scriptedLLM{output: `{"actions":[]}`, block: block}
	o, _, _ := newTestOrchestrator(llm)

	started := make(chan struct{})
	go func() {
		close(started)
		o.Trigger(context.Background())
	}()
	<-started
	// Wait for the first pass to reach the model call.
	deadline := time.After(2 * time.Second)
	for llm.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("first pass never reached the model")
		case <-time.After(5 * time.Millisecond):
		}
	}

	o.Trigger(context.Background()) // must be skipped, not queued
	close(block)

	deadline = time.After(2 * time.Second)
	for o.inFlight.Load() {
		select {
		case <-deadline:
			t.Fatal("first pass never finished")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if llm.callCount() != 1 {
		t.Fatalf("overlapping trigger reached the model: %d calls", llm.callCount())
	}
}

func TestUnparsablePlanIsNonFatal(t *testing.T) {
	llm := &scriptedLLM{output: "no plan here"}
	o, _, _ := newTestOrchestrator(llm)

	o.Trigger(context.Background())
	st := o.Status()
	if st.LastOutcome != "unparsable" {
		t.Fatalf("outcome = %s, want unparsable", st.LastOutcome)
	}

	// The loop keeps working afterwards.
	llm.mu.Lock()
	llm.output = `{"actions":[]}`
	llm.mu.Unlock()
	o.Trigger(context.Background())
	if st := o.Status(); st.LastOutcome != "idle" {
		t.Fatalf("outcome = %s, want idle", st.LastOutcome)
	}
}

func TestRejectedActionDoesNotAbortPass(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[{"tool":"ghost","arguments":{}},{"tool":"real","arguments":{}}]}`}
	o, _, registry := newTestOrchestrator(llm)

	executed := false
	registry.Register(tools.Tool{
		Name:        "real",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			executed = true
			return tools.TextResult("ok"), nil
		},
	})

	o.Trigger(context.Background())
	if !executed {
		t.Fatal("valid action skipped because an earlier one was rejected")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[]}`}
	o, _, _ := newTestOrchestrator(llm)

	if err := o.Start(time.Hour, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(time.Hour, ""); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !o.Running() {
		t.Fatal("orchestrator not running after Start")
	}

	o.Stop()
	o.Stop()
	if o.Running() {
		t.Fatal("orchestrator still running after Stop")
	}
}

func TestConcurrentStartInstallsOneLoop(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[]}`}
	o, _, _ := newTestOrchestrator(llm)
	defer o.Stop()

	if err := o.Start(time.Hour, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if err := o.Start(time.Hour, ""); err != nil {
					t.Errorf("Start: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if !o.Running() {
		t.Fatal("orchestrator not running after concurrent starts")
	}
	o.Stop()
	if o.Running() {
		t.Fatal("orchestrator still running after Stop")
	}
}

func TestStartReplacesSchedule(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[]}`}
	o, _, _ := newTestOrchestrator(llm)
	defer o.Stop()

	if err := o.Start(time.Hour, ""); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(2*time.Hour, ""); err != nil {
		t.Fatalf("restart: %v", err)
	}
	st := o.Status()
	if !st.Running || st.Interval != (2*time.Hour).String() {
		t.Fatalf("schedule not replaced: %+v", st)
	}
}

func TestStartValidatesSchedule(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[]}`}
	o, _, _ := newTestOrchestrator(llm)

	if err := o.Start(0, ""); err == nil {
		o.Stop()
		t.Fatal("zero interval accepted")
	}
	if err := o.Start(time.Hour, "not a cron"); err == nil {
		o.Stop()
		t.Fatal("invalid cron spec accepted")
	}
	if err := o.Start(0, "*/5 * * * *"); err != nil {
		t.Fatalf("valid cron spec rejected: %v", err)
	}
	o.Stop()
}

func TestPromptIncludesStateAndTools(t *testing.T) {
	llm := &scriptedLLM{output: `{"actions":[]}`}
	o, store, registry := newTestOrchestrator(llm)
	store.AddDetection(models.Detection{FeedID: "gate", Type: models.DetectionPerson, Severity: models.SeverityHigh})
	registry.Register(tools.Tool{
		Name:        "distinctive_tool_name",
		Description: "does a thing",
		InputSchema: map[string]interface{}{"type": "object"},
		Handler: func(ctx context.Context, args map[string]interface{}) (tools.Result, error) {
			return tools.TextResult("ok"), nil
		},
	})

	prompt, err := o.buildPrompt()
	if err != nil {
		t.Fatalf("buildPrompt: %v", err)
	}
	for _, want := range []string{"gate", "distinctive_tool_name", "CURRENT STATE", "AVAILABLE TOOLS"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}
}
