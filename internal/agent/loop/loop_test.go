package loop

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-core/internal/agent/registry"
	"github.com/haasonsaas/nexus-core/internal/agent/tools"
	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// --- test fixtures -----------------------------------------------------

// sseFrame builds one "data: <json>\n\n" frame, the only framing the
// Anthropic parser these tests use needs (it ignores the event: line and
// dispatches on the JSON body's own "type" field).
func sseFrame(t *testing.T, v map[string]any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	return "data: " + string(b) + "\n\n"
}

// fakeRoundTripper replays one canned SSE response body per call, in order,
// so a test can script a multi-round tool-use conversation.
type fakeRoundTripper struct {
	mu        sync.Mutex
	bodies    []string
	delay     time.Duration // simulates a slow in-flight call, for cancellation tests
	callCount int
}

func (f *fakeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	idx := f.callCount
	f.callCount++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}

	if idx >= len(f.bodies) {
		return nil, errors.New("fakeRoundTripper: no more scripted responses")
	}
	return &http.Response{
		StatusCode: 200,
		Body:       io.NopCloser(strings.NewReader(f.bodies[idx])),
		Header:     make(http.Header),
	}, nil
}

type fakeCredentials struct {
	keys map[agentcore.ProviderID]string
}

func (f *fakeCredentials) Get(provider agentcore.ProviderID) (string, bool, error) {
	k, ok := f.keys[provider]
	return k, ok, nil
}

func testRegistry() *registry.Registry {
	return registry.New([]agentcore.ProviderDescriptor{
		{
			ID:           agentcore.ProviderAnthropic,
			BaseURL:      "https://example.invalid",
			AuthHeader:   agentcore.AuthHeaderXApiKey,
			DefaultModel: "claude-test",
			Models: []agentcore.ModelDescriptor{
				{ID: "claude-test", ApiFormat: agentcore.FormatAnthropic},
			},
		},
		{
			ID:           agentcore.ProviderOpenAI,
			BaseURL:      "https://example.invalid",
			AuthHeader:   agentcore.AuthHeaderBearer,
			DefaultModel: "gpt-test",
			Models: []agentcore.ModelDescriptor{
				{ID: "gpt-test", ApiFormat: agentcore.FormatOpenAIChat},
			},
		},
	})
}

func newTestLoop(t *testing.T, rt http.RoundTripper) (*Loop, *tools.Registry) {
	t.Helper()
	toolReg := tools.NewRegistry()
	engine := tools.NewEngine(toolReg, tools.DefaultExecConfig())
	l := New(
		testRegistry(),
		transport.NewClientWithRoundTripper(rt),
		toolReg,
		engine,
		&fakeCredentials{keys: map[agentcore.ProviderID]string{
			agentcore.ProviderAnthropic: "test-key",
			agentcore.ProviderOpenAI:    "test-key",
		}},
		nil,
	)
	return l, toolReg
}

// --- §8.1 simple turn ----------------------------------------------------

func TestSimpleTurn(t *testing.T) {
	body := sseFrame(t, map[string]any{"type": "message_start", "message": map[string]any{"usage": map[string]any{"input_tokens": 10}}}) +
		sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "Hello"}}) +
		sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": " there"}}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}, "usage": map[string]any{"output_tokens": 5}})

	l, _ := newTestLoop(t, &fakeRoundTripper{bodies: []string{body}})
	sess := &agentcore.Session{ID: "s1", AgentState: agentcore.AgentStateIdle}

	var events []Event
	result, err := l.RunTurn(context.Background(), TurnRequest{
		SessionID: "s1",
		Session:   sess,
		Provider:  agentcore.ProviderAnthropic,
		Model:     "claude-test",
		UserMessage: &agentcore.Message{
			Content: []agentcore.Block{agentcore.Text{TextValue: "Hello"}},
		},
	}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.NewMessages) != 2 {
		t.Fatalf("expected [user, assistant], got %d messages", len(result.NewMessages))
	}
	assistant := result.NewMessages[1]
	if assistant.Text() != "Hello there" {
		t.Fatalf("unexpected assistant text: %q", assistant.Text())
	}
	if result.Usage.CompletionTokens == 0 {
		t.Fatalf("expected nonzero usage, got %+v", result.Usage)
	}
	if sess.AgentState != agentcore.AgentStateIdle {
		t.Fatalf("expected session back to idle, got %s", sess.AgentState)
	}
	if result.Finish.String() != "stop" {
		t.Fatalf("unexpected finish reason: %s", result.Finish.String())
	}
}

// --- §8.2 single tool call ------------------------------------------------

func TestSingleToolCall(t *testing.T) {
	firstCall := sseFrame(t, map[string]any{"type": "content_block_start", "content_block": map[string]any{"type": "tool_use", "id": "call-a", "name": "read"}}) +
		sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "input_json_delta", "partial_json": `{"file_path":"README.md"}`}}) +
		sseFrame(t, map[string]any{"type": "content_block_stop"}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "tool_use"}, "usage": map[string]any{"output_tokens": 3}})

	secondCall := sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "The README says Title"}}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}, "usage": map[string]any{"output_tokens": 4}})

	l, toolReg := newTestLoop(t, &fakeRoundTripper{bodies: []string{firstCall, secondCall}})
	toolReg.Register(tools.Tool{
		ToolDescriptor: agentcore.ToolDescriptor{Name: "read", Description: "read a file"},
		Handler: func(ctx *tools.ToolContext, input json.RawMessage) (tools.Result, error) {
			return tools.Result{Output: "# Title\nbody"}, nil
		},
	})

	result, err := l.RunTurn(context.Background(), TurnRequest{
		SessionID:    "s2",
		Provider:     agentcore.ProviderAnthropic,
		Model:        "claude-test",
		IncludeTools: true,
		UserMessage: &agentcore.Message{
			Content: []agentcore.Block{agentcore.Text{TextValue: "What's in README?"}},
		},
	}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if len(result.NewMessages) != 4 {
		t.Fatalf("expected [user, assistant(tool_use), tool(tool_result), assistant(text)], got %d", len(result.NewMessages))
	}
	if result.NewMessages[0].Role != agentcore.RoleUser {
		t.Fatalf("message 0 should be user, got %s", result.NewMessages[0].Role)
	}
	if result.NewMessages[1].Role != agentcore.RoleAssistant || len(result.NewMessages[1].ToolUses()) != 1 {
		t.Fatalf("message 1 should be assistant with one tool_use, got %+v", result.NewMessages[1])
	}
	if result.NewMessages[2].Role != agentcore.RoleTool || len(result.NewMessages[2].ToolResults()) != 1 {
		t.Fatalf("message 2 should be tool with one tool_result, got %+v", result.NewMessages[2])
	}
	if result.NewMessages[3].Text() != "The README says Title" {
		t.Fatalf("unexpected final assistant text: %q", result.NewMessages[3].Text())
	}
}

// --- §8.3 parallel tool calls, one failing -------------------------------

func TestParallelToolCallsOneFails(t *testing.T) {
	toolUse := func(id, name, argsJSON string) string {
		return sseFrame(t, map[string]any{"type": "content_block_start", "content_block": map[string]any{"type": "tool_use", "id": id, "name": name}}) +
			sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "input_json_delta", "partial_json": argsJSON}}) +
			sseFrame(t, map[string]any{"type": "content_block_stop"})
	}
	firstCall := toolUse("a", "read", `{"file_path":"a.go"}`) +
		toolUse("b", "read", `{"file_path":"b.go"}`) +
		toolUse("c", "read", `{"file_path":"c.go"}`) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "tool_use"}, "usage": map[string]any{"output_tokens": 1}})
	secondCall := sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "done"}}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}, "usage": map[string]any{"output_tokens": 1}})

	l, toolReg := newTestLoop(t, &fakeRoundTripper{bodies: []string{firstCall, secondCall}})
	toolReg.Register(tools.Tool{
		ToolDescriptor: agentcore.ToolDescriptor{Name: "read"},
		Handler: func(ctx *tools.ToolContext, input json.RawMessage) (tools.Result, error) {
			var args struct {
				FilePath string `json:"file_path"`
			}
			_ = json.Unmarshal(input, &args)
			if args.FilePath == "b.go" {
				return tools.Result{Output: "not found", IsError: true}, nil
			}
			return tools.Result{Output: "ok: " + args.FilePath}, nil
		},
	})

	result, err := l.RunTurn(context.Background(), TurnRequest{
		SessionID:    "s3",
		Provider:     agentcore.ProviderAnthropic,
		Model:        "claude-test",
		IncludeTools: true,
		UserMessage:  &agentcore.Message{Content: []agentcore.Block{agentcore.Text{TextValue: "read three files"}}},
	}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	toolResultMsg := result.NewMessages[2]
	results := toolResultMsg.ToolResults()
	if len(results) != 3 {
		t.Fatalf("expected 3 tool results, got %d", len(results))
	}
	if results[0].ToolUseID != "a" || results[1].ToolUseID != "b" || results[2].ToolUseID != "c" {
		t.Fatalf("tool results out of order: %+v", results)
	}
	if !results[1].IsError {
		t.Fatalf("expected b's result to be an error")
	}
	if results[0].IsError || results[2].IsError {
		t.Fatalf("expected a and c to succeed: %+v", results)
	}
}

// --- §8.4 sandbox escape --------------------------------------------------

func TestSandboxEscape(t *testing.T) {
	firstCall := sseFrame(t, map[string]any{"type": "content_block_start", "content_block": map[string]any{"type": "tool_use", "id": "a", "name": "read"}}) +
		sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "input_json_delta", "partial_json": `{"file_path":"/etc/passwd"}`}}) +
		sseFrame(t, map[string]any{"type": "content_block_stop"}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "tool_use"}, "usage": map[string]any{"output_tokens": 1}})
	secondCall := sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "done"}}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}, "usage": map[string]any{"output_tokens": 1}})

	l, toolReg := newTestLoop(t, &fakeRoundTripper{bodies: []string{firstCall, secondCall}})
	touched := false
	toolReg.Register(tools.Tool{
		ToolDescriptor: agentcore.ToolDescriptor{Name: "read"},
		Handler: func(ctx *tools.ToolContext, input json.RawMessage) (tools.Result, error) {
			var args struct {
				FilePath string `json:"file_path"`
			}
			_ = json.Unmarshal(input, &args)
			if _, err := ctx.Resolve(args.FilePath); err != nil {
				return tools.Result{Output: "Access denied", IsError: true}, nil
			}
			touched = true
			return tools.Result{Output: "leaked"}, nil
		},
	})

	sandbox := t.TempDir()
	result, err := l.RunTurn(context.Background(), TurnRequest{
		SessionID:    "s4",
		Provider:     agentcore.ProviderAnthropic,
		Model:        "claude-test",
		IncludeTools: true,
		SandboxRoot:  sandbox,
		WorkingDir:   sandbox,
		UserMessage:  &agentcore.Message{Content: []agentcore.Block{agentcore.Text{TextValue: "read /etc/passwd"}}},
	}, nil)
	if err != nil {
		t.Fatalf("RunTurn: %v", err)
	}
	if touched {
		t.Fatal("tool handler read outside the sandbox")
	}
	tr := result.NewMessages[2].ToolResults()[0]
	if !tr.IsError || tr.Output != "Access denied" {
		t.Fatalf("expected sandboxed error result, got %+v", tr)
	}
}

// --- §8.5 cancellation during tool ---------------------------------------

func TestCancellationDuringTool(t *testing.T) {
	firstCall := sseFrame(t, map[string]any{"type": "content_block_start", "content_block": map[string]any{"type": "tool_use", "id": "a", "name": "bash"}}) +
		sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "input_json_delta", "partial_json": `{}`}}) +
		sseFrame(t, map[string]any{"type": "content_block_stop"}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "tool_use"}, "usage": map[string]any{"output_tokens": 1}})

	l, toolReg := newTestLoop(t, &fakeRoundTripper{bodies: []string{firstCall}})
	toolReg.Register(tools.Tool{
		ToolDescriptor: agentcore.ToolDescriptor{Name: "bash"},
		Handler: func(ctx *tools.ToolContext, input json.RawMessage) (tools.Result, error) {
			select {
			case <-time.After(5 * time.Second):
				return tools.Result{Output: "finished"}, nil
			case <-ctx.Done():
				return tools.Result{}, ctx.Err()
			}
		},
	})

	sess := &agentcore.Session{ID: "s5", AgentState: agentcore.AgentStateIdle}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result, err := l.RunTurn(ctx, TurnRequest{
		SessionID:    "s5",
		Session:      sess,
		Provider:     agentcore.ProviderAnthropic,
		Model:        "claude-test",
		IncludeTools: true,
		UserMessage:  &agentcore.Message{Content: []agentcore.Block{agentcore.Text{TextValue: "run something long"}}},
	}, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error from a cancelled turn")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("cancellation took too long: %s", elapsed)
	}
	if len(result.NewMessages) != 0 {
		t.Fatalf("expected no messages committed on cancellation, got %d", len(result.NewMessages))
	}
	if sess.AgentState != agentcore.AgentStateError {
		t.Fatalf("expected agent_state=error after cancellation, got %s", sess.AgentState)
	}
}

// --- §8.6 provider switch (registry translation) -------------------------

func TestProviderSwitchTranslatesModel(t *testing.T) {
	reg := testRegistry()
	target := reg.Translate("claude-sonnet-4-20250514", agentcore.ProviderAnthropic, agentcore.ProviderOpenAI)
	if target != "gpt-4.1" {
		t.Fatalf("expected static cross-provider mapping, got %q", target)
	}

	// An unmapped pair falls back to the target's configured default model.
	fallback := reg.Translate("claude-test", agentcore.ProviderAnthropic, agentcore.ProviderOpenAI)
	if fallback != "gpt-test" {
		t.Fatalf("expected fallback to target default model, got %q", fallback)
	}
}

// --- boundary behaviors (§8) ----------------------------------------------

func TestEmptyHistoryAndPromptIsInvalidRequest(t *testing.T) {
	l, _ := newTestLoop(t, &fakeRoundTripper{})
	_, err := l.RunTurn(context.Background(), TurnRequest{
		SessionID: "s6",
		Provider:  agentcore.ProviderAnthropic,
		Model:     "claude-test",
	}, nil)
	if err == nil {
		t.Fatal("expected an error for empty history and empty prompt")
	}
}

func TestStreamEndingWithoutFinishIsProtocolError(t *testing.T) {
	body := sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "partial"}})
	l, _ := newTestLoop(t, &fakeRoundTripper{bodies: []string{body}})
	_, err := l.RunTurn(context.Background(), TurnRequest{
		SessionID:   "s7",
		Provider:    agentcore.ProviderAnthropic,
		Model:       "claude-test",
		UserMessage: &agentcore.Message{Content: []agentcore.Block{agentcore.Text{TextValue: "hi"}}},
	}, nil)
	if err == nil {
		t.Fatal("expected a protocol error when the stream ends without Finish")
	}
}

// --- C11 title helper ------------------------------------------------------

func TestGenerateTitleFallsBackOnTransportFailure(t *testing.T) {
	l, _ := newTestLoop(t, &fakeRoundTripper{bodies: nil})
	title, err := l.GenerateTitle(context.Background(), agentcore.ProviderAnthropic, "please refactor the widget loader module")
	if err != nil {
		t.Fatalf("GenerateTitle should not surface a transport failure: %v", err)
	}
	if title == "" {
		t.Fatal("expected a non-empty fallback title")
	}
	if words := strings.Fields(title); len(words) > 6 {
		t.Fatalf("fallback title too long: %q", title)
	}
}

func TestGenerateTitleUsesFastModel(t *testing.T) {
	body := sseFrame(t, map[string]any{"type": "content_block_delta", "delta": map[string]any{"type": "text_delta", "text": "Refactor Widget Loader"}}) +
		sseFrame(t, map[string]any{"type": "message_delta", "delta": map[string]any{"stop_reason": "end_turn"}, "usage": map[string]any{"output_tokens": 3}})
	l, _ := newTestLoop(t, &fakeRoundTripper{bodies: []string{body}})
	title, err := l.GenerateTitle(context.Background(), agentcore.ProviderAnthropic, "please refactor the widget loader")
	if err != nil {
		t.Fatalf("GenerateTitle: %v", err)
	}
	if title != "Refactor Widget Loader" {
		t.Fatalf("unexpected title: %q", title)
	}
}
