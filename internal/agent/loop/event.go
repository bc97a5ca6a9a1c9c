// Package loop implements C9, the agent turn state machine, and C11, the
// title and summarizer helpers built on top of it.
//
// The turn runner lives in loop.go: RunTurn drives one session through the
// Composing -> Streaming -> Accumulating -> (Executing -> Composing)* ->
// Idle cycle in state.go's DAG, applying retry.go's backoff schedule around
// each transport attempt and accumulate.go's block reassembly around each
// SSE stream. title.go builds C11's title/pinch/summarize helpers as thin,
// tool-less calls through the same runner.
//
// Grounded on the teacher's internal/agent/runtime.go (turn orchestration
// shape, event emission) and internal/agent/loop.go (phase transitions),
// restructured around the explicit five-state enum spec §4.8 names
// (agentcore.AgentState: Idle/Composing/Streaming/Accumulating/Executing,
// plus the Error/AwaitingInput side states) rather than the teacher's
// broader internal runtime state set.
package loop

import "github.com/haasonsaas/nexus-core/pkg/agentcore"

// EventType is the external event stream's discriminator.
//
// Grounded on pkg/models/runtime_event.go's RuntimeEventType enum and
// builder-method shape, re-scoped from the teacher's tool-lifecycle-only
// events to the six event kinds spec §4.8 names (TextDelta, ThinkingDelta,
// ToolStart, ToolEnd, Usage, Finish) plus the SessionStart/UserMessage/
// Error kinds spec §6's external event stream also requires — a superset
// of the teacher's set, not a narrowing.
type EventType string

const (
	EventSessionStart  EventType = "session_start"
	EventUserMessage   EventType = "user_message"
	EventTextDelta     EventType = "text_delta"
	EventThinkingDelta EventType = "thinking_delta"
	EventToolStart     EventType = "tool_start"
	EventToolEnd       EventType = "tool_end"
	EventUsage         EventType = "usage"
	EventFinish        EventType = "finish"
	EventError         EventType = "error"
)

// Event is one item on a turn's external event stream.
type Event struct {
	Type EventType

	TextDelta     string
	ThinkingDelta string

	ToolCallID   string
	ToolCallName string
	ToolOutput   string
	ToolIsError  bool

	Usage  agentcore.Usage
	Finish agentcore.FinishReason

	Err error
}
