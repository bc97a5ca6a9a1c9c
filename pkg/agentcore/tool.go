package agentcore

import "encoding/json"

// ToolDescriptor is the wire-visible shape of a tool: what the model is
// told about it. It carries no execution capability — that lives on the
// registry's own Tool type in internal/agent/tools, which embeds a
// ToolDescriptor for translation purposes.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage // JSON-schema, opaque to this package
}

// ToolCall is the runtime projection of a ToolUse block while it is being
// executed: same identity, plus bookkeeping the execution engine needs.
type ToolCall struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// FinishReason is why the model stopped producing output for a turn.
type FinishReason struct {
	kind  finishKind
	other string // populated only when kind==finishOther
}

type finishKind int

const (
	finishStop finishKind = iota
	finishLength
	finishToolUse
	finishContentFilter
	finishOther
)

var (
	FinishStop          = FinishReason{kind: finishStop}
	FinishLength        = FinishReason{kind: finishLength}
	FinishToolUse       = FinishReason{kind: finishToolUse}
	FinishContentFilter = FinishReason{kind: finishContentFilter}
)

// FinishOther wraps a provider-specific stop reason the enum doesn't name.
func FinishOther(reason string) FinishReason {
	return FinishReason{kind: finishOther, other: reason}
}

// String renders the reason for logs and events.
func (f FinishReason) String() string {
	switch f.kind {
	case finishStop:
		return "stop"
	case finishLength:
		return "length"
	case finishToolUse:
		return "tool_use"
	case finishContentFilter:
		return "content_filter"
	default:
		return "other:" + f.other
	}
}

// IsToolUse reports whether the model stopped to request tool execution.
func (f FinishReason) IsToolUse() bool { return f.kind == finishToolUse }

// Usage is token accounting for one provider call. Providers that don't
// report a field leave it zero.
type Usage struct {
	PromptTokens            int
	CompletionTokens        int
	TotalTokens             int
	CacheCreationInputTokens int
	CacheReadInputTokens     int
}

// Add accumulates u into a running total, used when a turn spans multiple
// provider calls (tool-use round trips).
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}
