// Package sse implements C6: per-provider SSE parsers that turn
// transport.RawEvent frames into a normalized Event stream, plus the
// presentation-only smoothing buffer.
//
// Each dialect's parser is grounded on the teacher's own stream-handling
// code for that provider (internal/agent/providers/{anthropic,openai,
// google}.go) but is rewritten against transport.RawEvent instead of the
// vendor SDK's typed stream iterator, since this module owns a single raw
// transport across all four dialects (spec §4.4/§4.5).
package sse

import "github.com/haasonsaas/nexus-core/pkg/agentcore"

// Type discriminates the normalized event union.
type Type string

const (
	TypeMessageStart     Type = "message_start"
	TypeTextDelta        Type = "text_delta"
	TypeThinkingDelta     Type = "thinking_delta"
	TypeThinkingSignature Type = "thinking_signature"
	TypeToolCallStart     Type = "tool_call_start"
	TypeToolCallArgsDelta Type = "tool_call_args_delta"
	TypeToolCallEnd       Type = "tool_call_end"
	TypeUsage             Type = "usage"
	TypeFinish            Type = "finish"
	TypeSkip              Type = "skip" // dialect-specific frame with no normalized meaning
)

// Event is the normalized union every dialect parser emits. Fields outside
// the relevant group for Type are zero.
type Event struct {
	Type Type

	TextDelta     string
	ThinkingDelta string
	Signature     string

	ToolCallID    string
	ToolCallName  string
	ArgsDelta     string // raw JSON fragment, accumulated by Accumulator

	Usage agentcore.Usage

	Finish agentcore.FinishReason
}
