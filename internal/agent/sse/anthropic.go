package sse

import (
	"encoding/json"

	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// AnthropicParser turns transport.RawEvent frames carrying Anthropic's
// message_start/content_block_start/content_block_delta/content_block_stop/
// message_delta/message_stop event sequence into normalized Events.
//
// Grounded on internal/agent/providers/anthropic.go's handleStream switch
// over event.Type (message_start for input tokens, content_block_start for
// thinking/tool_use block openings, content_block_delta's nested
// text_delta/thinking_delta/input_json_delta, content_block_stop to close a
// block, message_delta for output tokens and stop_reason, message_stop to
// end the turn). signature_delta handling is added beyond the teacher's
// streaming path (which drops thinking signatures) because spec's
// thinking-signature round-tripping invariant requires it — Anthropic's
// wire protocol emits it as a third content_block_delta delta.Type
// alongside text_delta/thinking_delta.
type AnthropicParser struct {
	inThinking  bool
	inToolUse   bool
	accumulator *Accumulator
}

func NewAnthropicParser() *AnthropicParser { return &AnthropicParser{} }

type anthropicFrame struct {
	Type string `json:"type"`

	Message *struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`

	ContentBlock *struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta *struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		Thinking    string `json:"thinking"`
		Signature   string `json:"signature"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Usage *struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Parse interprets one RawEvent, appending zero or more normalized Events
// to out and returning the extended slice. Malformed frames are skipped
// (protocol errors surface from the caller's event-type tracking, not from
// JSON decode failures here) to match the teacher's tolerance of stray
// non-JSON keepalive frames.
func (p *AnthropicParser) Parse(raw transport.RawEvent, out []Event) []Event {
	var frame anthropicFrame
	if err := json.Unmarshal([]byte(raw.Data), &frame); err != nil {
		return out
	}

	switch frame.Type {
	case "message_start":
		ev := Event{Type: TypeMessageStart}
		if frame.Message != nil {
			ev.Usage.PromptTokens = frame.Message.Usage.InputTokens
		}
		return append(out, ev)

	case "content_block_start":
		if frame.ContentBlock == nil {
			return out
		}
		switch frame.ContentBlock.Type {
		case "thinking":
			p.inThinking = true
		case "tool_use":
			p.inToolUse = true
			p.accumulator = NewAccumulator(frame.ContentBlock.ID, frame.ContentBlock.Name)
			return append(out, Event{
				Type:         TypeToolCallStart,
				ToolCallID:   frame.ContentBlock.ID,
				ToolCallName: frame.ContentBlock.Name,
			})
		}
		return out

	case "content_block_delta":
		if frame.Delta == nil {
			return out
		}
		switch frame.Delta.Type {
		case "text_delta":
			if frame.Delta.Text != "" {
				return append(out, Event{Type: TypeTextDelta, TextDelta: frame.Delta.Text})
			}
		case "thinking_delta":
			if frame.Delta.Thinking != "" {
				return append(out, Event{Type: TypeThinkingDelta, ThinkingDelta: frame.Delta.Thinking})
			}
		case "signature_delta":
			if frame.Delta.Signature != "" {
				return append(out, Event{Type: TypeThinkingSignature, Signature: frame.Delta.Signature})
			}
		case "input_json_delta":
			if p.accumulator != nil {
				p.accumulator.Feed(frame.Delta.PartialJSON)
			}
			if frame.Delta.PartialJSON != "" {
				return append(out, Event{Type: TypeToolCallArgsDelta, ArgsDelta: frame.Delta.PartialJSON})
			}
		}
		return out

	case "content_block_stop":
		defer func() { p.inThinking, p.inToolUse = false, false }()
		if p.inToolUse && p.accumulator != nil {
			call, err := p.accumulator.Finish()
			p.accumulator = nil
			if err != nil {
				return out // surfaced by the caller's own validation pass over the full turn
			}
			return append(out, Event{Type: TypeToolCallEnd, ToolCallID: call.ID, ToolCallName: call.Name, ArgsDelta: string(call.Input)})
		}
		return out

	case "message_delta":
		ev := Event{Type: TypeUsage}
		if frame.Usage != nil {
			ev.Usage.CompletionTokens = frame.Usage.OutputTokens
		}
		out = append(out, ev)
		if frame.Delta != nil && frame.Delta.StopReason != "" {
			out = append(out, Event{Type: TypeFinish, Finish: mapStopReason(frame.Delta.StopReason)})
		}
		return out

	case "message_stop":
		return out // the turn's Finish event already came from message_delta

	default: // "ping" and unrecognized event types
		return append(out, Event{Type: TypeSkip})
	}
}

func mapStopReason(reason string) agentcore.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return agentcore.FinishStop
	case "max_tokens":
		return agentcore.FinishLength
	case "tool_use":
		return agentcore.FinishToolUse
	default:
		return agentcore.FinishOther(reason)
	}
}
