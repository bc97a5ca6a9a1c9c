package sse

import (
	"encoding/json"

	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// OpenAIChatParser turns OpenAI chat-completions SSE chunks into normalized
// Events. Each chunk carries a delta that may add text, start or continue a
// tool call (keyed by array index, not by a start/stop pair like
// Anthropic), or set a finish_reason.
//
// Grounded on internal/agent/providers/openai.go's streaming loop
// (index-keyed toolCalls map, appended Function.Arguments fragments,
// finish_reason=="tool_calls" closing every open call at once). The
// reasoning_content side-channel (DeepSeek/MiniMax dialect, spec §4.3) is
// added beyond the teacher, which doesn't speak that dialect; it is
// projected into the same ThinkingDelta event Anthropic-style thinking
// deltas produce, so downstream consumers don't need to know which
// provider it came from.
type OpenAIChatParser struct {
	accumulators map[int]*Accumulator
	order        []int // index insertion order, for deterministic ToolCallEnd emission
}

func NewOpenAIChatParser() *OpenAIChatParser {
	return &OpenAIChatParser{accumulators: make(map[int]*Accumulator)}
}

type openaiChatFrame struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			ToolCalls        []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *OpenAIChatParser) Parse(raw transport.RawEvent, out []Event) []Event {
	var frame openaiChatFrame
	if err := json.Unmarshal([]byte(raw.Data), &frame); err != nil {
		return out
	}

	if frame.Usage != nil {
		out = append(out, Event{Type: TypeUsage, Usage: agentcore.Usage{
			PromptTokens:     frame.Usage.PromptTokens,
			CompletionTokens: frame.Usage.CompletionTokens,
			TotalTokens:      frame.Usage.TotalTokens,
		}})
	}

	if len(frame.Choices) == 0 {
		return out
	}
	choice := frame.Choices[0]
	delta := choice.Delta

	if delta.Content != "" {
		out = append(out, Event{Type: TypeTextDelta, TextDelta: delta.Content})
	}
	if delta.ReasoningContent != "" {
		out = append(out, Event{Type: TypeThinkingDelta, ThinkingDelta: delta.ReasoningContent})
	}

	for _, tc := range delta.ToolCalls {
		acc, seen := p.accumulators[tc.Index]
		if !seen {
			acc = NewAccumulator(tc.ID, tc.Function.Name)
			p.accumulators[tc.Index] = acc
			p.order = append(p.order, tc.Index)
			out = append(out, Event{Type: TypeToolCallStart, ToolCallID: tc.ID, ToolCallName: tc.Function.Name})
		} else {
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
		}
		if tc.Function.Arguments != "" {
			acc.Feed(tc.Function.Arguments)
			out = append(out, Event{Type: TypeToolCallArgsDelta, ArgsDelta: tc.Function.Arguments})
		}
	}

	if choice.FinishReason != "" {
		for _, idx := range p.order {
			acc := p.accumulators[idx]
			call, err := acc.Finish()
			if err != nil {
				continue
			}
			out = append(out, Event{Type: TypeToolCallEnd, ToolCallID: call.ID, ToolCallName: call.Name, ArgsDelta: string(call.Input)})
		}
		p.accumulators = make(map[int]*Accumulator)
		p.order = nil
		out = append(out, Event{Type: TypeFinish, Finish: mapOpenAIFinishReason(choice.FinishReason)})
	}

	return out
}

func mapOpenAIFinishReason(reason string) agentcore.FinishReason {
	switch reason {
	case "stop":
		return agentcore.FinishStop
	case "length":
		return agentcore.FinishLength
	case "tool_calls", "function_call":
		return agentcore.FinishToolUse
	case "content_filter":
		return agentcore.FinishContentFilter
	default:
		return agentcore.FinishOther(reason)
	}
}
