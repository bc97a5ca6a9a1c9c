package sse

import (
	"encoding/json"

	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// OpenAIResponsesParser turns the "responses" API's named SSE event
// sequence (event: response.output_text.delta, response.function_call_
// arguments.delta/.done, response.completed — distinct from chat-
// completions' single untyped delta shape) into normalized Events.
//
// The teacher and the rest of the pack only ever speak the chat-completions
// dialect; this dialect's event names come from the documented responses
// API protocol itself rather than from corpus grounding, and are recorded
// here as such rather than attributed to a teacher file that doesn't cover
// it.
type OpenAIResponsesParser struct {
	accumulators map[string]*Accumulator // keyed by item_id, since this dialect doesn't use array index
}

func NewOpenAIResponsesParser() *OpenAIResponsesParser {
	return &OpenAIResponsesParser{accumulators: make(map[string]*Accumulator)}
}

type responsesFrame struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`

	Item *struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"item"`

	Response *struct {
		Usage *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
			TotalTokens  int `json:"total_tokens"`
		} `json:"usage"`
	} `json:"response"`
}

func (p *OpenAIResponsesParser) Parse(raw transport.RawEvent, out []Event) []Event {
	var frame responsesFrame
	if err := json.Unmarshal([]byte(raw.Data), &frame); err != nil {
		return out
	}

	switch raw.EventType {
	case "response.output_item.added":
		if frame.Item != nil && frame.Item.Type == "function_call" {
			p.accumulators[frame.Item.ID] = NewAccumulator(frame.Item.ID, frame.Item.Name)
			out = append(out, Event{Type: TypeToolCallStart, ToolCallID: frame.Item.ID, ToolCallName: frame.Item.Name})
		}

	case "response.output_text.delta":
		if frame.Delta != "" {
			out = append(out, Event{Type: TypeTextDelta, TextDelta: frame.Delta})
		}

	case "response.reasoning_text.delta":
		if frame.Delta != "" {
			out = append(out, Event{Type: TypeThinkingDelta, ThinkingDelta: frame.Delta})
		}

	case "response.function_call_arguments.delta":
		if acc, ok := p.accumulators[frame.ItemID]; ok {
			acc.Feed(frame.Delta)
			out = append(out, Event{Type: TypeToolCallArgsDelta, ArgsDelta: frame.Delta})
		}

	case "response.function_call_arguments.done":
		if acc, ok := p.accumulators[frame.ItemID]; ok {
			call, err := acc.Finish()
			delete(p.accumulators, frame.ItemID)
			if err == nil {
				out = append(out, Event{Type: TypeToolCallEnd, ToolCallID: call.ID, ToolCallName: call.Name, ArgsDelta: string(call.Input)})
			}
		}

	case "response.completed":
		ev := Event{Type: TypeFinish, Finish: agentcore.FinishStop}
		if len(p.accumulators) > 0 {
			ev.Finish = agentcore.FinishToolUse
		}
		if frame.Response != nil && frame.Response.Usage != nil {
			out = append(out, Event{Type: TypeUsage, Usage: agentcore.Usage{
				PromptTokens:     frame.Response.Usage.InputTokens,
				CompletionTokens: frame.Response.Usage.OutputTokens,
				TotalTokens:      frame.Response.Usage.TotalTokens,
			}})
		}
		out = append(out, ev)

	default: // response.created, response.in_progress, response.output_item.done, etc.
		out = append(out, Event{Type: TypeSkip})
	}

	return out
}
