package sse

import (
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// GoogleParser turns :streamGenerateContent SSE frames into normalized
// Events. Unlike Anthropic/OpenAI, Gemini delivers each functionCall whole
// in a single part rather than streaming argument fragments, so a tool call
// here is always a ToolCallStart immediately followed by a ToolCallEnd.
//
// Grounded on internal/agent/providers/google.go's processStreamResponse
// (candidate.Content.Parts text/FunctionCall handling, generateToolCallID
// for the synthetic call ID Gemini's wire format never provides).
type GoogleParser struct{}

func NewGoogleParser() *GoogleParser { return &GoogleParser{} }

type googleFrame struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string          `json:"text"`
				FunctionCall *functionCall   `json:"functionCall"`
				Thought      bool            `json:"thought"` // Gemini 2.x thinking-part marker
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type functionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

var toolCallSeq int

// syntheticToolCallID mirrors the teacher's generateToolCallID: Gemini's
// wire format never assigns an id to a functionCall, so one is synthesized
// from the function name plus a monotonic counter to keep ids unique
// within a process.
func syntheticToolCallID(name string) string {
	toolCallSeq++
	return fmt.Sprintf("google_%s_%d", name, toolCallSeq)
}

func (p *GoogleParser) Parse(raw transport.RawEvent, out []Event) []Event {
	var frame googleFrame
	if err := json.Unmarshal([]byte(raw.Data), &frame); err != nil {
		return out
	}

	if frame.UsageMetadata != nil {
		out = append(out, Event{Type: TypeUsage, Usage: agentcore.Usage{
			PromptTokens:     frame.UsageMetadata.PromptTokenCount,
			CompletionTokens: frame.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      frame.UsageMetadata.TotalTokenCount,
		}})
	}

	for _, candidate := range frame.Candidates {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.FunctionCall != nil:
				argsJSON, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					argsJSON = []byte("{}")
				}
				id := syntheticToolCallID(part.FunctionCall.Name)
				out = append(out,
					Event{Type: TypeToolCallStart, ToolCallID: id, ToolCallName: part.FunctionCall.Name},
					Event{Type: TypeToolCallEnd, ToolCallID: id, ToolCallName: part.FunctionCall.Name, ArgsDelta: string(argsJSON)},
				)
			case part.Thought:
				if part.Text != "" {
					out = append(out, Event{Type: TypeThinkingDelta, ThinkingDelta: part.Text})
				}
			case part.Text != "":
				out = append(out, Event{Type: TypeTextDelta, TextDelta: part.Text})
			}
		}
		if candidate.FinishReason != "" {
			out = append(out, Event{Type: TypeFinish, Finish: mapGoogleFinishReason(candidate.FinishReason)})
		}
	}

	return out
}

func mapGoogleFinishReason(reason string) agentcore.FinishReason {
	switch reason {
	case "STOP":
		return agentcore.FinishStop
	case "MAX_TOKENS":
		return agentcore.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT":
		return agentcore.FinishContentFilter
	default:
		return agentcore.FinishOther(reason)
	}
}
