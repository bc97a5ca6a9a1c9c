package sse

import (
	"fmt"

	"github.com/haasonsaas/nexus-core/internal/agent/transport"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// Parser is the per-dialect interface every format's SSE parser satisfies.
// Parsers are stateful (tool-call accumulation spans frames) so one
// instance must be used per in-flight stream, never shared or reused
// across turns.
type Parser interface {
	Parse(raw transport.RawEvent, out []Event) []Event
}

// NewForFormat constructs a fresh, stream-scoped Parser for the given
// ApiFormat.
func NewForFormat(format agentcore.ApiFormat) (Parser, error) {
	switch format {
	case agentcore.FormatAnthropic, agentcore.FormatBedrockAnthropic:
		return NewAnthropicParser(), nil
	case agentcore.FormatOpenAIChat:
		return NewOpenAIChatParser(), nil
	case agentcore.FormatOpenAIResponses:
		return NewOpenAIResponsesParser(), nil
	case agentcore.FormatGoogle:
		return NewGoogleParser(), nil
	default:
		return nil, fmt.Errorf("sse: no parser registered for format %q", format)
	}
}
