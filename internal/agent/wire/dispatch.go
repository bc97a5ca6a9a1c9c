package wire

import (
	"fmt"

	"github.com/haasonsaas/nexus-core/internal/agent/wire/anthropic"
	"github.com/haasonsaas/nexus-core/internal/agent/wire/google"
	"github.com/haasonsaas/nexus-core/internal/agent/wire/openaichat"
	"github.com/haasonsaas/nexus-core/internal/agent/wire/openairesp"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// ByFormat dispatches to the translator for an ApiFormat. A dispatch table
// keyed by ApiFormat is deliberately used instead of per-provider subclasses
// (spec §9): the table is built once and is safe for concurrent reads.
var ByFormat = map[agentcore.ApiFormat]Translator{
	agentcore.FormatAnthropic:        anthropic.New(),
	agentcore.FormatOpenAIChat:       openaichat.New(),
	agentcore.FormatOpenAIResponses:  openairesp.New(),
	agentcore.FormatGoogle:           google.New(),
	agentcore.FormatBedrockAnthropic: anthropic.New(), // Bedrock's Claude models speak the Anthropic message shape
}

// For returns the translator for an ApiFormat, erroring on unknown formats
// rather than silently defaulting.
func For(format agentcore.ApiFormat) (Translator, error) {
	t, ok := ByFormat[format]
	if !ok {
		return nil, fmt.Errorf("wire: no translator registered for format %q", format)
	}
	return t, nil
}
