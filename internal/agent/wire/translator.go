// Package wire defines the shared capability set the three format
// translators (C4) implement, dispatched by ApiFormat via the ByFormat table
// in dispatch.go rather than per-provider subclasses, per spec §9's
// explicit guidance.
package wire

import (
	"encoding/json"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// Translator converts the normalized domain model into one provider
// dialect's wire format and back (the "back" direction lives in the
// matching internal/agent/sse parser, not here).
type Translator interface {
	// ConvertMessages projects normalized messages into the dialect's wire
	// message representation, ready to be embedded in a request body.
	ConvertMessages(messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error)

	// ConvertTools projects tool descriptors into the dialect's wire tool
	// declarations.
	ConvertTools(tools []agentcore.ToolDescriptor) (json.RawMessage, error)

	// BuildRequestBody assembles the full POST body for one completion call.
	BuildRequestBody(model string, messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error)

	// EndpointPath returns the request path (relative to the provider's
	// base URL) for the given model.
	EndpointPath(model string) string
}
