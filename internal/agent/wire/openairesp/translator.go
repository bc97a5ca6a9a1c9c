// Package openairesp implements the OpenAI-style "responses" format
// translator (C4): same message projection as openaichat, but the request
// key is "input", the token key is "max_output_tokens", and tool
// declarations are flat instead of nested.
//
// go-openai has no types for this envelope, so this package defines its
// own minimal wire structs and reuses openaichat's message/tool projection
// helpers rather than re-deriving them — grounded on
// original_source/ai/format/openai.rs, which distinguishes the two
// envelopes by a format flag inside one file rather than a wholly separate
// implementation.
package openairesp

import (
	"encoding/json"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus-core/internal/agent/wire/openaichat"
	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

type Translator struct{}

func New() *Translator { return &Translator{} }

func (t *Translator) EndpointPath(model string) string {
	return "/v1/responses"
}

func (t *Translator) ConvertMessages(messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	wireMessages, err := openaichat.ConvertMessages(messages, opts.SystemPrompt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessages)
}

// flatToolDecl is the responses-variant's unnested tool declaration shape:
// {type: function, name, description, parameters} rather than chat
// completions' {type: function, function: {name, description, parameters}}.
type flatToolDecl struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

func (t *Translator) ConvertTools(tools []agentcore.ToolDescriptor) (json.RawMessage, error) {
	decls, err := convertToolsFlat(tools)
	if err != nil {
		return nil, err
	}
	return json.Marshal(decls)
}

func convertToolsFlat(tools []agentcore.ToolDescriptor) ([]flatToolDecl, error) {
	nested, err := openaichat.ConvertTools(tools)
	if err != nil {
		return nil, err
	}
	out := make([]flatToolDecl, len(nested))
	for i, n := range nested {
		var params map[string]any
		if n.Function != nil {
			params, _ = n.Function.Parameters.(map[string]any)
		}
		out[i] = flatToolDecl{
			Type:        "function",
			Name:        n.Function.Name,
			Description: n.Function.Description,
			Parameters:  params,
		}
	}
	return out, nil
}

type responsesRequest struct {
	Model           string                         `json:"model"`
	Input           []sdk.ChatCompletionMessage    `json:"input"`
	MaxOutputTokens int                            `json:"max_output_tokens,omitempty"`
	Stream          bool                           `json:"stream,omitempty"`
	Tools           []flatToolDecl                 `json:"tools,omitempty"`
	Temperature     *float64                       `json:"temperature,omitempty"`
}

func (t *Translator) BuildRequestBody(model string, messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	wireMessages, err := openaichat.ConvertMessages(messages, opts.SystemPrompt)
	if err != nil {
		return nil, err
	}
	req := responsesRequest{
		Model:           model,
		Input:           wireMessages,
		MaxOutputTokens: opts.MaxTokens,
		Stream:          opts.Streaming,
		Temperature:     opts.Temperature,
	}
	if len(opts.Tools) > 0 {
		decls, err := convertToolsFlat(opts.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = decls
	}
	return json.Marshal(req)
}
