// Package anthropic implements the Anthropic-style format translator (C4):
// role + ordered content blocks verbatim, a top-level system field, tool
// results inside user-role messages, and signature-preserving thinking
// blocks.
//
// Grounded on the teacher's internal/agent/providers/anthropic.go
// convertMessages/convertTools, reusing anthropic-sdk-go's param types
// (MessageNewParams, ContentBlockParamUnion, ToolUnionParam) purely as wire
// schema for JSON marshaling — the SDK's own streaming client is not used;
// transport is internal/agent/transport (see SPEC_FULL §4.4).
package anthropic

import (
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// Translator implements wire.Translator for the Anthropic dialect.
type Translator struct{}

func New() *Translator { return &Translator{} }

func (t *Translator) EndpointPath(model string) string {
	return "/v1/messages"
}

// ConvertMessages projects normalized messages into anthropic.MessageParam,
// applying the thinking-signature retention rule: signatures survive
// verbatim only on the most recent assistant turn that still has
// unresolved tool uses (or on every turn, when
// opts.ContextDirectives["preserve_all_thinking"] is "true", which the loop
// sets for a provider descriptor marked PreserveAllThinking).
func (t *Translator) ConvertMessages(messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	wireMessages, err := t.convertMessages(messages, opts.ContextDirectives["preserve_all_thinking"] == "true")
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessages)
}

func (t *Translator) convertMessages(messages []agentcore.Message, preserveAllThinking bool) ([]sdk.MessageParam, error) {
	mostRecentUnresolvedIdx := -1
	for i, m := range messages {
		if m.Role == agentcore.RoleAssistant && m.HasUnresolvedToolUses() {
			mostRecentUnresolvedIdx = i
		}
	}

	var result []sdk.MessageParam
	for i, msg := range messages {
		if msg.Role == agentcore.RoleSystem {
			continue
		}

		var content []sdk.ContentBlockParamUnion
		for _, b := range msg.Content {
			switch v := b.(type) {
			case agentcore.Text:
				if v.TextValue != "" {
					content = append(content, sdk.NewTextBlock(v.TextValue))
				}
			case agentcore.Thinking:
				keep := preserveAllThinking || i == mostRecentUnresolvedIdx
				if keep && v.Signature != "" {
					content = append(content, sdk.ContentBlockParamUnion{
						OfThinking: &sdk.ThinkingBlockParam{
							Thinking:  v.TextValue,
							Signature: v.Signature,
						},
					})
				}
				// Dropped thinking blocks are simply omitted from the wire
				// request; the session log keeps them locally (spec §4.3).
			case agentcore.ToolResult:
				content = append(content, sdk.NewToolResultBlock(v.ToolUseID, v.Output, v.IsError))
			case agentcore.ToolUse:
				if v.ServerSide {
					continue
				}
				var input map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &input); err != nil {
						return nil, fmt.Errorf("anthropic translator: invalid tool_use input for %q: %w", v.ID, err)
					}
				}
				content = append(content, sdk.NewToolUseBlock(v.ID, input, v.Name))
			case agentcore.Image:
				if v.Source == agentcore.ImageSourceBase64 {
					content = append(content, sdk.ContentBlockParamUnion{
						OfImage: &sdk.ImageBlockParam{
							Source: sdk.ImageBlockParamSourceUnion{
								OfBase64: &sdk.Base64ImageSourceParam{
									Data:      v.Data,
									MediaType: sdk.Base64ImageSourceMediaType(v.MimeType),
								},
							},
						},
					})
				} else {
					content = append(content, sdk.ContentBlockParamUnion{
						OfImage: &sdk.ImageBlockParam{
							Source: sdk.ImageBlockParamSourceUnion{
								OfURL: &sdk.URLImageSourceParam{URL: v.URL},
							},
						},
					})
				}
			}
		}

		var wireMsg sdk.MessageParam
		if msg.Role == agentcore.RoleAssistant {
			wireMsg = sdk.NewAssistantMessage(content...)
		} else {
			// user and tool roles both project to Anthropic user messages.
			wireMsg = sdk.NewUserMessage(content...)
		}
		result = append(result, wireMsg)
	}
	return result, nil
}

func (t *Translator) ConvertTools(tools []agentcore.ToolDescriptor) (json.RawMessage, error) {
	wireTools, err := t.convertTools(tools)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireTools)
}

func (t *Translator) convertTools(tools []agentcore.ToolDescriptor) ([]sdk.ToolUnionParam, error) {
	result := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var schema sdk.ToolInputSchemaParam
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("anthropic translator: invalid schema for tool %q: %w", tool.Name, err)
			}
		}
		toolParam := sdk.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("anthropic translator: missing tool definition for %q", tool.Name)
		}
		toolParam.OfTool.Description = sdk.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// BuildRequestBody assembles the full /v1/messages POST body.
func (t *Translator) BuildRequestBody(model string, messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	wireMessages, err := t.convertMessages(messages, opts.ContextDirectives["preserve_all_thinking"] == "true")
	if err != nil {
		return nil, err
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		Messages:  wireMessages,
		MaxTokens: int64(opts.MaxTokens),
	}
	if opts.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: opts.SystemPrompt}}
	}
	if len(opts.Tools) > 0 {
		wireTools, err := t.convertTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = wireTools
	}
	if opts.EnableThinking {
		budget := int64(opts.ThinkingBudget)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
	}

	return json.Marshal(params)
}
