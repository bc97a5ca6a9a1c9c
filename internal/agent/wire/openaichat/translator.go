// Package openaichat implements the OpenAI-style chat-completions format
// translator (C4): flat {role, content}, tool_calls/tool_call_id, one
// tool-role message per result, system prompt prepended, request key
// "messages", token key "max_tokens".
//
// Grounded on the teacher's internal/agent/providers/openai.go
// convertToOpenAIMessages/convertToOpenAITools, reusing
// github.com/sashabaranov/go-openai's wire types for JSON marshaling only.
package openaichat

import (
	"encoding/json"
	"fmt"

	sdk "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

type Translator struct{}

func New() *Translator { return &Translator{} }

func (t *Translator) EndpointPath(model string) string {
	return "/v1/chat/completions"
}

func (t *Translator) ConvertMessages(messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	wireMessages, err := ConvertMessages(messages, opts.SystemPrompt)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireMessages)
}

// ConvertMessages is exported so the responses-variant translator
// (openairesp) can reuse the same message projection and only re-key the
// envelope, matching original_source/ai/format/openai.rs's single source
// file handling both envelopes via a format flag.
func ConvertMessages(messages []agentcore.Message, system string) ([]sdk.ChatCompletionMessage, error) {
	result := make([]sdk.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, sdk.ChatCompletionMessage{
			Role:    sdk.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case agentcore.RoleTool:
			// OpenAI expects one message per tool result, not a single
			// aggregated message.
			for _, tr := range msg.ToolResults() {
				result = append(result, sdk.ChatCompletionMessage{
					Role:       sdk.ChatMessageRoleTool,
					Content:    tr.Output,
					ToolCallID: tr.ToolUseID,
				})
			}
		case agentcore.RoleAssistant:
			wireMsg := sdk.ChatCompletionMessage{
				Role:    sdk.ChatMessageRoleAssistant,
				Content: msg.Text(),
			}
			toolUses := msg.ToolUses()
			if len(toolUses) > 0 {
				wireMsg.ToolCalls = make([]sdk.ToolCall, 0, len(toolUses))
				for _, tu := range toolUses {
					if tu.ServerSide {
						continue
					}
					wireMsg.ToolCalls = append(wireMsg.ToolCalls, sdk.ToolCall{
						ID:   tu.ID,
						Type: sdk.ToolTypeFunction,
						Function: sdk.FunctionCall{
							Name:      tu.Name,
							Arguments: string(tu.Input),
						},
					})
				}
			}
			result = append(result, wireMsg)
		default: // user, system
			wireMsg := sdk.ChatCompletionMessage{Role: string(msg.Role)}
			images := imagesOf(msg)
			if len(images) > 0 {
				parts := make([]sdk.ChatMessagePart, 0, len(images)+1)
				if text := msg.Text(); text != "" {
					parts = append(parts, sdk.ChatMessagePart{
						Type: sdk.ChatMessagePartTypeText,
						Text: text,
					})
				}
				for _, img := range images {
					url := img.URL
					if img.Source == agentcore.ImageSourceBase64 {
						url = fmt.Sprintf("data:%s;base64,%s", img.MimeType, img.Data)
					}
					parts = append(parts, sdk.ChatMessagePart{
						Type: sdk.ChatMessagePartTypeImageURL,
						ImageURL: &sdk.ChatMessageImageURL{
							URL:    url,
							Detail: sdk.ImageURLDetailAuto,
						},
					})
				}
				wireMsg.MultiContent = parts
			} else {
				wireMsg.Content = msg.Text()
			}
			result = append(result, wireMsg)
		}
	}
	return result, nil
}

func imagesOf(msg agentcore.Message) []agentcore.Image {
	var out []agentcore.Image
	for _, b := range msg.Content {
		if img, ok := b.(agentcore.Image); ok {
			out = append(out, img)
		}
	}
	return out
}

func (t *Translator) ConvertTools(tools []agentcore.ToolDescriptor) (json.RawMessage, error) {
	wireTools, err := ConvertTools(tools)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireTools)
}

// ConvertTools is exported for reuse by the responses-variant translator,
// which re-shapes (not re-derives) these into its flat declaration form.
func ConvertTools(tools []agentcore.ToolDescriptor) ([]sdk.Tool, error) {
	result := make([]sdk.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if len(tool.InputSchema) > 0 {
			if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
				return nil, fmt.Errorf("openaichat translator: invalid schema for tool %q: %w", tool.Name, err)
			}
		} else {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result[i] = sdk.Tool{
			Type: sdk.ToolTypeFunction,
			Function: &sdk.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return result, nil
}

// BuildRequestBody assembles the full /v1/chat/completions POST body,
// including the GLM-style chat_template_args.enableThinking reasoning
// encoding when requested (grounded on original_source/ai/glm.rs).
func (t *Translator) BuildRequestBody(model string, messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	wireMessages, err := ConvertMessages(messages, opts.SystemPrompt)
	if err != nil {
		return nil, err
	}
	req := sdk.ChatCompletionRequest{
		Model:     model,
		Messages:  wireMessages,
		Stream:    opts.Streaming,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if len(opts.Tools) > 0 {
		wireTools, err := ConvertTools(opts.Tools)
		if err != nil {
			return nil, err
		}
		req.Tools = wireTools
	}

	base, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if opts.EnableThinking && opts.ContextDirectives["reasoning_format"] == string(agentcore.ReasoningChatTemplateArgs) {
		return withChatTemplateThinking(base)
	}
	return base, nil
}

// withChatTemplateThinking re-opens the marshaled body to splice in
// chat_template_args.enableThinking=true, since go-openai's request struct
// has no field for it.
func withChatTemplateThinking(body json.RawMessage) (json.RawMessage, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	m["chat_template_args"] = map[string]any{"enableThinking": true}
	return json.Marshal(m)
}
