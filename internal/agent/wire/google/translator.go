// Package google implements the Google-style format translator (C4):
// contents/parts with functionCall/functionResponse, images as inline_data
// or file_data, systemInstruction as a top-level field, and an endpoint
// path suffixed :streamGenerateContent.
//
// Grounded on the teacher's internal/agent/providers/google.go
// convertMessages/convertAttachment/convertTools, reusing
// google.golang.org/genai's wire types for JSON marshaling only.
package google

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	sdk "google.golang.org/genai"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

type Translator struct{}

func New() *Translator { return &Translator{} }

func (t *Translator) EndpointPath(model string) string {
	return fmt.Sprintf("/v1beta/models/%s:streamGenerateContent", model)
}

func (t *Translator) ConvertMessages(messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	contents, err := convertMessages(messages)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contents)
}

func convertMessages(messages []agentcore.Message) ([]*sdk.Content, error) {
	var result []*sdk.Content
	for _, msg := range messages {
		if msg.Role == agentcore.RoleSystem {
			continue // handled via systemInstruction
		}

		content := &sdk.Content{}
		switch msg.Role {
		case agentcore.RoleAssistant:
			content.Role = sdk.RoleModel
		default: // user, tool -> both remap to user per spec §4.3
			content.Role = sdk.RoleUser
		}

		for _, b := range msg.Content {
			switch v := b.(type) {
			case agentcore.Text:
				if v.TextValue != "" {
					content.Parts = append(content.Parts, &sdk.Part{Text: v.TextValue})
				}
			case agentcore.Image:
				part, err := convertImage(v)
				if err != nil {
					continue // malformed attachments are skipped, matching the teacher
				}
				content.Parts = append(content.Parts, part)
			case agentcore.ToolUse:
				if v.ServerSide {
					continue
				}
				var args map[string]any
				if len(v.Input) > 0 {
					if err := json.Unmarshal(v.Input, &args); err != nil {
						args = map[string]any{}
					}
				}
				content.Parts = append(content.Parts, &sdk.Part{
					FunctionCall: &sdk.FunctionCall{Name: v.Name, Args: args},
				})
			case agentcore.ToolResult:
				var response map[string]any
				if err := json.Unmarshal([]byte(v.Output), &response); err != nil {
					response = map[string]any{"result": v.Output, "error": v.IsError}
				}
				content.Parts = append(content.Parts, &sdk.Part{
					FunctionResponse: &sdk.FunctionResponse{
						Name:     toolNameForResult(messages, v.ToolUseID),
						Response: response,
					},
				})
			}
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, nil
}

// toolNameForResult looks back through the conversation for the ToolUse that
// a ToolResult answers, since Google's functionResponse parts are keyed by
// name rather than call id.
func toolNameForResult(messages []agentcore.Message, toolUseID string) string {
	for _, msg := range messages {
		for _, tu := range msg.ToolUses() {
			if tu.ID == toolUseID {
				return tu.Name
			}
		}
	}
	return ""
}

func convertImage(img agentcore.Image) (*sdk.Part, error) {
	if img.Source == agentcore.ImageSourceBase64 {
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, fmt.Errorf("google translator: decode inline image: %w", err)
		}
		return &sdk.Part{InlineData: &sdk.Blob{Data: data, MIMEType: img.MimeType}}, nil
	}
	return &sdk.Part{FileData: &sdk.FileData{FileURI: img.URL, MIMEType: img.MimeType}}, nil
}

func (t *Translator) ConvertTools(tools []agentcore.ToolDescriptor) (json.RawMessage, error) {
	wireTools := convertTools(tools)
	return json.Marshal(wireTools)
}

func convertTools(tools []agentcore.ToolDescriptor) []*sdk.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*sdk.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		var schema *sdk.Schema
		if len(tool.InputSchema) > 0 {
			schema = &sdk.Schema{}
			_ = json.Unmarshal(tool.InputSchema, schema)
		}
		decls = append(decls, &sdk.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schema,
		})
	}
	return []*sdk.Tool{{FunctionDeclarations: decls}}
}

type generateContentRequest struct {
	Contents          []*sdk.Content `json:"contents"`
	SystemInstruction *sdk.Content   `json:"systemInstruction,omitempty"`
	Tools             []*sdk.Tool    `json:"tools,omitempty"`
	GenerationConfig  *generationCfg `json:"generationConfig,omitempty"`
}

type generationCfg struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
}

func (t *Translator) BuildRequestBody(model string, messages []agentcore.Message, opts agentcore.CompletionOptions) (json.RawMessage, error) {
	contents, err := convertMessages(messages)
	if err != nil {
		return nil, err
	}
	req := generateContentRequest{
		Contents: contents,
		Tools:    convertTools(opts.Tools),
		GenerationConfig: &generationCfg{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
		},
	}
	if opts.SystemPrompt != "" {
		req.SystemInstruction = &sdk.Content{Parts: []*sdk.Part{{Text: opts.SystemPrompt}}}
	}
	return json.Marshal(req)
}
