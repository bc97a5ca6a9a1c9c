package registry

import "github.com/haasonsaas/nexus-core/pkg/agentcore"

// Default returns the built-in provider catalogue. Endpoint, default model,
// and model catalogue values are grounded on the teacher's constructors:
// AnthropicConfig{DefaultModel: "claude-sonnet-4-20250514"} in
// internal/agent/providers/anthropic.go, the OpenAI client default model in
// openai.go, and the Gemini model ids used in google.go's examples/tests.
func Default() *Registry {
	return New([]agentcore.ProviderDescriptor{
		{
			ID:          agentcore.ProviderAnthropic,
			DisplayName: "Anthropic",
			BaseURL:     "https://api.anthropic.com",
			StorageKey:  "anthropic",
			AuthHeader:  agentcore.AuthHeaderXApiKey,
			AuthMethods: []string{"api_key"},
			DefaultModel: "claude-sonnet-4-20250514",
			Models: []agentcore.ModelDescriptor{
				{ID: "claude-sonnet-4-20250514", ApiFormat: agentcore.FormatAnthropic, ReasoningFormat: agentcore.ReasoningAnthropicBudget, SupportsVision: true, ContextSize: 200000},
				{ID: "claude-opus-4-20250514", ApiFormat: agentcore.FormatAnthropic, ReasoningFormat: agentcore.ReasoningAnthropicBudget, SupportsVision: true, ContextSize: 200000},
				{ID: "claude-haiku-4-20250514", ApiFormat: agentcore.FormatAnthropic, SupportsVision: true, ContextSize: 200000, FastModel: true},
			},
		},
		{
			ID:          agentcore.ProviderOpenAI,
			DisplayName: "OpenAI",
			BaseURL:     "https://api.openai.com",
			StorageKey:  "openai",
			AuthHeader:  agentcore.AuthHeaderBearer,
			AuthMethods: []string{"api_key", "oauth"},
			DefaultModel: "gpt-4.1",
			Models: []agentcore.ModelDescriptor{
				{ID: "gpt-4.1", ApiFormat: agentcore.FormatOpenAIChat, SupportsVision: true, ContextSize: 128000},
				{ID: "o4-mini", ApiFormat: agentcore.FormatOpenAIChat, ReasoningFormat: agentcore.ReasoningContentField, ContextSize: 128000, FastModel: true},
				{ID: "gpt-4.1-mini", ApiFormat: agentcore.FormatOpenAIChat, SupportsVision: true, ContextSize: 128000, FastModel: true},
			},
		},
		{
			ID:          agentcore.ProviderGoogle,
			DisplayName: "Google",
			BaseURL:     "https://generativelanguage.googleapis.com",
			StorageKey:  "google",
			AuthHeader:  agentcore.AuthHeaderXApiKey,
			AuthMethods: []string{"api_key"},
			DefaultModel: "gemini-2.5-pro",
			Models: []agentcore.ModelDescriptor{
				{ID: "gemini-2.5-pro", ApiFormat: agentcore.FormatGoogle, SupportsVision: true, ContextSize: 1000000},
				{ID: "gemini-2.5-flash", ApiFormat: agentcore.FormatGoogle, SupportsVision: true, ContextSize: 1000000, FastModel: true},
			},
		},
		{
			ID:          agentcore.ProviderBedrock,
			DisplayName: "Amazon Bedrock",
			BaseURL:     "https://bedrock-runtime.us-east-1.amazonaws.com",
			StorageKey:  "bedrock",
			AuthHeader:  agentcore.AuthHeaderBearer,
			AuthMethods: []string{"aws_sigv4"},
			DefaultModel: "anthropic.claude-sonnet-4-20250514-v1:0",
			Models: []agentcore.ModelDescriptor{
				{ID: "anthropic.claude-sonnet-4-20250514-v1:0", ApiFormat: agentcore.FormatBedrockAnthropic, ReasoningFormat: agentcore.ReasoningAnthropicBudget, SupportsVision: true, ContextSize: 200000},
			},
		},
		{
			// GLM-family model used only to exercise the chat-template-args
			// reasoning encoding; routed through the openai-chat dialect
			// since it speaks an OpenAI-compatible wire format.
			ID:          agentcore.ProviderID("glm"),
			DisplayName: "Zhipu GLM",
			BaseURL:     "https://open.bigmodel.cn/api/paas/v4",
			StorageKey:  "glm",
			AuthHeader:  agentcore.AuthHeaderBearer,
			AuthMethods: []string{"api_key"},
			DefaultModel: "glm-4.5",
			Models: []agentcore.ModelDescriptor{
				{ID: "glm-4.5", ApiFormat: agentcore.FormatOpenAIChat, ReasoningFormat: agentcore.ReasoningChatTemplateArgs, ContextSize: 128000},
			},
		},
	})
}
