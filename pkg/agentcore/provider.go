package agentcore

// ProviderID is a closed enum of supported provider identifiers. New
// providers are added here and given an entry in internal/agent/registry.
type ProviderID string

const (
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
	ProviderGoogle    ProviderID = "google"
	ProviderBedrock   ProviderID = "bedrock"
)

// ApiFormat selects which of the format translators (C4) builds request
// bodies and which SSE parser (C6) reads the response for a given model.
type ApiFormat string

const (
	FormatAnthropic         ApiFormat = "anthropic"
	FormatOpenAIChat        ApiFormat = "openai_chat"
	FormatOpenAIResponses   ApiFormat = "openai_responses"
	FormatGoogle            ApiFormat = "google"
	FormatBedrockAnthropic  ApiFormat = "bedrock_anthropic"
)

// AuthHeaderStyle is how the credential is attached to outbound requests.
type AuthHeaderStyle string

const (
	AuthHeaderXApiKey AuthHeaderStyle = "x-api-key"
	AuthHeaderBearer  AuthHeaderStyle = "bearer"
)

// ReasoningFormat selects which of the three thinking/reasoning wire
// encodings a model uses, or none.
type ReasoningFormat string

const (
	ReasoningNone             ReasoningFormat = ""
	ReasoningAnthropicBudget  ReasoningFormat = "anthropic_budget"
	ReasoningChatTemplateArgs ReasoningFormat = "chat_template_args"
	ReasoningContentField     ReasoningFormat = "reasoning_content_field"
)

// ModelDescriptor is one entry in a provider's model catalogue.
type ModelDescriptor struct {
	ID              string
	ApiFormat       ApiFormat
	ReasoningFormat ReasoningFormat
	SupportsVision  bool
	ContextSize     int
	// FastModel marks a cheap/quick model suited to title and summarizer
	// helper calls (C11). If several models of a provider are marked,
	// FastModelID returns the first one in catalogue order.
	FastModel bool
}

// ProviderDescriptor is the static metadata the registry (C2) exposes for
// one provider.
type ProviderDescriptor struct {
	ID             ProviderID
	DisplayName    string
	BaseURL        string
	StorageKey     string
	AuthHeader     AuthHeaderStyle
	AuthMethods    []string // e.g. "api_key", "oauth"
	DefaultModel   string
	Models         []ModelDescriptor
	CustomHeaders  map[string]string
	// PreserveAllThinking overrides the default "only the most recent
	// unresolved-tool-use turn keeps its thinking blocks" rule.
	PreserveAllThinking bool
}

// ModelByID returns the model descriptor with the given ID, if known.
func (d ProviderDescriptor) ModelByID(id string) (ModelDescriptor, bool) {
	for _, m := range d.Models {
		if m.ID == id {
			return m, true
		}
	}
	return ModelDescriptor{}, false
}

// FastModelID returns the designated cheap/fast model for title and
// summarizer helper calls, falling back to DefaultModel if none is marked.
func (d ProviderDescriptor) FastModelID() string {
	for _, m := range d.Models {
		if m.FastModel {
			return m.ID
		}
	}
	return d.DefaultModel
}

// CompletionOptions carries the per-call knobs the format translators read.
type CompletionOptions struct {
	MaxTokens          int
	SystemPrompt       string
	Tools              []ToolDescriptor
	Temperature        *float64
	Streaming          bool
	EnableThinking     bool
	ThinkingBudget     int
	CacheEnabled       bool
	ContextDirectives  map[string]string
}
