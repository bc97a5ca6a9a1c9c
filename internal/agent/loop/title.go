package loop

import (
	"context"
	"strings"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// titleMaxTokens caps every C11 helper call; these are cheap, short
// completions, never full turns.
const titleMaxTokens = 30

const titleSystemPrompt = "Generate a short title for this conversation. " +
	"Respond with the title only: 3 to 6 words, Title Case, no trailing " +
	"punctuation, no filler prefix like 'Conversation about' or 'Title:'."

const summarizeSystemPrompt = "Summarize this conversation so it can be " +
	"continued in a new session. Preserve key decisions, file paths, and " +
	"open next steps. Be concise."

// GenerateTitle builds a short title (spec §4.10) for a session's opening
// message via the provider's FastModel. On any provider/transport failure
// it falls back to a local truncation of the input rather than leaving the
// session untitled.
func (l *Loop) GenerateTitle(ctx context.Context, provider agentcore.ProviderID, firstUserMessage string) (string, error) {
	return l.runHelperPrompt(ctx, provider, titleSystemPrompt, firstUserMessage)
}

// GeneratePinchTitle builds a continuation ("pinch") title: the same
// contract as GenerateTitle, but folding in a hint about where the
// conversation is headed next so the title reflects the new direction
// rather than restating the original topic.
func (l *Loop) GeneratePinchTitle(ctx context.Context, provider agentcore.ProviderID, summary, nextDirection string) (string, error) {
	prompt := summary
	if nextDirection != "" {
		prompt += "\n\nThe conversation is now continuing toward: " + nextDirection
	}
	return l.runHelperPrompt(ctx, provider, titleSystemPrompt, prompt)
}

// Summarize produces a compaction summary of history for a session about to
// be pinched or trimmed, via the same FastModel/tool-less helper path.
func (l *Loop) Summarize(ctx context.Context, provider agentcore.ProviderID, history []agentcore.Message) (string, error) {
	var sb strings.Builder
	for _, m := range history {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Text())
		sb.WriteString("\n")
	}
	return l.runHelperPrompt(ctx, provider, summarizeSystemPrompt, sb.String())
}

// runHelperPrompt drives a single tool-less turn through RunTurn using the
// provider's FastModel and a titleMaxTokens cap, then falls back to a local
// truncation of userText if the call fails for any reason — matching spec
// §4.10's requirement that title/summarizer failures never block the
// session operation that triggered them.
func (l *Loop) runHelperPrompt(ctx context.Context, provider agentcore.ProviderID, systemPrompt, userText string) (string, error) {
	descriptor, ok := l.Registry.Get(provider)
	if !ok {
		return truncateFallback(userText), nil
	}
	model := descriptor.FastModelID()

	req := TurnRequest{
		SessionID: "helper:" + string(provider) + ":" + model,
		Provider:  provider,
		Model:     model,
		UserMessage: &agentcore.Message{
			Role:    agentcore.RoleUser,
			Content: []agentcore.Block{agentcore.Text{TextValue: userText}},
		},
		Options: agentcore.CompletionOptions{
			MaxTokens:    titleMaxTokens,
			SystemPrompt: systemPrompt,
		},
	}

	result, err := l.RunTurn(ctx, req, nil)
	if err != nil {
		return truncateFallback(userText), nil
	}
	for _, m := range result.NewMessages {
		if m.Role == agentcore.RoleAssistant {
			if text := strings.TrimSpace(m.Text()); text != "" {
				return text, nil
			}
		}
	}
	return truncateFallback(userText), nil
}

// truncateFallback builds a short title-ish string locally when a provider
// call cannot be completed, per spec §4.10's fallback truncation function.
func truncateFallback(s string) string {
	words := strings.Fields(s)
	if len(words) > 6 {
		words = words[:6]
	}
	out := strings.Join(words, " ")
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}
