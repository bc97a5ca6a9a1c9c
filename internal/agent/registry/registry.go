// Package registry is the compile-time catalogue of known providers: base
// URL, auth style, model list, default model, custom headers, and reasoning
// format. It answers provider/model lookups in O(1) and resolves the
// OpenAI auth-dependent endpoint split at request-build time.
//
// Grounded on the defaults embedded in the teacher's
// internal/agent/providers/*.go constructors (e.g. AnthropicConfig's
// DefaultModel) and on original_source/ai/providers.rs.
package registry

import (
	"fmt"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// Registry is a read-only, process-wide table built once at startup.
type Registry struct {
	byID    map[agentcore.ProviderID]agentcore.ProviderDescriptor
	byModel map[string]agentcore.ProviderID // model id -> owning provider, last registration wins
}

// New builds a registry from an explicit list of descriptors. Use Default()
// for the built-in catalogue.
func New(descriptors []agentcore.ProviderDescriptor) *Registry {
	r := &Registry{
		byID:    make(map[agentcore.ProviderID]agentcore.ProviderDescriptor, len(descriptors)),
		byModel: make(map[string]agentcore.ProviderID),
	}
	for _, d := range descriptors {
		r.byID[d.ID] = d
		for _, m := range d.Models {
			r.byModel[m.ID] = d.ID
		}
	}
	return r
}

// Get returns the descriptor for a provider ID.
func (r *Registry) Get(id agentcore.ProviderID) (agentcore.ProviderDescriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// MustGet panics if the provider is unknown; only for startup wiring.
func (r *Registry) MustGet(id agentcore.ProviderID) agentcore.ProviderDescriptor {
	d, ok := r.byID[id]
	if !ok {
		panic(fmt.Sprintf("registry: unknown provider %q", id))
	}
	return d
}

// ModelFormat returns the ApiFormat for a known model id.
func (r *Registry) ModelFormat(modelID string) (agentcore.ApiFormat, bool) {
	pid, ok := r.byModel[modelID]
	if !ok {
		return "", false
	}
	d := r.byID[pid]
	m, ok := d.ModelByID(modelID)
	if !ok {
		return "", false
	}
	return m.ApiFormat, true
}

// OwnerOf returns which provider registered a model id.
func (r *Registry) OwnerOf(modelID string) (agentcore.ProviderID, bool) {
	pid, ok := r.byModel[modelID]
	return pid, ok
}

// Translate maps a model id from one provider to its nearest equivalent on
// another, via a static table, falling back to the target's default model.
// Best-effort, as spec.md §4.1 describes it.
func (r *Registry) Translate(sourceModel string, sourceProvider, targetProvider agentcore.ProviderID) string {
	if key, ok := crossProviderModelMap[translationKey{sourceProvider, sourceModel, targetProvider}]; ok {
		return key
	}
	if d, ok := r.byID[targetProvider]; ok {
		return d.DefaultModel
	}
	return sourceModel
}

type translationKey struct {
	fromProvider agentcore.ProviderID
	fromModel    string
	toProvider   agentcore.ProviderID
}

// crossProviderModelMap is a small, explicit table of known-equivalent
// models across providers. Entries are added as they're discovered; unlisted
// pairs fall back to the target provider's default model.
var crossProviderModelMap = map[translationKey]string{
	{agentcore.ProviderAnthropic, "claude-sonnet-4-20250514", agentcore.ProviderOpenAI}: "gpt-4.1",
	{agentcore.ProviderOpenAI, "gpt-4.1", agentcore.ProviderAnthropic}:                   "claude-sonnet-4-20250514",
	{agentcore.ProviderAnthropic, "claude-sonnet-4-20250514", agentcore.ProviderGoogle}:  "gemini-2.5-pro",
	{agentcore.ProviderGoogle, "gemini-2.5-pro", agentcore.ProviderAnthropic}:            "claude-sonnet-4-20250514",
}

// ResolveOpenAIFormat implements the "OpenAI has two endpoints" special
// case (spec.md §4.1): an OAuth-issued credential routes to the responses
// endpoint, an API key routes to chat-completions. The decision is made
// fresh on every call and never cached past the request.
func ResolveOpenAIFormat(hasOAuthToken bool) agentcore.ApiFormat {
	if hasOAuthToken {
		return agentcore.FormatOpenAIResponses
	}
	return agentcore.FormatOpenAIChat
}
