package loop

import (
	"encoding/json"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// turnAccumulator reassembles one provider call's SSE event stream into an
// assistant agentcore.Message, preserving content-block order as blocks
// open rather than the order they close in (tool calls can close out of
// order under some dialects; text/thinking runs interleave with them).
type turnAccumulator struct {
	content []agentcore.Block

	toolIndex   map[string]int
	openOrder   []string
	closedTools map[string]bool
}

func newTurnAccumulator() *turnAccumulator {
	return &turnAccumulator{
		toolIndex:   map[string]int{},
		closedTools: map[string]bool{},
	}
}

func (a *turnAccumulator) appendText(delta string) {
	if delta == "" {
		return
	}
	if n := len(a.content); n > 0 {
		if t, ok := a.content[n-1].(agentcore.Text); ok {
			a.content[n-1] = agentcore.Text{TextValue: t.TextValue + delta}
			return
		}
	}
	a.content = append(a.content, agentcore.Text{TextValue: delta})
}

func (a *turnAccumulator) appendThinking(delta string) {
	if delta == "" {
		return
	}
	if n := len(a.content); n > 0 {
		if t, ok := a.content[n-1].(agentcore.Thinking); ok {
			a.content[n-1] = agentcore.Thinking{TextValue: t.TextValue + delta, Signature: t.Signature}
			return
		}
	}
	a.content = append(a.content, agentcore.Thinking{TextValue: delta})
}

// setSignature attaches a thinking signature to the most recently opened
// Thinking block, matching Anthropic's signature_delta arriving after the
// thinking text it covers.
func (a *turnAccumulator) setSignature(sig string) {
	for i := len(a.content) - 1; i >= 0; i-- {
		if t, ok := a.content[i].(agentcore.Thinking); ok {
			a.content[i] = agentcore.Thinking{TextValue: t.TextValue, Signature: sig}
			return
		}
	}
}

func (a *turnAccumulator) startTool(id, name string) {
	if _, exists := a.toolIndex[id]; exists {
		return
	}
	idx := len(a.content)
	a.content = append(a.content, agentcore.ToolUse{ID: id, Name: name})
	a.toolIndex[id] = idx
	a.openOrder = append(a.openOrder, id)
}

// endTool fills in the final, complete JSON arguments for a tool call
// whose start was already recorded. argsJSON is the Accumulator's finished
// buffer, already validated as parseable JSON by the sse layer.
func (a *turnAccumulator) endTool(id, argsJSON string) {
	idx, ok := a.toolIndex[id]
	if !ok {
		return
	}
	tu := a.content[idx].(agentcore.ToolUse)
	tu.Input = json.RawMessage(argsJSON)
	a.content[idx] = tu
	a.closedTools[id] = true
}

// hasUnclosedTool reports whether any tool call was started but never
// finished before the stream's Finish event — a malformed stream per spec
// §4.8, handled as a protocol error rather than silently dropped.
func (a *turnAccumulator) hasUnclosedTool() bool {
	for _, id := range a.openOrder {
		if !a.closedTools[id] {
			return true
		}
	}
	return false
}

func (a *turnAccumulator) toMessage() agentcore.Message {
	return agentcore.Message{Role: agentcore.RoleAssistant, Content: a.content}
}
