package sse

import (
	"encoding/json"
	"fmt"

	"github.com/haasonsaas/nexus-core/pkg/agentcore"
)

// Accumulator collects a single tool call's streamed argument fragments and
// validates the assembled JSON once the call ends. One Accumulator exists
// per in-flight tool_use block; the parser owns its lifecycle (new on
// ToolCallStart, fed on ToolCallArgsDelta, finalized on ToolCallEnd).
type Accumulator struct {
	id, name string
	buf      []byte
}

// NewAccumulator starts tracking a tool call announced by a ToolCallStart
// event.
func NewAccumulator(id, name string) *Accumulator {
	return &Accumulator{id: id, name: name}
}

// Feed appends one argument fragment.
func (a *Accumulator) Feed(delta string) {
	a.buf = append(a.buf, delta...)
}

// Finish validates the accumulated bytes as JSON and returns the completed
// ToolCall. An empty accumulation (some providers omit arguments entirely
// for no-parameter tools) is normalized to "{}" rather than treated as
// invalid.
func (a *Accumulator) Finish() (agentcore.ToolCall, error) {
	raw := a.buf
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return agentcore.ToolCall{}, fmt.Errorf("sse: tool call %q (%s) produced invalid JSON arguments: %s", a.id, a.name, raw)
	}
	return agentcore.ToolCall{ID: a.id, Name: a.name, Input: json.RawMessage(raw)}, nil
}
