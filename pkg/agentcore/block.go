// Package agentcore holds the provider-agnostic domain model shared by every
// translator, parser, and store in the agent runtime: messages, content
// blocks, tool descriptors, usage accounting, and finish reasons.
package agentcore

import "encoding/json"

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSystem    Role = "system"
)

// BlockKind discriminates the Block tagged union.
type BlockKind string

const (
	BlockText       BlockKind = "text"
	BlockThinking   BlockKind = "thinking"
	BlockImage      BlockKind = "image"
	BlockToolUse    BlockKind = "tool_use"
	BlockToolResult BlockKind = "tool_result"
)

// Block is one element of a message's content array. Exactly one of the
// accessor groups below is meaningful, selected by Kind(); callers should
// type-switch or check Kind before reading fields.
type Block interface {
	Kind() BlockKind
}

// Text is ordinary assistant or user text.
type Text struct {
	TextValue string
}

func (Text) Kind() BlockKind { return BlockText }

// Thinking carries opaque reasoning tokens from providers that expose them.
// Signature must be round-tripped unchanged while the enclosing assistant
// turn still has unresolved tool uses (see the Anthropic translator's
// convertMessages in internal/agent/wire/anthropic).
type Thinking struct {
	TextValue string
	Signature string // empty if the provider did not issue one
}

func (Thinking) Kind() BlockKind { return BlockThinking }

// ImageSource distinguishes inline base64 payloads from remote URLs.
type ImageSource string

const (
	ImageSourceBase64 ImageSource = "base64"
	ImageSourceURL    ImageSource = "url"
)

// Image is an attached image, inline or by reference.
type Image struct {
	MimeType string
	Source   ImageSource
	Data     string // base64 payload when Source==ImageSourceBase64
	URL      string // remote reference when Source==ImageSourceURL
}

func (Image) Kind() BlockKind { return BlockImage }

// ToolUse is a model-issued request to invoke a tool. ServerSide marks tool
// uses the provider executed itself (e.g. hosted web search) that never
// reach the local tool-execution engine; they arrive from the stream already
// paired with a ToolResult and are recorded as history without dispatch.
type ToolUse struct {
	ID         string
	Name       string
	Input      json.RawMessage
	ServerSide bool
}

func (ToolUse) Kind() BlockKind { return BlockToolUse }

// ToolResult answers a ToolUse by ID.
type ToolResult struct {
	ToolUseID string
	Output    string
	IsError   bool
}

func (ToolResult) Kind() BlockKind { return BlockToolResult }

// Message is role plus an ordered content array. Identity is its position in
// the session log (Seq), assigned by the store on commit; a zero Seq means
// "not yet persisted."
type Message struct {
	Seq     int64
	Role    Role
	Content []Block
}

// ToolUses returns the ToolUse blocks in the message, in order.
func (m Message) ToolUses() []ToolUse {
	var out []ToolUse
	for _, b := range m.Content {
		if tu, ok := b.(ToolUse); ok {
			out = append(out, tu)
		}
	}
	return out
}

// ToolResults returns the ToolResult blocks in the message, in order.
func (m Message) ToolResults() []ToolResult {
	var out []ToolResult
	for _, b := range m.Content {
		if tr, ok := b.(ToolResult); ok {
			out = append(out, tr)
		}
	}
	return out
}

// Text concatenates every Text block's value, in order.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if t, ok := b.(Text); ok {
			out += t.TextValue
		}
	}
	return out
}

// HasUnresolvedToolUses reports whether m is an assistant message with at
// least one ToolUse not yet answered within m itself (answers normally live
// in the *next* tool-role message, so for an assistant message this is true
// whenever it contains any non-server-side ToolUse block).
func (m Message) HasUnresolvedToolUses() bool {
	if m.Role != RoleAssistant {
		return false
	}
	for _, b := range m.Content {
		if tu, ok := b.(ToolUse); ok && !tu.ServerSide {
			return true
		}
	}
	return false
}
