package agentcore

import (
	"encoding/json"
	"fmt"
)

// wireBlock is the on-disk/on-wire envelope for a Block: a kind tag plus
// the union of fields any variant needs. Used only for persistence
// (session store message content) — providers each have their own wire
// shapes built by the format translators.
type wireBlock struct {
	Kind BlockKind `json:"kind"`

	Text string `json:"text,omitempty"`

	Signature string `json:"signature,omitempty"`

	ImageMimeType string      `json:"image_mime_type,omitempty"`
	ImageSource   ImageSource `json:"image_source,omitempty"`
	ImageData     string      `json:"image_data,omitempty"`
	ImageURL      string      `json:"image_url,omitempty"`

	ToolUseID    string          `json:"tool_use_id,omitempty"`
	ToolName     string          `json:"tool_name,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolServerSide bool          `json:"tool_server_side,omitempty"`

	ToolResultFor string `json:"tool_result_for,omitempty"`
	ToolOutput    string `json:"tool_output,omitempty"`
	ToolIsError   bool   `json:"tool_is_error,omitempty"`
}

// MarshalBlocks encodes a message's content array for storage. Order is
// preserved; it is the caller's job to keep the result append-only per the
// message-immutability invariant.
func MarshalBlocks(blocks []Block) (json.RawMessage, error) {
	wire := make([]wireBlock, len(blocks))
	for i, b := range blocks {
		switch v := b.(type) {
		case Text:
			wire[i] = wireBlock{Kind: BlockText, Text: v.TextValue}
		case Thinking:
			wire[i] = wireBlock{Kind: BlockThinking, Text: v.TextValue, Signature: v.Signature}
		case Image:
			wire[i] = wireBlock{Kind: BlockImage, ImageMimeType: v.MimeType, ImageSource: v.Source, ImageData: v.Data, ImageURL: v.URL}
		case ToolUse:
			wire[i] = wireBlock{Kind: BlockToolUse, ToolUseID: v.ID, ToolName: v.Name, ToolInput: v.Input, ToolServerSide: v.ServerSide}
		case ToolResult:
			wire[i] = wireBlock{Kind: BlockToolResult, ToolResultFor: v.ToolUseID, ToolOutput: v.Output, ToolIsError: v.IsError}
		default:
			return nil, fmt.Errorf("agentcore: unknown block type %T", b)
		}
	}
	return json.Marshal(wire)
}

// UnmarshalBlocks is the inverse of MarshalBlocks.
func UnmarshalBlocks(data json.RawMessage) ([]Block, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wire []wireBlock
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("agentcore: decode blocks: %w", err)
	}
	blocks := make([]Block, len(wire))
	for i, w := range wire {
		switch w.Kind {
		case BlockText:
			blocks[i] = Text{TextValue: w.Text}
		case BlockThinking:
			blocks[i] = Thinking{TextValue: w.Text, Signature: w.Signature}
		case BlockImage:
			blocks[i] = Image{MimeType: w.ImageMimeType, Source: w.ImageSource, Data: w.ImageData, URL: w.ImageURL}
		case BlockToolUse:
			blocks[i] = ToolUse{ID: w.ToolUseID, Name: w.ToolName, Input: w.ToolInput, ServerSide: w.ToolServerSide}
		case BlockToolResult:
			blocks[i] = ToolResult{ToolUseID: w.ToolResultFor, Output: w.ToolOutput, IsError: w.ToolIsError}
		default:
			return nil, fmt.Errorf("agentcore: unknown block kind %q", w.Kind)
		}
	}
	return blocks, nil
}
