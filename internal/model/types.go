package model

import "encoding/json"

// Block type tags used in message content.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is one tagged element of a message's content.
// Text blocks carry Text; tool_use blocks carry ID, Name and Input;
// tool_result blocks carry ToolUseID and Content.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage builds a message with a single text block.
func TextMessage(role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// ToolResultMessage builds a user message carrying one tool result.
func ToolResultMessage(toolUseID, content string, isError bool) Message {
	return Message{Role: "user", Content: []ContentBlock{{
		Type:      BlockToolResult,
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}}}
}

// ToolSchema describes one tool offered to the model.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// InvokeRequest is the envelope sent to every backend. The sandbox
// backend writes it as one JSON object to the subprocess's stdin and
// the container backend writes it to the request file.
type InvokeRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []Message    `json:"messages"`
	Tools     []ToolSchema `json:"tools,omitempty"`
}

// InvokeResponse is the normalized response shape shared by all backends.
type InvokeResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

// FirstToolUse returns the first tool_use block in the response, if any.
func (r *InvokeResponse) FirstToolUse() (ContentBlock, bool) {
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			return b, true
		}
	}
	return ContentBlock{}, false
}

// ToolUseCount returns how many tool_use blocks the response contains.
func (r *InvokeResponse) ToolUseCount() int {
	n := 0
	for _, b := range r.Content {
		if b.Type == BlockToolUse {
			n++
		}
	}
	return n
}
