package translate

import (
	"encoding/json"
	"fmt"
)

// ClaudeMessagesRequest is the Anthropic Messages request body.
type ClaudeMessagesRequest struct {
	Model         string             `json:"model,omitempty"`
	Messages      []ClaudeMessage    `json:"messages"`
	System        json.RawMessage    `json:"system,omitempty"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	Tools         []ClaudeTool       `json:"tools,omitempty"`
	ToolChoice    *ClaudeToolChoice  `json:"tool_choice,omitempty"`
	Thinking      *ClaudeThinking    `json:"thinking,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
}

// SystemText flattens the system prompt, which is either a string or an
// array of text blocks.
func (r *ClaudeMessagesRequest) SystemText() string {
	if len(r.System) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.System, &s); err == nil {
		return s
	}
	var blocks []ClaudeContentBlock
	if err := json.Unmarshal(r.System, &blocks); err != nil {
		return ""
	}
	out := ""
	for _, b := range blocks {
		if b.Type == "text" {
			if out != "" && b.Text != "" {
				out += "\n"
			}
			out += b.Text
		}
	}
	return out
}

// ClaudeMessage is one conversation turn.
type ClaudeMessage struct {
	Role    string        `json:"role"`
	Content ClaudeContent `json:"content"`
}

// ClaudeContent is the block list of a message. It unmarshals from either a
// bare string (shorthand for one text block) or an array of blocks, and
// always marshals as an array.
type ClaudeContent []ClaudeContentBlock

func (c *ClaudeContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ClaudeContent{{Type: "text", Text: s}}
		return nil
	}
	var blocks []ClaudeContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("message content must be a string or block array")
	}
	*c = blocks
	return nil
}

// ClaudeContentBlock is the union of Anthropic content block shapes; Type
// discriminates which fields are live.
type ClaudeContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// image and other media blocks ride through untouched
	Source json.RawMessage `json:"source,omitempty"`

	CacheControl *ClaudeCacheControl `json:"cache_control,omitempty"`
}

// ToolResultText flattens a tool_result block's content, which is either a
// string or an array of text blocks.
func (b *ClaudeContentBlock) ToolResultText() string {
	if len(b.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Content, &s); err == nil {
		return s
	}
	var blocks []ClaudeContentBlock
	if err := json.Unmarshal(b.Content, &blocks); err != nil {
		return string(b.Content)
	}
	out := ""
	for _, nested := range blocks {
		if nested.Type == "text" {
			if out != "" && nested.Text != "" {
				out += "\n"
			}
			out += nested.Text
		}
	}
	return out
}

// ClaudeCacheControl is a prompt-caching hint attached to a block or tool.
type ClaudeCacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

type ClaudeTool struct {
	Name         string              `json:"name"`
	Description  string              `json:"description,omitempty"`
	InputSchema  json.RawMessage     `json:"input_schema,omitempty"`
	CacheControl *ClaudeCacheControl `json:"cache_control,omitempty"`
}

// ClaudeToolChoice selects how the model may use tools: auto, any, none, or
// a specific tool by name.
type ClaudeToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// ClaudeThinking enables extended thinking with a token budget.
type ClaudeThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// ClaudeMessagesResponse is the non-streaming Messages response.
type ClaudeMessagesResponse struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	Role         string               `json:"role"`
	Model        string               `json:"model,omitempty"`
	Content      []ClaudeContentBlock `json:"content"`
	StopReason   string               `json:"stop_reason,omitempty"`
	StopSequence *string              `json:"stop_sequence,omitempty"`
	Usage        *ClaudeUsage         `json:"usage,omitempty"`
}

type ClaudeUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Streaming event payloads. Each SSE event carries one of these, selected by
// the event name / Type field.
type ClaudeStreamEvent struct {
	Type string `json:"type"`

	// message_start
	Message *ClaudeMessagesResponse `json:"message,omitempty"`

	// content_block_start
	Index        int                 `json:"index,omitempty"`
	ContentBlock *ClaudeContentBlock `json:"content_block,omitempty"`

	// content_block_delta
	Delta *ClaudeStreamDelta `json:"delta,omitempty"`

	// message_delta
	Usage *ClaudeUsage `json:"usage,omitempty"`

	// error
	Error *ClaudeError `json:"error,omitempty"`
}

// ClaudeStreamDelta is the delta union: text/input-json deltas on
// content_block_delta events, stop info on message_delta events.
type ClaudeStreamDelta struct {
	Type         string  `json:"type,omitempty"`
	Text         string  `json:"text,omitempty"`
	PartialJSON  string  `json:"partial_json,omitempty"`
	Thinking     string  `json:"thinking,omitempty"`
	StopReason   string  `json:"stop_reason,omitempty"`
	StopSequence *string `json:"stop_sequence,omitempty"`
}

// ClaudeError is the Anthropic error envelope payload.
type ClaudeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClaudeErrorEnvelope is the full error response body.
type ClaudeErrorEnvelope struct {
	Type  string      `json:"type"`
	Error ClaudeError `json:"error"`
}
