package translate

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
)

// Response translates a buffered upstream response body back into the
// client's wire format. Same-format responses pass through untouched.
func Response(body []byte, upstream, client config.Format) ([]byte, error) {
	if upstream == client {
		return body, nil
	}
	switch {
	case upstream == config.FormatClaude && client == config.FormatOpenAI:
		var resp ClaudeMessagesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse claude response: %w", err)
		}
		return json.Marshal(ClaudeResponseToOpenAI(&resp))
	case upstream == config.FormatOpenAI && client == config.FormatClaude:
		var resp OpenAIChatResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse openai response: %w", err)
		}
		return json.Marshal(OpenAIResponseToClaude(&resp))
	default:
		return nil, fmt.Errorf("unsupported translation %s -> %s", upstream, client)
	}
}

// Stop-reason mapping between the two formats.
func claudeStopToOpenAI(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	case "":
		return ""
	default:
		return "stop"
	}
}

func openAIFinishToClaude(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	case "":
		return ""
	default:
		return "end_turn"
	}
}

// ClaudeResponseToOpenAI maps a Messages response onto the chat-completions
// shape. Thinking blocks are dropped; text blocks merge into one content
// string.
func ClaudeResponseToOpenAI(resp *ClaudeMessagesResponse) *OpenAIChatResponse {
	msg := OpenAIResponseMessage{Role: "assistant"}
	var text string
	for _, b := range resp.Content {
		switch b.Type {
		case "text":
			if text != "" && b.Text != "" {
				text += "\n"
			}
			text += b.Text
		case "tool_use":
			args := string(b.Input)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, OpenAIToolCall{
				ID:   b.ID,
				Type: "function",
				Function: OpenAIFunctionCall{
					Name:      b.Name,
					Arguments: args,
				},
			})
		}
	}
	if text != "" || len(msg.ToolCalls) == 0 {
		msg.Content = &text
	}

	out := &OpenAIChatResponse{
		ID:      responseID(resp.ID, "chatcmpl"),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   resp.Model,
		Choices: []OpenAIChoice{{
			Message:      msg,
			FinishReason: claudeStopToOpenAI(resp.StopReason),
		}},
	}
	if resp.Usage != nil {
		out.Usage = &OpenAIUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		}
	}
	return out
}

// OpenAIResponseToClaude maps a chat-completions response onto the Messages
// shape, taking the first choice.
func OpenAIResponseToClaude(resp *OpenAIChatResponse) *ClaudeMessagesResponse {
	out := &ClaudeMessagesResponse{
		ID:    responseID(resp.ID, "msg"),
		Type:  "message",
		Role:  "assistant",
		Model: resp.Model,
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		if choice.Message.Content != nil && *choice.Message.Content != "" {
			out.Content = append(out.Content, ClaudeContentBlock{Type: "text", Text: *choice.Message.Content})
		}
		for _, tc := range choice.Message.ToolCalls {
			input := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(input) || len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			out.Content = append(out.Content, ClaudeContentBlock{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Input: input,
			})
		}
		out.StopReason = openAIFinishToClaude(choice.FinishReason)
	}
	if len(out.Content) == 0 {
		out.Content = []ClaudeContentBlock{{Type: "text", Text: ""}}
	}
	if resp.Usage != nil {
		out.Usage = &ClaudeUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}
	return out
}

// responseID keeps the upstream id when present, else synthesizes one with
// the target format's conventional prefix.
func responseID(id, prefix string) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}
