package translate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/llmrouter/llmrouter/internal/config"
)

// defaultMaxTokens is stamped on Anthropic requests when the client supplied
// no limit; the Messages API requires one.
const defaultMaxTokens = 4096

// Request translates a request body between wire formats and stamps the
// upstream model id. Same-format translation is a rewrite of the model field
// only.
func Request(body []byte, source, target config.Format, model string) ([]byte, error) {
	switch {
	case source == config.FormatOpenAI && target == config.FormatOpenAI:
		return rewriteModel(body, model)
	case source == config.FormatClaude && target == config.FormatClaude:
		return rewriteModel(body, model)
	case source == config.FormatOpenAI && target == config.FormatClaude:
		var req OpenAIChatRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("parse openai request: %w", err)
		}
		out, err := OpenAIRequestToClaude(&req)
		if err != nil {
			return nil, err
		}
		out.Model = model
		return json.Marshal(out)
	case source == config.FormatClaude && target == config.FormatOpenAI:
		var req ClaudeMessagesRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("parse claude request: %w", err)
		}
		out, err := ClaudeRequestToOpenAI(&req)
		if err != nil {
			return nil, err
		}
		out.Model = model
		return json.Marshal(out)
	default:
		return nil, fmt.Errorf("unsupported translation %s -> %s", source, target)
	}
}

// rewriteModel replaces the top-level model field, leaving every other byte
// of the body alone.
func rewriteModel(body []byte, model string) ([]byte, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	raw, _ := json.Marshal(model)
	obj["model"] = raw
	return json.Marshal(obj)
}

// OpenAIRequestToClaude maps a chat-completions request onto the Messages
// shape. Known lossy fields: n, stream_options, user, non-text content parts
// other than images.
func OpenAIRequestToClaude(req *OpenAIChatRequest) (*ClaudeMessagesRequest, error) {
	out := &ClaudeMessagesRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}

	switch {
	case req.MaxCompletionTokens != nil:
		out.MaxTokens = *req.MaxCompletionTokens
	case req.MaxTokens != nil:
		out.MaxTokens = *req.MaxTokens
	default:
		out.MaxTokens = defaultMaxTokens
	}

	if len(req.Stop) > 0 {
		var one string
		if err := json.Unmarshal(req.Stop, &one); err == nil {
			out.StopSequences = []string{one}
		} else {
			var many []string
			if err := json.Unmarshal(req.Stop, &many); err == nil {
				out.StopSequences = many
			}
		}
	}

	var systemParts []string
	for i := range req.Messages {
		m := &req.Messages[i]
		switch m.Role {
		case "system", "developer":
			systemParts = append(systemParts, m.ContentText())
		case "tool":
			// A tool turn becomes a user message holding a tool_result block.
			block := ClaudeContentBlock{
				Type:      "tool_result",
				ToolUseID: m.ToolCallID,
				Content:   stringContent(m.ContentText()),
			}
			// Consecutive tool turns merge into one user message, as the
			// Messages API rejects adjacent same-role messages.
			if n := len(out.Messages); n > 0 && out.Messages[n-1].Role == "user" &&
				len(out.Messages[n-1].Content) > 0 && out.Messages[n-1].Content[0].Type == "tool_result" {
				out.Messages[n-1].Content = append(out.Messages[n-1].Content, block)
			} else {
				out.Messages = append(out.Messages, ClaudeMessage{Role: "user", Content: ClaudeContent{block}})
			}
		case "assistant":
			var blocks ClaudeContent
			if text := m.ContentText(); text != "" {
				blocks = append(blocks, ClaudeContentBlock{Type: "text", Text: text})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) || len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, ClaudeContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: input,
				})
			}
			if len(blocks) == 0 {
				blocks = ClaudeContent{{Type: "text", Text: ""}}
			}
			out.Messages = append(out.Messages, ClaudeMessage{Role: "assistant", Content: blocks})
		default: // user
			out.Messages = append(out.Messages, ClaudeMessage{
				Role:    "user",
				Content: openAIContentToClaudeBlocks(m.Content),
			})
		}
	}
	if len(systemParts) > 0 {
		out.System = stringContent(strings.Join(systemParts, "\n"))
	}

	for _, t := range req.Tools {
		if t.Type != "" && t.Type != "function" {
			continue
		}
		out.Tools = append(out.Tools, ClaudeTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	out.ToolChoice = openAIToolChoiceToClaude(req.ToolChoice)

	if effort := EffortFromOpenAIRequest(req); effort != EffortNone {
		ApplyEffortToClaude(out, effort)
	}
	return out, nil
}

func openAIContentToClaudeBlocks(raw json.RawMessage) ClaudeContent {
	if len(raw) == 0 {
		return ClaudeContent{{Type: "text", Text: ""}}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ClaudeContent{{Type: "text", Text: s}}
	}
	var parts []OpenAIContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ClaudeContent{{Type: "text", Text: ""}}
	}
	var blocks ClaudeContent
	for _, p := range parts {
		if p.Type == "text" || p.Type == "" {
			blocks = append(blocks, ClaudeContentBlock{Type: "text", Text: p.Text})
		}
		// image_url and other modalities are dropped: the Messages image
		// block needs base64 source data the URL form does not carry.
	}
	if len(blocks) == 0 {
		blocks = ClaudeContent{{Type: "text", Text: ""}}
	}
	return blocks
}

func openAIToolChoiceToClaude(raw json.RawMessage) *ClaudeToolChoice {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch s {
		case "auto":
			return &ClaudeToolChoice{Type: "auto"}
		case "required":
			return &ClaudeToolChoice{Type: "any"}
		case "none":
			return &ClaudeToolChoice{Type: "none"}
		}
		return nil
	}
	var obj struct {
		Type     string `json:"type"`
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Function.Name != "" {
		return &ClaudeToolChoice{Type: "tool", Name: obj.Function.Name}
	}
	return nil
}

// ClaudeRequestToOpenAI maps a Messages request onto the chat-completions
// shape. Known lossy fields: top_k, tool cache_control hints, thinking
// signatures, metadata.
func ClaudeRequestToOpenAI(req *ClaudeMessagesRequest) (*OpenAIChatRequest, error) {
	out := &OpenAIChatRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
	}
	if req.MaxTokens > 0 {
		v := req.MaxTokens
		out.MaxTokens = &v
	}
	if len(req.StopSequences) > 0 {
		out.Stop, _ = json.Marshal(req.StopSequences)
	}

	if sys := req.SystemText(); sys != "" {
		out.Messages = append(out.Messages, OpenAIMessage{Role: "system", Content: stringContent(sys)})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msg := OpenAIMessage{Role: "assistant"}
			var text string
			for _, b := range m.Content {
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
				// thinking blocks are dropped going to openai
			}
			if text != "" || len(msg.ToolCalls) == 0 {
				msg.Content = stringContent(text)
			}
			out.Messages = append(out.Messages, msg)
		default: // user
			var text string
			for _, b := range m.Content {
				switch b.Type {
				case "tool_result":
					out.Messages = append(out.Messages, OpenAIMessage{
						Role:       "tool",
						ToolCallID: b.ToolUseID,
						Content:    stringContent(b.ToolResultText()),
					})
				case "text":
					if text != "" && b.Text != "" {
						text += "\n"
					}
					text += b.Text
				}
			}
			if text != "" {
				out.Messages = append(out.Messages, OpenAIMessage{Role: "user", Content: stringContent(text)})
			}
		}
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, OpenAITool{
			Type: "function",
			Function: OpenAIFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Type {
		case "auto":
			out.ToolChoice = json.RawMessage(`"auto"`)
		case "any":
			out.ToolChoice = json.RawMessage(`"required"`)
		case "none":
			out.ToolChoice = json.RawMessage(`"none"`)
		case "tool":
			raw, _ := json.Marshal(map[string]any{
				"type":     "function",
				"function": map[string]string{"name": req.ToolChoice.Name},
			})
			out.ToolChoice = raw
		}
	}

	if effort := EffortFromClaudeRequest(req); effort != EffortNone {
		ApplyEffortToOpenAI(out, effort, req.Model)
	}
	return out, nil
}
