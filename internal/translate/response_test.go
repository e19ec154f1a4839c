package translate

import (
	"encoding/json"
	"testing"

	"github.com/llmrouter/llmrouter/internal/config"
)

func TestClaudeResponseToOpenAI(t *testing.T) {
	body := []byte(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4",
		"content": [
			{"type": "text", "text": "It is sunny."},
			{"type": "tool_use", "id": "toolu_9", "name": "notify", "input": {"level": 2}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 25}
	}`)
	out, err := Response(body, config.FormatClaude, config.FormatOpenAI)
	if err != nil {
		t.Fatal(err)
	}
	var resp OpenAIChatResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "msg_01" || resp.Object != "chat.completion" {
		t.Errorf("envelope = %s/%s", resp.ID, resp.Object)
	}
	choice := resp.Choices[0]
	if choice.Message.Content == nil || *choice.Message.Content != "It is sunny." {
		t.Errorf("content = %v", choice.Message.Content)
	}
	if len(choice.Message.ToolCalls) != 1 || choice.Message.ToolCalls[0].ID != "toolu_9" {
		t.Fatalf("toolCalls = %+v", choice.Message.ToolCalls)
	}
	var args map[string]float64
	if err := json.Unmarshal([]byte(choice.Message.ToolCalls[0].Function.Arguments), &args); err != nil || args["level"] != 2 {
		t.Errorf("arguments = %q", choice.Message.ToolCalls[0].Function.Arguments)
	}
	if choice.FinishReason != "tool_calls" {
		t.Errorf("finishReason = %s", choice.FinishReason)
	}
	if resp.Usage.PromptTokens != 10 || resp.Usage.CompletionTokens != 25 || resp.Usage.TotalTokens != 35 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIResponseToClaude(t *testing.T) {
	body := []byte(`{
		"id": "chatcmpl-7",
		"object": "chat.completion",
		"model": "gpt-4o",
		"choices": [{
			"index": 0,
			"message": {"role": "assistant", "content": "done"},
			"finish_reason": "length"
		}],
		"usage": {"prompt_tokens": 4, "completion_tokens": 8, "total_tokens": 12}
	}`)
	out, err := Response(body, config.FormatOpenAI, config.FormatClaude)
	if err != nil {
		t.Fatal(err)
	}
	var resp ClaudeMessagesResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Type != "message" || resp.Role != "assistant" {
		t.Errorf("envelope = %+v", resp)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "done" {
		t.Errorf("content = %+v", resp.Content)
	}
	if resp.StopReason != "max_tokens" {
		t.Errorf("stopReason = %s", resp.StopReason)
	}
	if resp.Usage.InputTokens != 4 || resp.Usage.OutputTokens != 8 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestResponseSameFormatPassthrough(t *testing.T) {
	body := []byte(`{"anything": true}`)
	out, err := Response(body, config.FormatClaude, config.FormatClaude)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(body) {
		t.Error("same-format response must pass through unchanged")
	}
}

func TestResponseRoundTripPreservesText(t *testing.T) {
	orig := []byte(`{
		"id": "msg_rt", "type": "message", "role": "assistant", "model": "m",
		"content": [{"type": "text", "text": "round trip me"}],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 1, "output_tokens": 2}
	}`)
	asOpenAI, err := Response(orig, config.FormatClaude, config.FormatOpenAI)
	if err != nil {
		t.Fatal(err)
	}
	back, err := Response(asOpenAI, config.FormatOpenAI, config.FormatClaude)
	if err != nil {
		t.Fatal(err)
	}
	var resp ClaudeMessagesResponse
	if err := json.Unmarshal(back, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Content) != 1 || resp.Content[0].Text != "round trip me" {
		t.Errorf("content = %+v", resp.Content)
	}
	if resp.StopReason != "end_turn" {
		t.Errorf("stopReason = %s", resp.StopReason)
	}
}

func TestStopReasonMappings(t *testing.T) {
	pairs := map[string]string{
		"end_turn":      "stop",
		"stop_sequence": "stop",
		"max_tokens":    "length",
		"tool_use":      "tool_calls",
	}
	for claude, openai := range pairs {
		if got := claudeStopToOpenAI(claude); got != openai {
			t.Errorf("claudeStopToOpenAI(%s) = %s, want %s", claude, got, openai)
		}
	}
	if got := openAIFinishToClaude("tool_calls"); got != "tool_use" {
		t.Errorf("openAIFinishToClaude(tool_calls) = %s", got)
	}
}
