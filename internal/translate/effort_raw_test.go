package translate

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/llmrouter/llmrouter/internal/config"
)

func TestExtractEffortHeaderWinsOverBody(t *testing.T) {
	body := []byte(`{"model":"gpt-5","reasoning_effort":"low","messages":[]}`)
	h := http.Header{}
	h.Set("x-reasoning-effort", "high")
	if got := ExtractEffort(body, config.FormatOpenAI, h); got != EffortHigh {
		t.Errorf("effort = %s, want high", got)
	}
}

func TestExtractEffortFromOpenAIBody(t *testing.T) {
	body := []byte(`{"model":"gpt-5","reasoning":{"effort":"minimal"},"messages":[]}`)
	if got := ExtractEffort(body, config.FormatOpenAI, http.Header{}); got != EffortMinimal {
		t.Errorf("effort = %s, want minimal", got)
	}
}

func TestExtractEffortFromClaudeBody(t *testing.T) {
	body := []byte(`{"model":"claude-sonnet-4","max_tokens":10000,"thinking":{"type":"enabled","budget_tokens":6000},"messages":[]}`)
	if got := ExtractEffort(body, config.FormatClaude, http.Header{}); got != EffortHigh {
		t.Errorf("effort = %s, want high", got)
	}
}

func TestStampEffortClaudePreservesUnknownFields(t *testing.T) {
	body := []byte(`{"model":"claude-sonnet-4","max_tokens":10000,"metadata":{"user_id":"u1"},"messages":[{"role":"user","content":"hi"}]}`)
	out, err := StampEffort(body, config.FormatClaude, "claude-sonnet-4", EffortMedium)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	meta, ok := m["metadata"].(map[string]any)
	if !ok || meta["user_id"] != "u1" {
		t.Errorf("metadata dropped: %v", m["metadata"])
	}
	thinking, ok := m["thinking"].(map[string]any)
	if !ok {
		t.Fatalf("thinking missing: %s", out)
	}
	if thinking["type"] != "enabled" || thinking["budget_tokens"] != float64(4000) {
		t.Errorf("thinking = %v", thinking)
	}
}

func TestStampEffortClaudeRaisesMaxTokens(t *testing.T) {
	// A tiny max_tokens forces the budget floor; max_tokens must rise above it.
	body := []byte(`{"model":"claude-sonnet-4","max_tokens":512,"messages":[]}`)
	out, err := StampEffort(body, config.FormatClaude, "claude-sonnet-4", EffortLow)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if m["max_tokens"] != float64(1024+1024) {
		t.Errorf("max_tokens = %v, want 2048", m["max_tokens"])
	}
}

func TestStampEffortClaudeNoneStripsThinking(t *testing.T) {
	body := []byte(`{"model":"claude-sonnet-4","max_tokens":2048,"thinking":{"type":"enabled","budget_tokens":1024},"messages":[]}`)
	out, err := StampEffort(body, config.FormatClaude, "claude-sonnet-4", EffortNone)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(out, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["thinking"]; ok {
		t.Errorf("thinking survived: %s", out)
	}
}

func TestStampEffortOpenAIFieldPlacement(t *testing.T) {
	body := []byte(`{"model":"x","seed":7,"messages":[]}`)

	out, err := StampEffort(body, config.FormatOpenAI, "gpt-5-mini", EffortHigh)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	_ = json.Unmarshal(out, &m)
	if m["reasoning_effort"] != "high" {
		t.Errorf("gpt-5 family: reasoning_effort = %v", m["reasoning_effort"])
	}
	if m["seed"] != float64(7) {
		t.Errorf("unknown field dropped: %v", m["seed"])
	}

	out, err = StampEffort(body, config.FormatOpenAI, "deepseek/deepseek-r1", EffortHigh)
	if err != nil {
		t.Fatal(err)
	}
	m = nil
	_ = json.Unmarshal(out, &m)
	nested, ok := m["reasoning"].(map[string]any)
	if !ok || nested["effort"] != "high" {
		t.Errorf("nested reasoning = %v", m["reasoning"])
	}
}

func TestStampEffortOpenAINoneIsNoOp(t *testing.T) {
	body := []byte(`{"model":"x","messages":[]}`)
	out, err := StampEffort(body, config.FormatOpenAI, "gpt-4o", EffortNone)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(body) {
		t.Errorf("body changed: %s", out)
	}
}
