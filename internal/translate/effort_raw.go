package translate

import (
	"encoding/json"
	"net/http"

	"github.com/llmrouter/llmrouter/internal/config"
)

// ExtractEffort pulls the reasoning-effort hint for a request: headers first,
// then the body fields of the source format.
func ExtractEffort(body []byte, source config.Format, h http.Header) Effort {
	if e := EffortFromHeaders(h); e != EffortNone {
		return e
	}
	if source == config.FormatClaude {
		var req ClaudeMessagesRequest
		if err := json.Unmarshal(body, &req); err == nil {
			return EffortFromClaudeRequest(&req)
		}
		return EffortNone
	}
	var req OpenAIChatRequest
	if err := json.Unmarshal(body, &req); err == nil {
		return EffortFromOpenAIRequest(&req)
	}
	return EffortNone
}

// StampEffort re-emits the effort tier into the outgoing body in the target
// format's shape. It edits the raw JSON object so fields the translator does
// not model survive untouched.
func StampEffort(body []byte, target config.Format, model string, effort Effort) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return body, err
	}

	if target == config.FormatClaude {
		frac, ok := thinkingBudgetFraction[effort]
		if !ok {
			delete(m, "thinking")
			return json.Marshal(m)
		}
		maxTokens := defaultMaxTokens
		if v, ok := m["max_tokens"].(float64); ok && v > 0 {
			maxTokens = int(v)
		}
		budget := int(float64(maxTokens) * frac)
		if budget < minThinkingBudget {
			budget = minThinkingBudget
		}
		// budget_tokens must stay below max_tokens.
		if budget >= maxTokens {
			m["max_tokens"] = budget + minThinkingBudget
		}
		m["thinking"] = map[string]any{"type": "enabled", "budget_tokens": budget}
		return json.Marshal(m)
	}

	if effort == EffortNone {
		return body, nil
	}
	if usesTopLevelReasoningEffort(model) {
		m["reasoning_effort"] = string(effort)
		delete(m, "reasoning")
	} else {
		m["reasoning"] = map[string]any{"effort": string(effort)}
		delete(m, "reasoning_effort")
	}
	return json.Marshal(m)
}
