package translate

import (
	"net/http"
	"strings"
)

// Effort is the normalized reasoning-effort tier carried across formats.
type Effort string

const (
	EffortNone    Effort = "none"
	EffortMinimal Effort = "minimal"
	EffortLow     Effort = "low"
	EffortMedium  Effort = "medium"
	EffortHigh    Effort = "high"
	EffortXHigh   Effort = "xhigh"
)

// effortHeaders are request headers that may carry a thinking hint, checked
// in order.
var effortHeaders = []string{
	"x-claude-code-thinking-mode",
	"x-llm-router-reasoning-effort",
	"x-reasoning-effort",
}

// thinkingBudgetFraction maps an effort tier to the share of max_tokens
// granted as the Anthropic thinking budget.
var thinkingBudgetFraction = map[Effort]float64{
	EffortMinimal: 0.1,
	EffortLow:     0.2,
	EffortMedium:  0.4,
	EffortHigh:    0.6,
	EffortXHigh:   0.8,
}

// minThinkingBudget is the Messages API floor for budget_tokens.
const minThinkingBudget = 1024

// ParseEffort normalizes a free-form effort token; unknown values map to
// EffortNone.
func ParseEffort(s string) Effort {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return EffortMinimal
	case "low":
		return EffortLow
	case "medium", "default", "on", "true", "enabled":
		return EffortMedium
	case "high":
		return EffortHigh
	case "xhigh", "max", "ultra":
		return EffortXHigh
	default:
		return EffortNone
	}
}

// EffortFromHeaders extracts an effort hint from the request headers.
func EffortFromHeaders(h http.Header) Effort {
	for _, name := range effortHeaders {
		if v := h.Get(name); v != "" {
			if e := ParseEffort(v); e != EffortNone {
				return e
			}
		}
	}
	return EffortNone
}

// EffortFromOpenAIRequest reads the effort from reasoning_effort or the
// nested reasoning.effort field.
func EffortFromOpenAIRequest(req *OpenAIChatRequest) Effort {
	if e := ParseEffort(req.ReasoningEffort); e != EffortNone {
		return e
	}
	if req.Reasoning != nil {
		return ParseEffort(req.Reasoning.Effort)
	}
	return EffortNone
}

// EffortFromClaudeRequest derives a tier from an enabled thinking block's
// budget relative to max_tokens.
func EffortFromClaudeRequest(req *ClaudeMessagesRequest) Effort {
	if req.Thinking == nil || req.Thinking.Type == "disabled" {
		return EffortNone
	}
	if req.Thinking.BudgetTokens <= 0 || req.MaxTokens <= 0 {
		return EffortMedium
	}
	frac := float64(req.Thinking.BudgetTokens) / float64(req.MaxTokens)
	switch {
	case frac <= 0.15:
		return EffortMinimal
	case frac <= 0.3:
		return EffortLow
	case frac <= 0.5:
		return EffortMedium
	case frac <= 0.7:
		return EffortHigh
	default:
		return EffortXHigh
	}
}

// ApplyEffortToClaude stamps a thinking block whose budget is the tier's
// fraction of max_tokens, floored at the API minimum.
func ApplyEffortToClaude(req *ClaudeMessagesRequest, effort Effort) {
	frac, ok := thinkingBudgetFraction[effort]
	if !ok {
		req.Thinking = nil
		return
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	budget := int(float64(maxTokens) * frac)
	if budget < minThinkingBudget {
		budget = minThinkingBudget
	}
	// budget_tokens must stay below max_tokens.
	if budget >= maxTokens {
		maxTokens = budget + minThinkingBudget
		req.MaxTokens = maxTokens
	}
	req.Thinking = &ClaudeThinking{Type: "enabled", BudgetTokens: budget}
}

// ApplyEffortToOpenAI stamps the effort in the shape the target model family
// expects: reasoning-native families take the top-level field, everything
// else the openrouter-style nested object.
func ApplyEffortToOpenAI(req *OpenAIChatRequest, effort Effort, model string) {
	if effort == EffortNone {
		return
	}
	if usesTopLevelReasoningEffort(model) {
		req.ReasoningEffort = string(effort)
		req.Reasoning = nil
		return
	}
	req.Reasoning = &OpenAIReasoning{Effort: string(effort)}
	req.ReasoningEffort = ""
}

// usesTopLevelReasoningEffort reports whether the model family takes the flat
// reasoning_effort request field.
func usesTopLevelReasoningEffort(model string) bool {
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5")
}
