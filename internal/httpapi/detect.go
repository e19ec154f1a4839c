package httpapi

import (
	"encoding/json"
	"strings"

	"github.com/llmrouter/llmrouter/internal/config"
)

// bodyProbe holds the fields that distinguish the two request shapes.
type bodyProbe struct {
	Model     string          `json:"model"`
	Stream    bool            `json:"stream"`
	System    json.RawMessage `json:"system"`
	MaxTokens *int            `json:"max_tokens"`
	Messages  []struct {
		Role string `json:"role"`
	} `json:"messages"`
}

// detectSourceFormat infers the wire format from the body shape. A top-level
// system field only exists on Anthropic Messages requests; role "system" or
// "tool" turns only exist on OpenAI ones. A claude-family model name breaks
// the tie; the final default is openai.
func detectSourceFormat(probe *bodyProbe) config.Format {
	if len(probe.System) > 0 && string(probe.System) != "null" {
		return config.FormatClaude
	}
	for _, m := range probe.Messages {
		if m.Role == "system" || m.Role == "tool" || m.Role == "developer" {
			return config.FormatOpenAI
		}
	}
	model := strings.ToLower(probe.Model)
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if strings.HasPrefix(model, "claude") {
		return config.FormatClaude
	}
	return config.FormatOpenAI
}
