package upstream

import (
	"strings"

	"github.com/llmrouter/llmrouter/internal/config"
)

// Operation selects which upstream endpoint a request targets.
type Operation string

const (
	OperationChat        Operation = "chat"
	OperationResponses   Operation = "responses"
	OperationCompletions Operation = "completions"
)

// ResolveProviderURL composes the endpoint URL for a provider and format.
// The base URL may already include the versioned path; suffixes are only
// appended when missing.
func ResolveProviderURL(p *config.Provider, format config.Format, op Operation) string {
	base := p.BaseURL
	if byFormat, ok := p.BaseURLByFormat[format]; ok && byFormat != "" {
		base = byFormat
	}
	base = strings.TrimRight(base, "/")

	var suffix string
	if format == config.FormatClaude {
		suffix = "/messages"
	} else {
		switch op {
		case OperationResponses:
			suffix = "/responses"
		case OperationCompletions:
			suffix = "/completions"
		default:
			suffix = "/chat/completions"
		}
	}

	if strings.HasSuffix(base, "/v1"+suffix) {
		return base
	}
	if strings.HasSuffix(base, "/v1") {
		return base + suffix
	}
	return base + "/v1" + suffix
}
