package upstream

import (
	"net/http"

	"github.com/llmrouter/llmrouter/internal/config"
)

// defaultAnthropicVersion is stamped on claude-format calls when the provider
// does not pin one.
const defaultAnthropicVersion = "2023-06-01"

// passthroughHeaders is the bounded set of client headers forwarded upstream.
var passthroughHeaders = []string{
	"x-request-id",
	"user-agent",
	"accept-language",
}

// BuildHeaders assembles the outgoing header map for one upstream call: auth
// per the provider's scheme, the anthropic version/beta headers on claude
// calls, provider extras, and the allow-listed client passthrough headers.
func BuildHeaders(p *config.Provider, format config.Format, clientHeaders http.Header) map[string]string {
	out := make(map[string]string)

	for _, name := range passthroughHeaders {
		if v := clientHeaders.Get(name); v != "" {
			out[name] = v
		}
	}
	for k, v := range p.Headers {
		out[k] = v
	}

	if format == config.FormatClaude {
		version := p.AnthropicVersion
		if version == "" {
			version = defaultAnthropicVersion
		}
		out["anthropic-version"] = version
		if p.AnthropicBeta != "" {
			out["anthropic-beta"] = p.AnthropicBeta
		}
	}

	applyAuth(out, authFor(p, format), p.ResolveAPIKey(), format)
	return out
}

// authFor picks the auth scheme: per-format override, provider default, or
// the format's conventional scheme.
func authFor(p *config.Provider, format config.Format) *config.Auth {
	if a, ok := p.AuthByFormat[format]; ok && a != nil {
		return a
	}
	if p.Auth != nil {
		return p.Auth
	}
	return nil
}

func applyAuth(out map[string]string, auth *config.Auth, key string, format config.Format) {
	if auth == nil {
		// Conventional defaults: claude uses x-api-key, openai a bearer
		// token.
		if key == "" {
			return
		}
		if format == config.FormatClaude {
			out["x-api-key"] = key
		} else {
			out["Authorization"] = "Bearer " + key
		}
		return
	}
	switch auth.Type {
	case "none":
	case "api-key":
		if key != "" {
			out["x-api-key"] = key
		}
	case "header":
		if auth.HeaderName != "" && key != "" {
			out[auth.HeaderName] = auth.Prefix + key
		}
	default: // bearer
		if key != "" {
			prefix := auth.Prefix
			if prefix == "" {
				prefix = "Bearer "
			}
			out["Authorization"] = prefix + key
		}
	}
}
