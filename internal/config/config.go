// Package config defines the runtime routing configuration: providers with
// their models and rate-limit buckets, model aliases with scheduling
// strategies, and the optional Amp client routing overlay. A Config is
// immutable once loaded; reloads produce a fresh value that is swapped in
// atomically by the caller.
package config

import "strings"

// Format identifies a chat wire protocol.
type Format string

const (
	FormatOpenAI Format = "openai"
	FormatClaude Format = "claude"
)

// KnownFormats lists the wire protocols the router can speak.
var KnownFormats = []Format{FormatOpenAI, FormatClaude}

// Config is the root of the routing configuration.
type Config struct {
	Version      int              `json:"version"`
	DefaultModel string           `json:"defaultModel,omitempty"`
	MasterKey    string           `json:"masterKey,omitempty"`
	Providers    []Provider       `json:"providers"`
	ModelAliases map[string]Alias `json:"modelAliases,omitempty"`
	AmpRouting   *AmpRouting      `json:"ampRouting,omitempty"`
}

// Provider describes one upstream endpoint and the models it serves.
type Provider struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Enabled          *bool             `json:"enabled,omitempty"`
	BaseURL          string            `json:"baseUrl,omitempty"`
	BaseURLByFormat  map[Format]string `json:"baseUrlByFormat,omitempty"`
	APIKey           string            `json:"apiKey,omitempty"`
	APIKeyEnv        string            `json:"apiKeyEnv,omitempty"`
	Formats          []Format          `json:"formats,omitempty"`
	Format           Format            `json:"format,omitempty"`
	Auth             *Auth             `json:"auth,omitempty"`
	AuthByFormat     map[Format]*Auth  `json:"authByFormat,omitempty"`
	Headers          map[string]string `json:"headers,omitempty"`
	AnthropicVersion string            `json:"anthropicVersion,omitempty"`
	AnthropicBeta    string            `json:"anthropicBeta,omitempty"`
	Models           []Model           `json:"models"`
	RateLimits       []RateLimit       `json:"rateLimits,omitempty"`
}

// Auth describes how the provider expects credentials on the wire.
type Auth struct {
	Type       string `json:"type"` // bearer, api-key, header, none
	HeaderName string `json:"headerName,omitempty"`
	Prefix     string `json:"prefix,omitempty"`
}

// Model is one servable model under a provider. A model's qualified
// reference is "providerId/modelId".
type Model struct {
	ID             string   `json:"id"`
	Aliases        []string `json:"aliases,omitempty"`
	Formats        []Format `json:"formats,omitempty"`
	Enabled        *bool    `json:"enabled,omitempty"`
	ContextWindow  int      `json:"contextWindow,omitempty"`
	FallbackModels []string `json:"fallbackModels,omitempty"`
}

// RateLimit is a per-provider request budget bound to a time window.
type RateLimit struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Models   []string       `json:"models"`
	Requests int            `json:"requests"`
	Window   Window         `json:"window"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// WindowUnit is a calendar unit for rate-limit windows.
type WindowUnit string

const (
	UnitSecond WindowUnit = "second"
	UnitMinute WindowUnit = "minute"
	UnitHour   WindowUnit = "hour"
	UnitDay    WindowUnit = "day"
	UnitWeek   WindowUnit = "week"
	UnitMonth  WindowUnit = "month"
)

// Window is a deterministic UTC interval specification.
type Window struct {
	Unit WindowUnit `json:"unit"`
	Size int        `json:"size"`
}

// Alias is a named route rule expanding to candidate provider/model pairs
// under a scheduling strategy.
type Alias struct {
	Strategy        string         `json:"strategy,omitempty"`
	Targets         []AliasTarget  `json:"targets"`
	FallbackTargets []AliasTarget  `json:"fallbackTargets,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// AliasTarget points at another alias or a direct "provider/model" reference.
type AliasTarget struct {
	Ref      string         `json:"ref"`
	Weight   float64        `json:"weight,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AmpRouting rewrites the requested route for traffic identified as coming
// from the Amp client. Maps are consulted before the resolver runs.
type AmpRouting struct {
	Enabled        bool              `json:"enabled"`
	ModeMap        map[string]string `json:"modeMap,omitempty"`
	AgentMap       map[string]string `json:"agentMap,omitempty"`
	AgentModeMap   map[string]string `json:"agentModeMap,omitempty"`
	ApplicationMap map[string]string `json:"applicationMap,omitempty"`
	ModelMap       map[string]string `json:"modelMap,omitempty"`
	FallbackRoute  string            `json:"fallbackRoute,omitempty"`
}

// IsEnabled reports whether the provider is enabled. Omitted means enabled.
func (p *Provider) IsEnabled() bool { return p.Enabled == nil || *p.Enabled }

// IsEnabled reports whether the model is enabled. Omitted means enabled.
func (m *Model) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// FindProvider returns the provider with the given id, or nil.
func (c *Config) FindProvider(id string) *Provider {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// FindModel returns the model with the given id or listed alias, or nil.
func (p *Provider) FindModel(idOrAlias string) *Model {
	for i := range p.Models {
		if p.Models[i].ID == idOrAlias {
			return &p.Models[i]
		}
	}
	for i := range p.Models {
		for _, a := range p.Models[i].Aliases {
			if a == idOrAlias {
				return &p.Models[i]
			}
		}
	}
	return nil
}

// Alias looks up an alias by id, tolerating the "alias:" prefix.
func (c *Config) Alias(id string) (Alias, bool) {
	id = strings.TrimPrefix(id, "alias:")
	a, ok := c.ModelAliases[id]
	return a, ok
}

// SplitRef splits a direct "provider/model" reference. The model part may
// itself contain slashes (e.g. openrouter paths).
func SplitRef(ref string) (providerID, modelID string, ok bool) {
	i := strings.Index(ref, "/")
	if i <= 0 || i == len(ref)-1 {
		return "", "", false
	}
	return ref[:i], ref[i+1:], true
}
