// Package route resolves a requested model into an ordered plan of upstream
// candidates. Resolution is pure: it reads only the immutable config snapshot,
// never the state store.
package route

import (
	"github.com/llmrouter/llmrouter/internal/config"
)

// Route tiers. The primary tier holds the alias's main targets; everything
// after the first primary candidate joins the fallback chain.
const (
	TierPrimary  = "primary"
	TierFallback = "fallback"
)

// Route types as reported in plans and debug headers.
const (
	TypeDirect  = "direct"
	TypeAlias   = "alias"
	TypeUnknown = "unknown"
)

// Candidate is one concrete (provider, model) pair the handler may call.
type Candidate struct {
	ProviderID string
	Provider   *config.Provider
	ModelID    string
	Model      *config.Model

	// RequestModelID is the qualified reference "providerId/modelId" and the
	// dedup/identity key for candidates.
	RequestModelID string

	// TargetFormat is the wire protocol the upstream call will use.
	TargetFormat config.Format

	RouteWeight         float64
	RouteTier           string
	RouteTargetRef      string
	RouteTargetMetadata map[string]any
}

// RoutePlan is the resolver's output: the selected primary candidate plus the
// ordered fallback chain.
type RoutePlan struct {
	RequestedModel string
	ResolvedModel  string
	RouteType      string
	RouteRef       string
	RouteStrategy  string
	Primary        *Candidate
	Fallbacks      []*Candidate
}

// Candidates returns primary followed by fallbacks.
func (p *RoutePlan) Candidates() []*Candidate {
	if p.Primary == nil {
		return nil
	}
	out := make([]*Candidate, 0, 1+len(p.Fallbacks))
	out = append(out, p.Primary)
	out = append(out, p.Fallbacks...)
	return out
}

// buildCandidate derives a candidate for the pair, choosing its target format
// against the caller's source format.
func buildCandidate(p *config.Provider, m *config.Model, sourceFormat config.Format) *Candidate {
	return &Candidate{
		ProviderID:     p.ID,
		Provider:       p,
		ModelID:        m.ID,
		Model:          m,
		RequestModelID: p.ID + "/" + m.ID,
		TargetFormat:   selectTargetFormat(p, m, sourceFormat),
		RouteWeight:    1,
		RouteTier:      TierPrimary,
	}
}

// selectTargetFormat picks the wire protocol for one candidate: the source
// format when the pair supports it, otherwise the first supported format,
// otherwise the provider's preferred format (default openai).
func selectTargetFormat(p *config.Provider, m *config.Model, sourceFormat config.Format) config.Format {
	providerFormats := knownSubset(p.Formats)
	modelFormats := knownSubset(m.Formats)

	supported := providerFormats
	if len(modelFormats) > 0 {
		supported = intersect(modelFormats, providerFormats)
	}
	if len(supported) == 0 {
		if isKnownFormat(p.Format) {
			return p.Format
		}
		return config.FormatOpenAI
	}
	for _, f := range supported {
		if f == sourceFormat {
			return sourceFormat
		}
	}
	return supported[0]
}

// formatCompatible reports whether the pair supports at least one provider
// format when the model declares a format filter.
func formatCompatible(p *config.Provider, m *config.Model) bool {
	modelFormats := knownSubset(m.Formats)
	if len(modelFormats) == 0 {
		return true
	}
	return len(intersect(modelFormats, knownSubset(p.Formats))) > 0
}

func knownSubset(formats []config.Format) []config.Format {
	var out []config.Format
	for _, f := range formats {
		if isKnownFormat(f) {
			out = append(out, f)
		}
	}
	return out
}

func intersect(a, b []config.Format) []config.Format {
	var out []config.Format
	for _, f := range a {
		for _, g := range b {
			if f == g {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

func isKnownFormat(f config.Format) bool {
	for _, k := range config.KnownFormats {
		if f == k {
			return true
		}
	}
	return false
}
