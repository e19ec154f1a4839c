package route

import (
	"fmt"
	"strings"

	"github.com/llmrouter/llmrouter/internal/config"
)

// Strategy names after normalization.
const (
	StrategyOrdered            = "ordered"
	StrategyRoundRobin         = "round-robin"
	StrategyWeightedRR         = "weighted-rr"
	StrategyQuotaAwareWeighted = "quota-aware-weighted-rr"
)

// Resolve expands a requested model into a RoutePlan. An empty model means
// "smart", which maps to the configured default. The returned plan always
// carries the route type and ref for diagnostics, even on error.
func Resolve(cfg *config.Config, requestedModel string, sourceFormat config.Format) (*RoutePlan, error) {
	plan := &RoutePlan{
		RequestedModel: requestedModel,
		RouteType:      TypeUnknown,
		RouteStrategy:  StrategyOrdered,
	}

	resolved := strings.TrimSpace(requestedModel)
	if resolved == "" {
		resolved = "smart"
	}
	if resolved == "smart" {
		resolved = strings.TrimSpace(cfg.DefaultModel)
		if resolved == "" || resolved == "smart" {
			return plan, fmt.Errorf("No default model is configured.")
		}
	}
	plan.ResolvedModel = resolved

	switch {
	case strings.Contains(resolved, "/"):
		plan.RouteType = TypeDirect
		plan.RouteRef = resolved
		return resolveDirect(cfg, plan, resolved, sourceFormat)
	case strings.HasPrefix(resolved, "alias:"):
		plan.RouteType = TypeAlias
		plan.RouteRef = strings.TrimPrefix(resolved, "alias:")
		return resolveAlias(cfg, plan, plan.RouteRef, sourceFormat)
	case config.IsAliasID(resolved):
		if _, ok := cfg.Alias(resolved); ok {
			plan.RouteType = TypeAlias
			plan.RouteRef = resolved
			return resolveAlias(cfg, plan, resolved, sourceFormat)
		}
		return plan, fmt.Errorf("Unknown model or alias: %s", resolved)
	default:
		return plan, fmt.Errorf("Invalid route reference: %s", resolved)
	}
}

func resolveDirect(cfg *config.Config, plan *RoutePlan, ref string, sourceFormat config.Format) (*RoutePlan, error) {
	p, m, err := lookupDirect(cfg, ref)
	if err != nil {
		return plan, err
	}
	plan.Primary = buildCandidate(p, m, sourceFormat)
	plan.Primary.RouteTargetRef = ref

	seen := map[string]bool{plan.Primary.RequestModelID: true}
	for _, fbRef := range m.FallbackModels {
		fp, fm, err := lookupDirect(cfg, fbRef)
		if err != nil {
			continue
		}
		c := buildCandidate(fp, fm, sourceFormat)
		if seen[c.RequestModelID] {
			continue
		}
		seen[c.RequestModelID] = true
		c.RouteTier = TierFallback
		c.RouteTargetRef = fbRef
		plan.Fallbacks = append(plan.Fallbacks, c)
	}
	return plan, nil
}

// lookupDirect finds an enabled, format-compatible (provider, model) pair for
// a "provider/model" reference.
func lookupDirect(cfg *config.Config, ref string) (*config.Provider, *config.Model, error) {
	providerID, modelID, ok := config.SplitRef(ref)
	if !ok {
		return nil, nil, fmt.Errorf("Invalid route reference: %s", ref)
	}
	p := cfg.FindProvider(providerID)
	if p == nil || !p.IsEnabled() {
		return nil, nil, fmt.Errorf("Unknown provider: %s", providerID)
	}
	m := p.FindModel(modelID)
	if m == nil || !m.IsEnabled() {
		return nil, nil, fmt.Errorf("Unknown model: %s", ref)
	}
	if !formatCompatible(p, m) {
		return nil, nil, fmt.Errorf("Model %s supports no format of provider %s", ref, providerID)
	}
	return p, m, nil
}

func resolveAlias(cfg *config.Config, plan *RoutePlan, aliasID string, sourceFormat config.Format) (*RoutePlan, error) {
	alias, ok := cfg.Alias(aliasID)
	if !ok {
		return plan, fmt.Errorf("Unknown alias: %s", aliasID)
	}
	plan.RouteStrategy = config.NormalizeStrategy(alias.Strategy)

	seen := make(map[string]bool)
	primaries, err := expandTargets(cfg, alias.Targets, sourceFormat, TierPrimary, []string{aliasID}, seen)
	if err != nil {
		return plan, err
	}
	fallbacks, err := expandTargets(cfg, alias.FallbackTargets, sourceFormat, TierFallback, []string{aliasID}, seen)
	if err != nil {
		return plan, err
	}
	if len(primaries) == 0 {
		if len(fallbacks) == 0 {
			return plan, fmt.Errorf("Alias %s has no resolvable targets", aliasID)
		}
		primaries, fallbacks = fallbacks[:1], fallbacks[1:]
	}

	plan.Primary = primaries[0]
	// Remaining primary candidates run before the fallback tier.
	for _, c := range primaries[1:] {
		c.RouteTier = TierFallback
	}
	plan.Fallbacks = append(primaries[1:], fallbacks...)
	return plan, nil
}

// expandTargets expands alias targets depth-first. stack holds the alias path
// being visited so a revisit reports the cycle in walk order.
func expandTargets(cfg *config.Config, targets []config.AliasTarget, sourceFormat config.Format, tier string, stack []string, seen map[string]bool) ([]*Candidate, error) {
	var out []*Candidate
	for _, t := range targets {
		ref := strings.TrimSpace(t.Ref)
		if ref == "" {
			continue
		}
		cands, err := expandTarget(cfg, t, ref, sourceFormat, tier, stack, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, cands...)
	}
	return out, nil
}

func expandTarget(cfg *config.Config, t config.AliasTarget, ref string, sourceFormat config.Format, tier string, stack []string, seen map[string]bool) ([]*Candidate, error) {
	if strings.Contains(ref, "/") {
		p, m, err := lookupDirect(cfg, ref)
		if err != nil {
			// A dead direct target is skipped; the alias may still resolve
			// through its remaining targets.
			return nil, nil
		}
		c := buildCandidate(p, m, sourceFormat)
		if seen[c.RequestModelID] {
			return nil, nil
		}
		seen[c.RequestModelID] = true
		c.RouteTier = tier
		c.RouteTargetRef = ref
		c.RouteTargetMetadata = t.Metadata
		if t.Weight > 0 {
			c.RouteWeight = t.Weight
		}
		return []*Candidate{c}, nil
	}

	aliasID := strings.TrimPrefix(ref, "alias:")
	for _, visited := range stack {
		if visited == aliasID {
			cycle := append(append([]string{}, stack...), aliasID)
			return nil, fmt.Errorf("Alias cycle detected: %s", strings.Join(cycle, " -> "))
		}
	}
	alias, ok := cfg.Alias(aliasID)
	if !ok {
		return nil, nil
	}
	nested, err := expandTargets(cfg, alias.Targets, sourceFormat, tier, append(stack, aliasID), seen)
	if err != nil {
		return nil, err
	}
	nestedFallback, err := expandTargets(cfg, alias.FallbackTargets, sourceFormat, tier, append(stack, aliasID), seen)
	if err != nil {
		return nil, err
	}
	return append(nested, nestedFallback...), nil
}
