package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	providerIDPattern = regexp.MustCompile(`^[a-z][a-zA-Z0-9-]*$`)
	aliasIDPattern    = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)
)

// IsAliasID reports whether s is a syntactically valid alias id.
func IsAliasID(s string) bool { return aliasIDPattern.MatchString(s) }

// Validate checks every structural invariant of the configuration. It
// assumes Normalize has already run.
func (c *Config) Validate() error {
	if c.Version != 1 && c.Version != 2 {
		return fmt.Errorf("unsupported config version %d (supported: 1, 2)", c.Version)
	}

	seenProviders := make(map[string]bool)
	for i := range c.Providers {
		p := &c.Providers[i]
		if !providerIDPattern.MatchString(p.ID) {
			return fmt.Errorf("invalid provider id %q", p.ID)
		}
		if seenProviders[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seenProviders[p.ID] = true
		if err := c.validateProvider(p); err != nil {
			return err
		}
	}

	for id, a := range c.ModelAliases {
		if !aliasIDPattern.MatchString(id) {
			return fmt.Errorf("invalid alias id %q", id)
		}
		if len(a.Targets) == 0 {
			return fmt.Errorf("alias %q has no targets", id)
		}
		for _, t := range append(append([]AliasTarget{}, a.Targets...), a.FallbackTargets...) {
			if err := c.validateRouteRef(t.Ref); err != nil {
				return fmt.Errorf("alias %q target: %w", id, err)
			}
			if t.Weight < 0 {
				return fmt.Errorf("alias %q target %q has negative weight", id, t.Ref)
			}
		}
	}
	if err := c.detectAliasCycles(); err != nil {
		return err
	}

	if c.DefaultModel != "" && c.DefaultModel != "smart" {
		if err := c.validateRouteRef(c.DefaultModel); err != nil {
			return fmt.Errorf("defaultModel: %w", err)
		}
	}

	if c.AmpRouting != nil {
		maps := []map[string]string{
			c.AmpRouting.ModeMap, c.AmpRouting.AgentMap, c.AmpRouting.AgentModeMap,
			c.AmpRouting.ApplicationMap, c.AmpRouting.ModelMap,
		}
		for _, m := range maps {
			for k, ref := range m {
				if err := c.validateRouteRef(ref); err != nil {
					return fmt.Errorf("ampRouting entry %q: %w", k, err)
				}
			}
		}
		if c.AmpRouting.FallbackRoute != "" {
			if err := c.validateRouteRef(c.AmpRouting.FallbackRoute); err != nil {
				return fmt.Errorf("ampRouting fallbackRoute: %w", err)
			}
		}
	}
	return nil
}

func (c *Config) validateProvider(p *Provider) error {
	if p.BaseURL == "" && len(p.BaseURLByFormat) == 0 {
		return fmt.Errorf("provider %q has no base URL", p.ID)
	}
	for k, v := range p.Headers {
		if strings.ContainsAny(k, "\r\n") || strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("provider %q header %q contains CR/LF", p.ID, k)
		}
	}

	seenModels := make(map[string]bool)
	for i := range p.Models {
		m := &p.Models[i]
		if m.ID == "" {
			return fmt.Errorf("provider %q has a model with empty id", p.ID)
		}
		if seenModels[m.ID] {
			return fmt.Errorf("provider %q has duplicate model id %q", p.ID, m.ID)
		}
		seenModels[m.ID] = true
		for _, fb := range m.FallbackModels {
			if err := c.validateDirectRef(fb); err != nil {
				return fmt.Errorf("provider %q model %q fallback: %w", p.ID, m.ID, err)
			}
		}
	}

	seenBuckets := make(map[string]bool)
	for i := range p.RateLimits {
		b := &p.RateLimits[i]
		if seenBuckets[b.ID] {
			return fmt.Errorf("provider %q has duplicate rate-limit id %q", p.ID, b.ID)
		}
		seenBuckets[b.ID] = true
		if b.Requests <= 0 {
			return fmt.Errorf("provider %q bucket %q: requests must be positive", p.ID, b.ID)
		}
		if b.Window.Size <= 0 {
			return fmt.Errorf("provider %q bucket %q: window size must be positive", p.ID, b.ID)
		}
		switch b.Window.Unit {
		case UnitSecond, UnitMinute, UnitHour, UnitDay, UnitWeek, UnitMonth:
		default:
			return fmt.Errorf("provider %q bucket %q: unknown window unit %q", p.ID, b.ID, b.Window.Unit)
		}
		if len(b.Models) == 0 {
			return fmt.Errorf("provider %q bucket %q: model list is empty", p.ID, b.ID)
		}
		hasAll := false
		for _, mid := range b.Models {
			if mid == "all" {
				hasAll = true
				continue
			}
			found := false
			for j := range p.Models {
				if p.Models[j].ID == mid {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("provider %q bucket %q: unknown model %q", p.ID, b.ID, mid)
			}
		}
		if hasAll && len(b.Models) > 1 {
			return fmt.Errorf(`provider %q bucket %q: "all" cannot be combined with specific model ids`, p.ID, b.ID)
		}
	}
	return nil
}

// validateRouteRef accepts either a direct provider/model reference or the id
// of a configured alias (with or without the "alias:" prefix).
func (c *Config) validateRouteRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("empty route reference")
	}
	if strings.Contains(ref, "/") {
		return c.validateDirectRef(ref)
	}
	id := strings.TrimPrefix(ref, "alias:")
	if _, ok := c.ModelAliases[id]; !ok {
		return fmt.Errorf("unknown alias %q", id)
	}
	return nil
}

func (c *Config) validateDirectRef(ref string) error {
	providerID, modelID, ok := SplitRef(ref)
	if !ok {
		return fmt.Errorf("invalid model reference %q", ref)
	}
	p := c.FindProvider(providerID)
	if p == nil {
		return fmt.Errorf("unknown provider %q in %q", providerID, ref)
	}
	if !p.IsEnabled() {
		return fmt.Errorf("provider %q is disabled (%q)", providerID, ref)
	}
	m := p.FindModel(modelID)
	if m == nil {
		return fmt.Errorf("unknown model %q under provider %q", modelID, providerID)
	}
	if !m.IsEnabled() {
		return fmt.Errorf("model %q is disabled", ref)
	}
	return nil
}

// detectAliasCycles walks the target + fallback-target graph of every alias
// with a visiting set. A back-edge is reported verbatim in path order.
func (c *Config) detectAliasCycles() error {
	done := make(map[string]bool)
	for id := range c.ModelAliases {
		if err := c.walkAlias(id, nil, done); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) walkAlias(id string, path []string, done map[string]bool) error {
	for i, seen := range path {
		if seen == id {
			cycle := append(path[i:], id)
			return fmt.Errorf("Alias cycle detected: %s", strings.Join(cycle, " -> "))
		}
	}
	if done[id] {
		return nil
	}
	a, ok := c.ModelAliases[id]
	if !ok {
		return nil
	}
	path = append(path, id)
	for _, t := range append(append([]AliasTarget{}, a.Targets...), a.FallbackTargets...) {
		if strings.Contains(t.Ref, "/") {
			continue
		}
		next := strings.TrimPrefix(t.Ref, "alias:")
		if err := c.walkAlias(next, path, done); err != nil {
			return err
		}
	}
	done[id] = true
	return nil
}
