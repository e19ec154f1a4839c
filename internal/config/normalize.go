package config

import (
	"fmt"
	"net/url"
	"strings"
)

// hopByHopHeaders are stripped from provider header maps; they describe the
// connection, not the request, and must not be forwarded.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"content-length":      true,
	"host":                true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// Normalize rewrites the config in place into its canonical form: trimmed
// alias ids, slugified bucket ids, sanitized endpoint URLs, scrubbed header
// maps, and defaulted format lists. Normalize must run before Validate.
func (c *Config) Normalize() error {
	if c.Version == 0 {
		c.Version = 1
	}
	c.DefaultModel = strings.TrimSpace(c.DefaultModel)

	for i := range c.Providers {
		if err := normalizeProvider(&c.Providers[i]); err != nil {
			return err
		}
	}

	if len(c.ModelAliases) > 0 {
		trimmed := make(map[string]Alias, len(c.ModelAliases))
		for id, a := range c.ModelAliases {
			id = strings.TrimSpace(id)
			if _, dup := trimmed[id]; dup {
				return fmt.Errorf("duplicate alias id %q", id)
			}
			a.Strategy = NormalizeStrategy(a.Strategy)
			for j := range a.Targets {
				a.Targets[j].Ref = strings.TrimSpace(a.Targets[j].Ref)
			}
			for j := range a.FallbackTargets {
				a.FallbackTargets[j].Ref = strings.TrimSpace(a.FallbackTargets[j].Ref)
			}
			trimmed[id] = a
		}
		c.ModelAliases = trimmed
	}
	return nil
}

func normalizeProvider(p *Provider) error {
	p.ID = strings.TrimSpace(p.ID)

	if p.BaseURL != "" {
		clean, err := sanitizeEndpoint(p.BaseURL)
		if err != nil {
			return fmt.Errorf("provider %q: %w", p.ID, err)
		}
		p.BaseURL = clean
	}
	for f, u := range p.BaseURLByFormat {
		clean, err := sanitizeEndpoint(u)
		if err != nil {
			return fmt.Errorf("provider %q (%s): %w", p.ID, f, err)
		}
		p.BaseURLByFormat[f] = clean
	}

	// Default the format list from the preferred format or per-format URLs.
	if len(p.Formats) == 0 {
		if p.Format != "" {
			p.Formats = []Format{p.Format}
		} else if len(p.BaseURLByFormat) > 0 {
			for _, f := range KnownFormats {
				if _, ok := p.BaseURLByFormat[f]; ok {
					p.Formats = append(p.Formats, f)
				}
			}
		} else {
			p.Formats = []Format{FormatOpenAI}
		}
	}
	if p.Format == "" {
		p.Format = p.Formats[0]
	}

	if len(p.Headers) > 0 {
		scrubbed := make(map[string]string, len(p.Headers))
		for k, v := range p.Headers {
			if hopByHopHeaders[strings.ToLower(strings.TrimSpace(k))] {
				continue
			}
			scrubbed[k] = v
		}
		p.Headers = scrubbed
	}

	assignBucketIDs(p)
	return nil
}

// assignBucketIDs gives every rate-limit bucket a stable id: explicit ids are
// kept, missing ids are slugified from the name with a numeric suffix on
// collision.
func assignBucketIDs(p *Provider) {
	seen := make(map[string]bool)
	for i := range p.RateLimits {
		if id := strings.TrimSpace(p.RateLimits[i].ID); id != "" {
			p.RateLimits[i].ID = id
			seen[id] = true
		}
	}
	for i := range p.RateLimits {
		if p.RateLimits[i].ID != "" {
			continue
		}
		base := Slugify(p.RateLimits[i].Name)
		if base == "" {
			base = fmt.Sprintf("bucket-%d", i+1)
		}
		id := base
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		p.RateLimits[i].ID = id
		seen[id] = true
	}
}

// Slugify lowercases s and collapses every non-alphanumeric run into a
// single hyphen.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// sanitizeEndpoint parses an endpoint URL, requires http or https, and strips
// credentials and fragments.
func sanitizeEndpoint(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("endpoint URL %q must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint URL %q has no host", raw)
	}
	u.User = nil
	u.Fragment = ""
	return strings.TrimRight(u.String(), "/"), nil
}

// NormalizeStrategy canonicalizes a scheduling strategy name. Unknown values
// fall back to "ordered".
func NormalizeStrategy(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "automatic", "smart", "quota-aware-weighted-rr":
		return "quota-aware-weighted-rr"
	case "rr", "round-robin":
		return "round-robin"
	case "weighted_rr", "weighted-rr":
		return "weighted-rr"
	case "", "ordered":
		return "ordered"
	default:
		return "ordered"
	}
}
