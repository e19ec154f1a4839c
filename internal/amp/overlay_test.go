package amp

import (
	"net/http"
	"testing"

	"github.com/llmrouter/llmrouter/internal/config"
)

func testOverlay() *config.AmpRouting {
	return &config.AmpRouting{
		Enabled:        true,
		ModeMap:        map[string]string{"deep": "alias:reasoning"},
		AgentMap:       map[string]string{"coder": "openai/gpt-4o"},
		AgentModeMap:   map[string]string{"coder:deep": "anthropic/claude-opus"},
		ApplicationMap: map[string]string{"ide": "alias:fast"},
		ModelMap:       map[string]string{"gpt-4o-mini": "openai/gpt-4o"},
		FallbackRoute:  "alias:default",
	}
}

func header(kv ...string) http.Header {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return h
}

func TestApplyPrecedence(t *testing.T) {
	o := testOverlay()
	cases := []struct {
		name  string
		model string
		h     http.Header
		want  string
	}{
		{"agent+mode wins", "m", header("x-amp-agent", "coder", "x-amp-mode", "deep"), "anthropic/claude-opus"},
		{"agent alone", "m", header("x-amp-agent", "coder"), "openai/gpt-4o"},
		{"mode alone", "m", header("x-amp-mode", "deep"), "alias:reasoning"},
		{"application", "m", header("x-amp-application", "ide"), "alias:fast"},
		{"model map", "gpt-4o-mini", header("x-amp-mode", "unknown"), "openai/gpt-4o"},
		{"fallback route", "m", header("x-amp-mode", "unknown"), "alias:default"},
	}
	for _, tc := range cases {
		if got := Apply(o, tc.model, tc.h); got != tc.want {
			t.Errorf("%s: Apply = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestApplyNonAmpTrafficPassesThrough(t *testing.T) {
	o := testOverlay()
	if got := Apply(o, "gpt-4o-mini", header()); got != "gpt-4o-mini" {
		t.Errorf("no amp headers: got %q", got)
	}
}

func TestApplyDisabled(t *testing.T) {
	o := testOverlay()
	o.Enabled = false
	if got := Apply(o, "m", header("x-amp-mode", "deep")); got != "m" {
		t.Errorf("disabled overlay rewrote route: %q", got)
	}
	if got := Apply(nil, "m", header("x-amp-mode", "deep")); got != "m" {
		t.Errorf("nil overlay rewrote route: %q", got)
	}
}

func TestApplyNoFallbackRoute(t *testing.T) {
	o := testOverlay()
	o.FallbackRoute = ""
	if got := Apply(o, "m", header("x-amp-mode", "unknown")); got != "m" {
		t.Errorf("unmatched without fallback: got %q", got)
	}
}
