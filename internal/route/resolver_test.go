package route

import (
	"strings"
	"testing"

	"github.com/llmrouter/llmrouter/internal/config"
)

func disabled() *bool { b := false; return &b }

func testConfig() *config.Config {
	return &config.Config{
		Version:      1,
		DefaultModel: "alias:smart",
		Providers: []config.Provider{
			{
				ID:      "openrouter",
				Formats: []config.Format{config.FormatOpenAI},
				Models: []config.Model{
					{ID: "gpt-4o-mini", Aliases: []string{"mini"},
						FallbackModels: []string{"anthropic/claude-3-5-haiku"}},
					{ID: "gpt-4o"},
					{ID: "legacy", Enabled: disabled()},
				},
			},
			{
				ID:      "anthropic",
				Formats: []config.Format{config.FormatClaude},
				Models: []config.Model{
					{ID: "claude-3-5-haiku"},
					{ID: "claude-sonnet-4"},
				},
			},
			{
				ID:      "dual",
				Formats: []config.Format{config.FormatOpenAI, config.FormatClaude},
				Models: []config.Model{
					{ID: "omni"},
					{ID: "openai-only", Formats: []config.Format{config.FormatOpenAI}},
				},
			},
		},
		ModelAliases: map[string]config.Alias{
			"smart": {
				Strategy: "round-robin",
				Targets: []config.AliasTarget{
					{Ref: "openrouter/gpt-4o-mini", Weight: 1},
					{Ref: "anthropic/claude-3-5-haiku", Weight: 3},
				},
				FallbackTargets: []config.AliasTarget{
					{Ref: "anthropic/claude-sonnet-4"},
				},
			},
			"nested": {
				Strategy: "auto",
				Targets: []config.AliasTarget{
					{Ref: "alias:smart"},
					{Ref: "dual/omni"},
				},
			},
			"loop-a": {Targets: []config.AliasTarget{{Ref: "alias:loop-b"}}},
			"loop-b": {Targets: []config.AliasTarget{{Ref: "alias:loop-a"}}},
		},
	}
}

func TestResolveDirect(t *testing.T) {
	cfg := testConfig()
	plan, err := Resolve(cfg, "openrouter/gpt-4o-mini", config.FormatOpenAI)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.RouteType != TypeDirect || plan.RouteRef != "openrouter/gpt-4o-mini" {
		t.Errorf("routeType=%s routeRef=%s", plan.RouteType, plan.RouteRef)
	}
	if plan.Primary == nil || plan.Primary.RequestModelID != "openrouter/gpt-4o-mini" {
		t.Fatalf("primary = %+v", plan.Primary)
	}
	if plan.Primary.TargetFormat != config.FormatOpenAI {
		t.Errorf("targetFormat = %s", plan.Primary.TargetFormat)
	}
	// fallbackModels expand into the fallback chain.
	if len(plan.Fallbacks) != 1 || plan.Fallbacks[0].RequestModelID != "anthropic/claude-3-5-haiku" {
		t.Errorf("fallbacks = %+v", plan.Fallbacks)
	}
	if plan.Fallbacks[0].RouteTier != TierFallback {
		t.Errorf("fallback tier = %s", plan.Fallbacks[0].RouteTier)
	}
}

func TestResolveDirectByModelAlias(t *testing.T) {
	plan, err := Resolve(testConfig(), "openrouter/mini", config.FormatOpenAI)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Primary.ModelID != "gpt-4o-mini" {
		t.Errorf("modelId = %s, want gpt-4o-mini", plan.Primary.ModelID)
	}
}

func TestResolveDirectErrors(t *testing.T) {
	cfg := testConfig()
	cases := []struct {
		model string
		want  string
	}{
		{"nowhere/gpt", "Unknown provider"},
		{"openrouter/no-such", "Unknown model"},
		{"openrouter/legacy", "Unknown model"},
	}
	for _, tc := range cases {
		if _, err := Resolve(cfg, tc.model, config.FormatOpenAI); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("Resolve(%q) error = %v, want %q", tc.model, err, tc.want)
		}
	}
}

func TestResolveAlias(t *testing.T) {
	plan, err := Resolve(testConfig(), "smart", config.FormatOpenAI)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.RouteType != TypeAlias || plan.RouteRef != "smart" {
		t.Errorf("routeType=%s routeRef=%s", plan.RouteType, plan.RouteRef)
	}
	if plan.RouteStrategy != StrategyRoundRobin {
		t.Errorf("strategy = %s", plan.RouteStrategy)
	}
	if plan.Primary.RequestModelID != "openrouter/gpt-4o-mini" {
		t.Errorf("primary = %s", plan.Primary.RequestModelID)
	}
	got := make([]string, 0, len(plan.Fallbacks))
	for _, c := range plan.Fallbacks {
		got = append(got, c.RequestModelID)
	}
	want := []string{"anthropic/claude-3-5-haiku", "anthropic/claude-sonnet-4"}
	if len(got) != len(want) {
		t.Fatalf("fallbacks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fallback[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if plan.Fallbacks[0].RouteWeight != 3 {
		t.Errorf("weight = %v, want 3", plan.Fallbacks[0].RouteWeight)
	}
}

func TestResolveAliasPrefix(t *testing.T) {
	plan, err := Resolve(testConfig(), "alias:smart", config.FormatClaude)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.RouteRef != "smart" || plan.RouteType != TypeAlias {
		t.Errorf("routeRef=%s routeType=%s", plan.RouteRef, plan.RouteType)
	}
}

func TestResolveNestedAliasDedupes(t *testing.T) {
	plan, err := Resolve(testConfig(), "nested", config.FormatOpenAI)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.RouteStrategy != StrategyQuotaAwareWeighted {
		t.Errorf("strategy = %s", plan.RouteStrategy)
	}
	ids := map[string]int{}
	for _, c := range plan.Candidates() {
		ids[c.RequestModelID]++
	}
	for id, n := range ids {
		if n > 1 {
			t.Errorf("candidate %s appears %d times", id, n)
		}
	}
	if len(ids) != 4 {
		t.Errorf("got %d distinct candidates, want 4", len(ids))
	}
}

func TestResolveAliasCycle(t *testing.T) {
	_, err := Resolve(testConfig(), "loop-a", config.FormatOpenAI)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if want := "Alias cycle detected: loop-a -> loop-b -> loop-a"; err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestResolveSmartDefault(t *testing.T) {
	plan, err := Resolve(testConfig(), "", config.FormatOpenAI)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.RouteRef != "smart" {
		t.Errorf("routeRef = %s, want smart (via defaultModel)", plan.RouteRef)
	}

	cfg := testConfig()
	cfg.DefaultModel = ""
	if _, err := Resolve(cfg, "smart", config.FormatOpenAI); err == nil ||
		err.Error() != "No default model is configured." {
		t.Errorf("error = %v", err)
	}
}

func TestSelectTargetFormat(t *testing.T) {
	cfg := testConfig()
	// Claude caller hitting an openai-only provider gets translated.
	plan, err := Resolve(cfg, "openrouter/gpt-4o", config.FormatClaude)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Primary.TargetFormat != config.FormatOpenAI {
		t.Errorf("targetFormat = %s, want openai", plan.Primary.TargetFormat)
	}
	// Dual provider keeps the source format.
	plan, err = Resolve(cfg, "dual/omni", config.FormatClaude)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Primary.TargetFormat != config.FormatClaude {
		t.Errorf("targetFormat = %s, want claude", plan.Primary.TargetFormat)
	}
	// Model format filter narrows the provider's set.
	plan, err = Resolve(cfg, "dual/openai-only", config.FormatClaude)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Primary.TargetFormat != config.FormatOpenAI {
		t.Errorf("targetFormat = %s, want openai", plan.Primary.TargetFormat)
	}
}
