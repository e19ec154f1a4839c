package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/llmrouter/llmrouter/internal/config"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandler(t *testing.T) {
	d := testDeps(&config.Config{
		Version: 2,
		Providers: []config.Provider{
			{ID: "a", Models: []config.Model{{ID: "m"}}},
			{ID: "b", Enabled: boolPtr(false)},
		},
	})
	rec := get(t, mount(d), "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["providers"] != float64(1) {
		t.Errorf("providers = %v, want 1 (disabled excluded)", body["providers"])
	}
	if body["timestamp"] == "" {
		t.Error("timestamp missing")
	}
}

func TestHealthHandlerNoProviders(t *testing.T) {
	d := testDeps(&config.Config{Version: 2})
	rec := get(t, mount(d), "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestBannerHandler(t *testing.T) {
	d := testDeps(&config.Config{Version: 2})
	rec := get(t, mount(d), "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Service   string   `json:"service"`
		Endpoints []string `json:"endpoints"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Service != "llmrouter" {
		t.Errorf("service = %q", body.Service)
	}
	if len(body.Endpoints) == 0 {
		t.Error("endpoint list empty")
	}
}

func TestModelsHandlerOpenAIShape(t *testing.T) {
	cfg := &config.Config{
		Version: 2,
		Providers: []config.Provider{
			{ID: "openrouter", Models: []config.Model{
				{ID: "gpt-4o-mini"},
				{ID: "disabled-model", Enabled: boolPtr(false)},
			}},
		},
		ModelAliases: map[string]config.Alias{
			"smart-chat": {Targets: []config.AliasTarget{{Ref: "openrouter/gpt-4o-mini"}}},
		},
	}
	rec := get(t, mount(testDeps(cfg)), "/v1/models")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Object string `json:"object"`
		Data   []struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			OwnedBy string `json:"owned_by"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Object != "list" {
		t.Errorf("object = %q", body.Object)
	}
	ids := map[string]string{}
	for _, m := range body.Data {
		ids[m.ID] = m.OwnedBy
		if m.Object != "model" {
			t.Errorf("entry object = %q", m.Object)
		}
	}
	if ids["openrouter/gpt-4o-mini"] != "openrouter" {
		t.Errorf("provider model missing or wrong owner: %v", ids)
	}
	if ids["smart-chat"] != "llmrouter" {
		t.Errorf("alias missing or wrong owner: %v", ids)
	}
	if _, ok := ids["openrouter/disabled-model"]; ok {
		t.Error("disabled model listed")
	}
}

func TestModelsHandlerClaudeShape(t *testing.T) {
	cfg := &config.Config{
		Version:   2,
		Providers: []config.Provider{{ID: "anthropic", Models: []config.Model{{ID: "claude-3-5-haiku"}}}},
	}
	rec := get(t, mount(testDeps(cfg)), "/anthropic/v1/models")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Data []struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		} `json:"data"`
		HasMore bool `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 1 || body.Data[0].Type != "model" || body.Data[0].ID != "anthropic/claude-3-5-haiku" {
		t.Errorf("data = %+v", body.Data)
	}
	if body.HasMore {
		t.Error("has_more = true")
	}
}

func boolPtr(b bool) *bool { return &b }
