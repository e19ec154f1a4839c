// Package httpapi mounts the router's HTTP surface: the completion endpoints
// with their retry/fallback pipeline, model listings, health, the admin
// introspection views, and the SSE event feed.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/llmrouter/llmrouter/internal/auth"
	"github.com/llmrouter/llmrouter/internal/balancer"
	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/events"
	"github.com/llmrouter/llmrouter/internal/metrics"
	"github.com/llmrouter/llmrouter/internal/state"
	"github.com/llmrouter/llmrouter/internal/upstream"
)

// Options tunes the request pipeline.
type Options struct {
	DebugRouting        bool
	OriginRetryAttempts int
	MaxBodyBytes        int64
	Circuit             balancer.CircuitOptions

	// Sleep and Now are swappable for tests.
	Sleep func(time.Duration)
	Now   func() time.Time
}

// DefaultOptions matches the documented pipeline defaults.
func DefaultOptions() Options {
	return Options{
		OriginRetryAttempts: 1,
		MaxBodyBytes:        1 << 20,
		Circuit:             balancer.DefaultCircuit,
		Sleep:               time.Sleep,
		Now:                 time.Now,
	}
}

type Dependencies struct {
	// Config returns the current immutable snapshot; hot reload swaps the
	// value behind this accessor.
	Config   func() *config.Config
	Store    state.Store
	Upstream *upstream.Client
	Metrics  *metrics.Registry
	EventBus *events.Bus
	Verifier *auth.Verifier
	Logger   *slog.Logger
	Options  Options
}

func (d *Dependencies) log() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dependencies) now() time.Time {
	if d.Options.Now != nil {
		return d.Options.Now()
	}
	return time.Now()
}

func (d *Dependencies) sleep(t time.Duration) {
	if d.Options.Sleep != nil {
		d.Options.Sleep(t)
		return
	}
	time.Sleep(t)
}

func MountRoutes(r chi.Router, d Dependencies) {
	r.Get("/health", HealthHandler(d))
	r.Get("/", BannerHandler(d))

	completions := CompletionsHandler(d, config.FormatOpenAI)
	messages := CompletionsHandler(d, config.FormatClaude)
	detect := CompletionsHandler(d, "")

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(d.Verifier))

		r.Post("/v1/chat/completions", completions)
		r.Post("/openai/v1/chat/completions", completions)
		r.Post("/v1/messages", messages)
		r.Post("/anthropic/v1/messages", messages)
		r.Post("/", detect)
		r.Post("/route", detect)

		r.Get("/v1/models", ModelsHandler(d, config.FormatOpenAI))
		r.Get("/openai/v1/models", ModelsHandler(d, config.FormatOpenAI))
		r.Get("/anthropic/v1/models", ModelsHandler(d, config.FormatClaude))

		r.Route("/admin/v1", func(r chi.Router) {
			r.Get("/candidates", CandidatesHandler(d))
			r.Get("/usage", UsageHandler(d))
			r.Get("/routes", RoutesHandler(d))
			if d.EventBus != nil {
				r.Get("/events", SSEHandler(d.EventBus))
			}
		})
	})

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}
}

// HealthHandler reports readiness: at least one enabled provider must exist.
func HealthHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfg := d.Config()
		providers := 0
		for i := range cfg.Providers {
			if cfg.Providers[i].IsEnabled() {
				providers++
			}
		}
		w.Header().Set("Content-Type", "application/json")
		status := "ok"
		code := http.StatusOK
		if providers == 0 {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"timestamp": d.now().UTC().Format(time.RFC3339),
			"providers": providers,
		})
	}
}

// BannerHandler serves the service banner with the endpoint list.
func BannerHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service": "llmrouter",
			"endpoints": []string{
				"POST /v1/chat/completions",
				"POST /v1/messages",
				"POST /route",
				"GET /v1/models",
				"GET /health",
				"GET /admin/v1/candidates",
				"GET /admin/v1/usage",
				"GET /admin/v1/routes",
				"GET /admin/v1/events",
				"GET /metrics",
			},
		})
	}
}

// ModelsHandler lists the configured models in the requested format's shape.
func ModelsHandler(d Dependencies, format config.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfg := d.Config()
		type entry struct {
			id      string
			ownedBy string
		}
		var list []entry
		for i := range cfg.Providers {
			p := &cfg.Providers[i]
			if !p.IsEnabled() {
				continue
			}
			for j := range p.Models {
				m := &p.Models[j]
				if !m.IsEnabled() {
					continue
				}
				list = append(list, entry{id: p.ID + "/" + m.ID, ownedBy: p.ID})
			}
		}
		for id := range cfg.ModelAliases {
			list = append(list, entry{id: id, ownedBy: "llmrouter"})
		}

		w.Header().Set("Content-Type", "application/json")
		created := d.now().Unix()
		if format == config.FormatClaude {
			data := make([]map[string]any, 0, len(list))
			for _, e := range list {
				data = append(data, map[string]any{
					"type":         "model",
					"id":           e.id,
					"display_name": e.id,
					"created_at":   time.Unix(created, 0).UTC().Format(time.RFC3339),
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"data":     data,
				"has_more": false,
			})
			return
		}
		data := make([]map[string]any, 0, len(list))
		for _, e := range list {
			data = append(data, map[string]any{
				"id":       e.id,
				"object":   "model",
				"created":  created,
				"owned_by": e.ownedBy,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
		})
	}
}
