package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/llmrouter/llmrouter/internal/config"
	"github.com/llmrouter/llmrouter/internal/ratelimit"
	"github.com/llmrouter/llmrouter/internal/route"
	"github.com/llmrouter/llmrouter/internal/state"
)

// candidateView is one row of the admin candidate-state listing.
type candidateView struct {
	RequestModel string                `json:"requestModel"`
	Format       string                `json:"format"`
	Key          string                `json:"key"`
	Blocked      bool                  `json:"blocked"`
	State        *state.CandidateState `json:"state"`
}

// CandidatesHandler lists the candidate state rows for every enabled
// provider/model pair and wire format.
func CandidatesHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config()
		nowMs := d.now().UnixMilli()
		views := []candidateView{}
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
				ref := p.ID + "/" + m.ID
				for _, format := range config.KnownFormats {
					key := state.CandidateKey(ref, string(format))
					st, err := d.Store.GetCandidateState(r.Context(), key)
					if err != nil {
						jsonError(w, "state store failure: "+err.Error(), http.StatusInternalServerError)
						return
					}
					if st == nil {
						continue
					}
					views = append(views, candidateView{
						RequestModel: ref,
						Format:       string(format),
						Key:          key,
						Blocked:      st.BlockedUntil() > nowMs,
						State:        st,
					})
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"candidates": views})
	}
}

// usageView is one bucket's current-window consumption.
type usageView struct {
	ProviderID string  `json:"providerId"`
	BucketID   string  `json:"bucketId"`
	Models     []string `json:"models"`
	Requests   int     `json:"requests"`
	WindowKey  string  `json:"windowKey"`
	StartsAt   string  `json:"startsAt"`
	EndsAt     string  `json:"endsAt"`
	Used       int     `json:"used"`
	Remaining  int     `json:"remaining"`
	Ratio      float64 `json:"ratio"`
}

// UsageHandler reports every configured bucket's current window and remaining
// capacity.
func UsageHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := d.Config()
		now := d.now()
		views := []usageView{}
		for i := range cfg.Providers {
			p := &cfg.Providers[i]
			for _, rl := range p.RateLimits {
				if rl.Requests <= 0 {
					continue
				}
				win := ratelimit.ResolveWindow(rl.Window, now)
				used, err := d.Store.ReadBucketUsage(r.Context(), state.BucketKey(p.ID, rl.ID), win.Key)
				if err != nil {
					jsonError(w, "state store failure: "+err.Error(), http.StatusInternalServerError)
					return
				}
				remaining := rl.Requests - used
				if remaining < 0 {
					remaining = 0
				}
				views = append(views, usageView{
					ProviderID: p.ID,
					BucketID:   rl.ID,
					Models:     rl.Models,
					Requests:   rl.Requests,
					WindowKey:  win.Key,
					StartsAt:   win.StartsAt.Format(time.RFC3339),
					EndsAt:     win.EndsAt.Format(time.RFC3339),
					Used:       used,
					Remaining:  remaining,
					Ratio:      float64(remaining) / float64(rl.Requests),
				})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"buckets": views})
	}
}

// routeView summarizes one alias as the plan it currently resolves to.
type routeView struct {
	Alias      string   `json:"alias"`
	Strategy   string   `json:"strategy"`
	Candidates []string `json:"candidates"`
	Error      string   `json:"error,omitempty"`
}

// RoutesHandler resolves every configured alias and reports the resulting
// candidate chains.
func RoutesHandler(d Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		cfg := d.Config()
		views := []routeView{}
		for id := range cfg.ModelAliases {
			plan, err := route.Resolve(cfg, "alias:"+id, config.FormatOpenAI)
			v := routeView{Alias: id, Strategy: plan.RouteStrategy}
			if err != nil {
				v.Error = err.Error()
			}
			for _, c := range plan.Candidates() {
				v.Candidates = append(v.Candidates, c.RequestModelID+" ("+c.RouteTier+")")
			}
			views = append(views, v)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"routes": views})
	}
}
