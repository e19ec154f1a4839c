// Package amp applies the client-specific routing overlay. Requests from the
// Amp client identify themselves with x-amp-* headers; the overlay may
// substitute the requested route before resolution.
package amp

import (
	"net/http"

	"github.com/llmrouter/llmrouter/internal/config"
)

const (
	headerMode        = "x-amp-mode"
	headerAgent       = "x-amp-agent"
	headerApplication = "x-amp-application"
)

// Apply returns the route reference to resolve for this request. Maps are
// consulted most-specific first: agent+mode, agent, mode, application, then
// the requested model itself. When the request is identified as Amp traffic
// but nothing matches, fallbackRoute substitutes. Non-Amp requests and
// disabled overlays pass through unchanged.
func Apply(overlay *config.AmpRouting, requestedModel string, header http.Header) string {
	if overlay == nil || !overlay.Enabled {
		return requestedModel
	}

	mode := header.Get(headerMode)
	agent := header.Get(headerAgent)
	application := header.Get(headerApplication)
	if mode == "" && agent == "" && application == "" {
		return requestedModel
	}

	if agent != "" && mode != "" {
		if ref, ok := overlay.AgentModeMap[agent+":"+mode]; ok && ref != "" {
			return ref
		}
	}
	if agent != "" {
		if ref, ok := overlay.AgentMap[agent]; ok && ref != "" {
			return ref
		}
	}
	if mode != "" {
		if ref, ok := overlay.ModeMap[mode]; ok && ref != "" {
			return ref
		}
	}
	if application != "" {
		if ref, ok := overlay.ApplicationMap[application]; ok && ref != "" {
			return ref
		}
	}
	if ref, ok := overlay.ModelMap[requestedModel]; ok && ref != "" {
		return ref
	}
	if overlay.FallbackRoute != "" {
		return overlay.FallbackRoute
	}
	return requestedModel
}
