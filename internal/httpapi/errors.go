package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/llmrouter/llmrouter/internal/balancer"
)

// jsonError writes a framing error: {"error": "<msg>"}.
func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// routeErrorBody is the structured shape for route-failed responses.
type routeErrorBody struct {
	Type  string           `json:"type"`
	Error routeErrorDetail `json:"error"`
}

type routeErrorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// writeRouteError writes {type:"error", error:{type, message}} with the given
// HTTP status.
func writeRouteError(w http.ResponseWriter, errType, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(routeErrorBody{
		Type:  "error",
		Error: routeErrorDetail{Type: errType, Message: msg},
	})
}

// errorTypeForCategory maps a failure category onto the wire error type.
func errorTypeForCategory(category string) string {
	switch category {
	case balancer.CategoryInvalidRequest:
		return "invalid_request_error"
	case balancer.CategoryRateLimited:
		return "rate_limit_error"
	case balancer.CategoryNotSupported:
		return "not_found_error"
	case balancer.CategoryClientError:
		return "permission_error"
	case balancer.CategoryNetworkError, balancer.CategoryServerError:
		return "api_error"
	default:
		return "api_error"
	}
}
