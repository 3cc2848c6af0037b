package runtime

import (
	"net/http"
	"strings"

	jsoncodec "github.com/drblury/flowbus/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/flowbus/internal/runtime/logging"
)

func (b *Bus) registerWebUIHandlers() {
	if !b.Conf.WebUIEnabled {
		return
	}

	port := b.Conf.WebUIPort
	b.RegisterHTTPHandler(port, "/api/statistics", http.HandlerFunc(b.handleGetStatistics))
	b.RegisterHTTPHandler(port, "/api/namespaces", http.HandlerFunc(b.handleGetNamespaces))
	b.RegisterHTTPHandler(port, "/api/subscriptions", http.HandlerFunc(b.handleGetSubscriptions))
	b.RegisterHTTPHandler(port, "/api/metrics", http.HandlerFunc(b.handleGetMetrics))
}

func (b *Bus) handleGetStatistics(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, r, b.Statistics())
}

func (b *Bus) handleGetNamespaces(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, r, map[string][]string{"namespaces": b.ActiveNamespaces()})
}

func (b *Bus) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, r, b.Subscriptions())
}

func (b *Bus) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	b.writeJSON(w, r, b.metrics.GetSnapshot())
}

func (b *Bus) writeJSON(w http.ResponseWriter, r *http.Request, payload any) {
	w.Header().Set("Content-Type", "application/json")

	if len(b.Conf.WebUICORSAllowedOrigins) > 0 {
		origin := r.Header.Get("Origin")
		if allowedOrigin := b.getAllowedCORSOrigin(origin); allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
	}

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodHead:
	default:
		w.Header().Set("Allow", "GET, HEAD, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := jsoncodec.Encode(w, payload); err != nil {
		b.Logger.Error("Failed to encode API response", err, loggingpkg.LogFields{"path": r.URL.Path})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func (b *Bus) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range b.Conf.WebUICORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
