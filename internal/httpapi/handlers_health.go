package httpapi

import (
	"encoding/json"
	"net/http"
)

// health reports the static service identity plus a rough count of
// wired services, per the documented {service, status, version,
// services: N} shape. Bypasses auth (internal/auth.Middleware treats
// /health as public).
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	services := 0
	if h.d.Dispatcher != nil {
		services++
	}
	if h.d.Gateway != nil {
		services++
	}
	if h.d.Agents != nil {
		services++
	}
	if h.d.SyncHub != nil {
		services++
	}
	if h.d.Pipeline != nil {
		services++
	}

	version := ""
	if h.d.Config != nil {
		version = h.d.Config.Version
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"service":  "chittyrouter",
		"status":   "healthy",
		"version":  version,
		"services": services,
	})
}

// routerStats returns the dispatcher's per-target resolution counters.
func (h *handlers) routerStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.d.Dispatcher.Stats())
}
