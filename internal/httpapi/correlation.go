package httpapi

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// correlationID resolves the correlation ID to thread through
// downstream collaborators for this request: the dispatcher's
// per-request sequence, falling back to chi's request ID when no
// dispatcher is wired (e.g. in handler-only tests).
func (h *handlers) correlationID(r *http.Request) string {
	if h.d.Dispatcher != nil {
		return h.d.Dispatcher.NextCorrelationID()
	}
	return chimw.GetReqID(r.Context())
}
