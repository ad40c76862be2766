package httpapi

import (
	"encoding/json"
	"net/http"
)

// evidenceDLQ is GET /evidence/dlq: a read-only listing of Blockchain
// Queue messages that exhausted their retry budget.
func (h *handlers) evidenceDLQ(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.d.EvidenceDLQ == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": []struct{}{}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"entries": h.d.EvidenceDLQ.DLQ()})
}

// emailDLQ is GET /email/dlq: a read-only listing of emails the Email
// Pipeline gave up delivering.
func (h *handlers) emailDLQ(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.d.EmailDLQ == nil {
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": []struct{}{}})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"entries": h.d.EmailDLQ.List()})
}
