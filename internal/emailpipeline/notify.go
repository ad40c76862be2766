package emailpipeline

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// WebhookNotifier posts critical-priority classifications to a configured
// webhook URL, HMAC-signing the body when a secret is configured.
//
// Grounded on the teacher's WebhookChannelDriver.Send (internal/notify),
// generalized from a generic notification-channel event to the email
// pipeline's critical-priority alert, dropping the MCP-tool dispatch half
// since ChittyRouter has no MCP tool registry.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier builds a notifier against a webhook URL; secret may
// be empty to skip HMAC signing.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{url: url, secret: secret, client: &http.Client{Timeout: 10 * time.Second}}
}

type criticalAlert struct {
	From         string    `json:"from"`
	Subject      string    `json:"subject"`
	Workstream   string    `json:"workstream"`
	Priority     string    `json:"priority"`
	UrgencyScore float64   `json:"urgencyScore"`
	At           time.Time `json:"at"`
}

// Notify is fire-and-forget and best-effort: it logs failures but never
// blocks or fails the pipeline, matching the spec's "best-effort" wording
// for critical-priority notification.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message, c Classification) {
	if n.url == "" {
		return
	}
	body, err := json.Marshal(criticalAlert{
		From:         msg.From,
		Subject:      msg.Subject,
		Workstream:   c.Workstream,
		Priority:     c.Priority,
		UrgencyScore: c.UrgencyScore,
		At:           time.Now().UTC(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("email pipeline: webhook payload marshal failed")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Warn().Err(err).Msg("email pipeline: webhook request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ChittyRouter-Event", "email.critical")
	if n.secret != "" {
		mac := hmac.New(sha256.New, []byte(n.secret))
		mac.Write(body)
		req.Header.Set("X-ChittyRouter-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("url", n.url).Msg("email pipeline: critical webhook failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg(fmt.Sprintf("email pipeline: critical webhook returned %d", resp.StatusCode))
	}
}
