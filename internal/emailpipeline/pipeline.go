package emailpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/memory/episodic"
	"github.com/chittycorp/chittyrouter/internal/memory/working"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// Config bundles the pipeline's collaborators and policy knobs.
type Config struct {
	Whitelist          *Whitelist
	Router             *Router
	RejectThreshold     int
	SenderLimit         int
	SenderWindow        time.Duration
	DomainLimit         int
	DomainWindow        time.Duration
	ClassifyTimeout     time.Duration
	ForwardRetries      uint64
	AuditBCC            string

	Working  working.Store
	Episodic *episodic.Store
	Gateway  *gateway.Gateway
	Identity *identityclient.Client

	// Notify is called fire-and-forget for critical-priority messages.
	Notify func(ctx context.Context, msg Message, c Classification)
	// Forward delivers the message to destination; returns an error to
	// trigger retry-with-backoff.
	Forward func(ctx context.Context, msg Message, destination string) error
	// DeadLetter persists a permanently-failed message with its envelope.
	DeadLetter func(ctx context.Context, msg Message, reason string)
}

// Pipeline runs the nine email-processing steps.
type Pipeline struct {
	cfg Config
}

// New builds a Pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{cfg: cfg}
}

// Process runs one message through the full pipeline, short-circuiting on
// the first reject. It never returns an error for a rejection — rejection
// is a terminal Outcome, consistent with the "email preservation" testable
// property (every RECEIVED message reaches exactly one terminal state).
func (p *Pipeline) Process(ctx context.Context, correlationID string, msg Message) Outcome {
	now := time.Now().UTC()
	out := Outcome{State: StateReceived, ProcessedAt: now}

	whitelisted := p.cfg.Whitelist != nil && p.cfg.Whitelist.Allows(msg.From)

	if !whitelisted {
		if score := SpamScore(msg); score >= p.cfg.RejectThreshold {
			return p.reject(ctx, msg, "spam")
		}

		rl := working.NewRateLimiter(p.cfg.Working)
		senderKey := "ratelimit:sender:" + msg.From
		if ok, _, _ := rl.Allow(ctx, senderKey, p.cfg.SenderLimit, p.cfg.SenderWindow); !ok {
			return p.reject(ctx, msg, "rate-limit-sender")
		}

		domainKey := "ratelimit:domain:" + senderDomain(msg.From)
		if ok, _, _ := rl.Allow(ctx, domainKey, p.cfg.DomainLimit, p.cfg.DomainWindow); !ok {
			return p.reject(ctx, msg, "rate-limit-domain")
		}
	}

	out.State = StateAccepted

	classification := p.classify(ctx, msg)
	out.State = StateClassified

	destination, _ := p.cfg.Router.Route(classification)
	out.State = StateRouted
	out.Workstream = classification.Workstream
	out.Priority = classification.Priority
	out.DestinationTo = destination

	if classification.Priority == string(models.PriorityCritical) && p.cfg.Notify != nil {
		go p.cfg.Notify(context.WithoutCancel(ctx), msg, classification)
	}

	chittyID, err := p.cfg.Identity.Mint(ctx, correlationID, models.TypeEvent, map[string]string{"kind": "email"})
	if err != nil {
		log.Error().Err(err).Msg("email pipeline: identifier mint failed")
		return p.reject(ctx, msg, "mint-failed")
	}
	out.ChittyID = string(chittyID)

	p.archive(ctx, msg, string(chittyID), now)
	out.State = StateArchived

	if err := p.forwardWithRetry(ctx, msg, destination); err != nil {
		if p.cfg.DeadLetter != nil {
			p.cfg.DeadLetter(ctx, msg, "forward-failed")
		}
		out.State = StateDLQ
		out.RejectReason = "forward-failed"
		return out
	}

	out.State = StateDelivered
	return out
}

func (p *Pipeline) reject(ctx context.Context, msg Message, reason string) Outcome {
	if p.cfg.DeadLetter != nil {
		p.cfg.DeadLetter(ctx, msg, reason)
	}
	return Outcome{State: StateRejected, RejectReason: reason, ProcessedAt: time.Now().UTC()}
}

// classify has a hard deadline; on timeout it falls through to
// workstream=general, priority=normal rather than blocking the pipeline.
func (p *Pipeline) classify(ctx context.Context, msg Message) Classification {
	timeout := p.cfg.ClassifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt := fmt.Sprintf("Classify this email.\nSubject: %s\nBody: %s\nReturn workstream (litigation|finance|compliance|operations|general) and priority (low|normal|high|critical).", msg.Subject, msg.BodyText)
	res := p.cfg.Gateway.Complete(cctx, gateway.CompletionRequest{Prompt: prompt})
	if !res.Success {
		return Classification{Workstream: "general", Priority: "normal"}
	}
	return parseClassification(res.Text)
}

// parseClassification does a best-effort extraction from the model's free
// text; any failure degrades to workstream=general/priority=normal.
func parseClassification(text string) Classification {
	c := Classification{Workstream: "general", Priority: "normal"}
	for _, ws := range []string{"litigation", "finance", "compliance", "operations"} {
		if containsFold(text, ws) {
			c.Workstream = ws
			break
		}
	}
	for _, pr := range []string{"critical", "high", "normal", "low"} {
		if containsFold(text, pr) {
			c.Priority = pr
			break
		}
	}
	return c
}

func containsFold(haystack, needle string) bool {
	hl, nl := []rune(haystack), []rune(needle)
	if len(nl) == 0 || len(nl) > len(hl) {
		return false
	}
	lower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + 32
		}
		return r
	}
	for i := 0; i+len(nl) <= len(hl); i++ {
		match := true
		for j := range nl {
			if lower(hl[i+j]) != lower(nl[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (p *Pipeline) archive(ctx context.Context, msg Message, chittyID string, at time.Time) {
	if p.cfg.Episodic == nil {
		return
	}
	key := episodic.EmailKey(at, chittyID)
	payload := []byte(fmt.Sprintf("from:%s\nto:%s\nsubject:%s\n\n%s", msg.From, msg.To, msg.Subject, msg.BodyText))
	if err := p.cfg.Episodic.Put(ctx, key, payload); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("email pipeline: archive failed")
	}
	if p.cfg.Working != nil {
		dailyKey := fmt.Sprintf("daily:emails:%s", at.Format("2006-01-02"))
		_, _ = p.cfg.Working.Incr(ctx, dailyKey, 48*time.Hour)
	}
}

// forwardWithRetry retries the forward step with exponential backoff up
// to ForwardRetries times before giving up.
func (p *Pipeline) forwardWithRetry(ctx context.Context, msg Message, destination string) error {
	if p.cfg.Forward == nil {
		return nil
	}
	attempts := p.cfg.ForwardRetries
	if attempts == 0 {
		attempts = 3
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), attempts)
	return backoff.Retry(func() error {
		return p.cfg.Forward(ctx, msg, destination)
	}, backoff.WithContext(bo, ctx))
}

// PayloadHash computes a content hash, used elsewhere for dedup/audit.
func PayloadHash(msg Message) string {
	h := sha256.Sum256([]byte(msg.From + msg.Subject + msg.BodyText))
	return hex.EncodeToString(h[:])
}
