package evidence

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/chittycorp/chittyrouter/internal/minting"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// queueSubject is the NATS subject the Blockchain Queue publishes and
// pulls from. dlqSubject receives exhausted-retry envelopes.
const (
	queueSubject = "chittyrouter.evidence.blockchain"
	dlqSubject   = "chittyrouter.evidence.blockchain.dlq"
)

// envelope is the wire shape of one Blockchain Queue message.
type envelope struct {
	ChittyID  models.Identifier `json:"chittyId"`
	Priority  models.Priority   `json:"priority"`
	EnqueuedAt time.Time        `json:"enqueuedAt"`
}

// dlqEnvelope wraps an exhausted envelope with the last error seen.
type dlqEnvelope struct {
	Envelope envelope `json:"envelope"`
	LastErr  string   `json:"lastError"`
}

// NatsQueue is the Blockchain Queue's producer side, grounded on the
// teacher's reach for nats.go for durable pub/sub.
type NatsQueue struct {
	nc *nats.Conn
}

// NewNatsQueue wraps an existing NATS connection.
func NewNatsQueue(nc *nats.Conn) *NatsQueue {
	return &NatsQueue{nc: nc}
}

// Enqueue publishes one evidence record for asynchronous minting-decision
// processing.
func (q *NatsQueue) Enqueue(ctx context.Context, chittyID models.Identifier, priority models.Priority, at time.Time) error {
	body, err := json.Marshal(envelope{ChittyID: chittyID, Priority: priority, EnqueuedAt: at})
	if err != nil {
		return err
	}
	return q.nc.Publish(queueSubject, body)
}

// Orchestrator is the Service Integration Orchestrator's evidence-path
// contract, run in parallel with the Minting Decision Service for every
// dequeued message.
type Orchestrator interface {
	Run(ctx context.Context, correlationID string, chittyID models.Identifier) error
}

// Sink anchors a Minting Decision's chosen strategy: soft records an
// off-chain hash anchor, hard records full content on-chain.
type Sink interface {
	AnchorSoft(ctx context.Context, d models.MintingDecision, payloadHash string) error
	AnchorHard(ctx context.Context, d models.MintingDecision, payloadHash string) error
}

// BillingSink records a monetization event for one decision.
type BillingSink interface {
	Record(ctx context.Context, ev minting.BillingEvent) error
}

// ConsumerConfig bundles the Blockchain Queue Consumer's tunables.
type ConsumerConfig struct {
	BatchSize    int           // B, default 20
	BatchTimeout time.Duration // D, default 5s
	PerMsgDeadline time.Duration // default 10s
	MaxRetries   uint64        // R, default 3
}

// Consumer pulls batches from the Blockchain Queue and drives each message
// through the Minting Decision Service and the Service Integration
// Orchestrator in parallel, never blocking past its per-message deadline.
type Consumer struct {
	cfg          ConsumerConfig
	nc           *nats.Conn
	sub          *nats.Subscription
	ledger       Ledger
	decider      *minting.Decider
	orchestrator Orchestrator
	sink         Sink
	billing      BillingSink
	dlq          *dlqBuffer
}

// DLQEntry is one retry-exhausted message, as surfaced by GET /evidence/dlq.
type DLQEntry struct {
	ChittyID   models.Identifier `json:"chittyId"`
	Priority   models.Priority   `json:"priority"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
	LastError  string            `json:"lastError"`
	DeadAt     time.Time         `json:"deadAt"`
}

// dlqBuffer is a small bounded ring buffer kept in memory alongside the
// core NATS publish to the dead-letter subject, so the dead letter queue can be inspected without
// standing up a separate subscriber.
type dlqBuffer struct {
	mu      sync.Mutex
	entries []DLQEntry
	cap     int
}

func newDLQBuffer(capacity int) *dlqBuffer {
	return &dlqBuffer{cap: capacity}
}

func (b *dlqBuffer) record(e DLQEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
}

func (b *dlqBuffer) List() []DLQEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]DLQEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// DLQ returns the consumer's in-memory dead letter view, newest last.
func (c *Consumer) DLQ() []DLQEntry {
	return c.dlq.List()
}

// NewConsumer subscribes to the queue subject with a core NATS synchronous
// subscription; it is not a durable consumer, so messages published while
// no consumer is subscribed are not delivered to it.
func NewConsumer(nc *nats.Conn, cfg ConsumerConfig, ledger Ledger, decider *minting.Decider, orchestrator Orchestrator, sink Sink, billing BillingSink) (*Consumer, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 5 * time.Second
	}
	if cfg.PerMsgDeadline <= 0 {
		cfg.PerMsgDeadline = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	sub, err := nc.SubscribeSync(queueSubject)
	if err != nil {
		return nil, err
	}
	return &Consumer{cfg: cfg, nc: nc, sub: sub, ledger: ledger, decider: decider, orchestrator: orchestrator, sink: sink, billing: billing, dlq: newDLQBuffer(200)}, nil
}

// RunOnce pulls up to BatchSize messages within BatchTimeout and processes
// each independently; one message's failure never blocks another's.
func (c *Consumer) RunOnce(ctx context.Context, correlationID string) {
	deadline := time.Now().Add(c.cfg.BatchTimeout)
	var batch []*nats.Msg
	for len(batch) < c.cfg.BatchSize {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := c.sub.NextMsg(remaining)
		if err != nil {
			break
		}
		batch = append(batch, msg)
	}

	var wg sync.WaitGroup
	for _, msg := range batch {
		wg.Add(1)
		go func(m *nats.Msg) {
			defer wg.Done()
			c.process(ctx, correlationID, m)
		}(msg)
	}
	wg.Wait()
}

func (c *Consumer) process(ctx context.Context, correlationID string, msg *nats.Msg) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		log.Warn().Err(err).Msg("blockchain queue: malformed envelope discarded")
		return
	}

	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.PerMsgDeadline)
		defer cancel()
		return c.processOnce(cctx, correlationID, env)
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries)
	lastErr := backoff.Retry(op, bo)
	if lastErr != nil {
		c.deadLetter(ctx, env, lastErr)
	}
}

func (c *Consumer) processOnce(ctx context.Context, correlationID string, env envelope) error {
	rec, err := c.ledger.Get(ctx, env.ChittyID)
	if err != nil {
		return err
	}

	var decision models.MintingDecision
	var decideErr, orchestrateErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		decision, decideErr = c.decider.Decide(ctx, rec.ChittyID, rec.PayloadHash, minting.ScoreInputs{
			DocumentType:      rec.DocumentType,
			Classification:    rec.Classification,
			MonetaryValueUSD:  rec.MonetaryValueUSD,
			CallerLegalWeight: rec.CallerLegalWeight,
		})
	}()
	go func() {
		defer wg.Done()
		orchestrateErr = c.orchestrator.Run(ctx, correlationID, rec.ChittyID)
	}()
	wg.Wait()

	if decideErr != nil {
		return decideErr
	}
	if orchestrateErr != nil {
		return orchestrateErr
	}

	if decision.Strategy == models.MintHard {
		if err := c.sink.AnchorHard(ctx, decision, rec.PayloadHash); err != nil {
			return err
		}
	} else {
		if err := c.sink.AnchorSoft(ctx, decision, rec.PayloadHash); err != nil {
			return err
		}
	}

	if c.billing != nil {
		if err := c.billing.Record(ctx, minting.Billing(decision)); err != nil {
			log.Warn().Err(err).Str("chittyId", string(rec.ChittyID)).Msg("blockchain queue: billing record failed")
		}
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, env envelope, lastErr error) {
	c.dlq.record(DLQEntry{
		ChittyID: env.ChittyID, Priority: env.Priority, EnqueuedAt: env.EnqueuedAt,
		LastError: lastErr.Error(), DeadAt: time.Now().UTC(),
	})

	body, err := json.Marshal(dlqEnvelope{Envelope: env, LastErr: lastErr.Error()})
	if err != nil {
		log.Error().Err(err).Msg("blockchain queue: dlq envelope marshal failed")
		return
	}
	if err := c.nc.Publish(dlqSubject, body); err != nil {
		log.Error().Err(err).Str("chittyId", string(env.ChittyID)).Msg("blockchain queue: dlq publish failed")
	}
}
