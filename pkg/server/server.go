// Package server provides the public entry point for initializing the
// ChittyRouter gateway.
//
// This package exists in pkg/ (not internal/) so that downstream binaries
// can import it and compose the full server with deployment-specific
// overrides, matching the teacher's pkg/server layering.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"net"
	"net/http"
	"net/smtp"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/chittycorp/chittyrouter/internal/agent"
	chittyauth "github.com/chittycorp/chittyrouter/internal/auth"
	"github.com/chittycorp/chittyrouter/internal/config"
	"github.com/chittycorp/chittyrouter/internal/dispatcher"
	"github.com/chittycorp/chittyrouter/internal/emailpipeline"
	"github.com/chittycorp/chittyrouter/internal/evidence"
	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/guardrails"
	"github.com/chittycorp/chittyrouter/internal/httpapi"
	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/memory/aggregate"
	"github.com/chittycorp/chittyrouter/internal/memory/episodic"
	"github.com/chittycorp/chittyrouter/internal/memory/semantic"
	"github.com/chittycorp/chittyrouter/internal/memory/working"
	"github.com/chittycorp/chittyrouter/internal/minting"
	"github.com/chittycorp/chittyrouter/internal/orchestrator"
	"github.com/chittycorp/chittyrouter/internal/pipeline"
	"github.com/chittycorp/chittyrouter/internal/policy"
	"github.com/chittycorp/chittyrouter/internal/synchub"
	"github.com/chittycorp/chittyrouter/internal/telemetry"
)

// reindexInterval is how often the Reindexer sweeps the sliding window.
const reindexInterval = 15 * time.Minute

// consumerPollInterval is how often the Blockchain Queue Consumer drains
// a batch.
const consumerPollInterval = 5 * time.Second

// Server holds the initialized ChittyRouter gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the loaded gateway configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// Gateway is the AI Gateway Client, exposed so operators can register
	// additional provider drivers after construction.
	Gateway *gateway.Gateway

	// Dispatcher is the Service Dispatcher.
	Dispatcher *dispatcher.Dispatcher

	// Agents is the Persistent Agent registry.
	Agents *agent.Registry

	// SyncHub is the Sync Hub.
	SyncHub *synchub.Hub

	// Pipeline is the five-stage identifier generation engine.
	Pipeline *pipeline.Engine

	// Evidence is the Evidence Pipeline's universal-ingestion entry point.
	Evidence *evidence.Pipeline

	// EmailPipeline is the Email Pipeline.
	EmailPipeline *emailpipeline.Pipeline
	EmailDLQ      *emailpipeline.MemoryDeadLetterStore

	// Consumer is the Blockchain Queue Consumer; nil when NATS or the
	// aggregate tier is unavailable at startup.
	Consumer *evidence.Consumer

	// AuthChain is the pluggable authentication provider chain.
	AuthChain *chittyauth.ProviderChain

	// Aggregate is the Tier 4 durable store; nil when Postgres is
	// unreachable at startup (the gateway degrades to the in-memory tiers
	// only, same as the teacher's pgvector fallback).
	Aggregate *aggregate.Store

	// natsConn backs both the Blockchain Queue producer (evidencePipeline's
	// Queue, the Reindexer's Queue) and the Consumer; nil when NATS is
	// unreachable at startup.
	natsConn *nats.Conn

	// cancelBackground stops the reindex and blockchain-consumer loops.
	cancelBackground context.CancelFunc

	// shutdownTelemetry flushes the OTel exporter.
	shutdownTelemetry func(context.Context) error
}

// New initializes every ChittyRouter collaborator from environment
// configuration and returns a ready Server.
func New(ctx context.Context) (*Server, error) {
	cfg := config.Load()

	shutdownTelemetry, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	identity := identityclient.New(identityAuthorityURL())

	// ── Memory tiers ─────────────────────────────────────────
	var workingStore working.Store
	redisStore := working.NewRedisStore(cfg.Redis.Addr)
	if err := redisStore.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("⚠️  Redis unreachable, falling back to local working-memory store")
		workingStore = working.NewLocalStore()
	} else {
		workingStore = redisStore
		log.Info().Str("addr", cfg.Redis.Addr).Msg("✅ Working memory (Redis) connected")
	}

	episodicStore := episodic.New("", 90*24*time.Hour)
	log.Info().Msg("✅ Episodic memory store initialized")

	semanticStore := semantic.New(cfg.Semantic.EmbeddingDim)
	log.Info().Int("dim", cfg.Semantic.EmbeddingDim).Msg("✅ Semantic memory store initialized")

	var aggregateStore *aggregate.Store
	if store, err := aggregate.New(ctx, cfg.Database.URL); err != nil {
		log.Warn().Err(err).Msg("⚠️  Postgres unreachable, aggregate memory tier disabled")
	} else {
		aggregateStore = store
		log.Info().Msg("✅ Aggregate memory store connected")
	}

	// ── AI Gateway ───────────────────────────────────────────
	gw := gateway.New()
	registerGatewayDrivers(gw)
	log.Info().Msg("✅ AI Gateway initialized")

	// ── Service Dispatcher ───────────────────────────────────
	disp := dispatcher.New(gw)
	log.Info().Msg("✅ Service Dispatcher initialized")

	// ── Persistent Agent registry ────────────────────────────
	agents := agent.NewRegistry(agent.Config{
		Working:    workingStore,
		Semantic:   semanticStore,
		Episodic:   episodicStore,
		Aggregate:  aggregateStore,
		Gateway:    gw,
		Identity:   identity,
		WorkingTTL: time.Duration(cfg.AgentMem.WorkingTTLSec) * time.Second,
		Guardrails: &guardrails.Service{},
	})
	log.Info().Msg("✅ Persistent Agent registry initialized")

	// ── Sync Hub ─────────────────────────────────────────────
	hub := synchub.New(synchub.Config{Identity: identity})
	log.Info().Msg("✅ Sync Hub initialized")

	// ── Pipeline Execution engine ────────────────────────────
	// Trust and authorization are policy decisions, not external
	// services, so both stages are wired to a concrete tier-weighted
	// implementation (internal/policy) rather than left nil: every
	// caller that reaches /pipeline/*/generate has already cleared the
	// mandatory auth chain, and the resulting contracts.Identity.Role is
	// the only signal available to score and gate it.
	pipelineEngine := pipeline.New(identity, policy.TierTrustScorer{}, policy.AuthenticatedAuthorizer{})
	log.Info().Msg("✅ Pipeline Execution engine initialized")

	// ── Evidence Pipeline ────────────────────────────────────
	evidenceMinter := &evidence.PipelineMinter{Engine: pipelineEngine, Kind: "evidence", Source: "evidence-pipeline"}
	var evidenceLedger evidence.Ledger
	var evidenceSink evidence.Sink
	if aggregateStore != nil {
		pgLedger := evidence.NewPGLedger(aggregateStore.Pool())
		if err := pgLedger.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️  Evidence ledger migration failed")
		} else {
			evidenceLedger = pgLedger
		}
		pgSink := evidence.NewPGSink(aggregateStore.Pool())
		if err := pgSink.Migrate(ctx); err != nil {
			log.Warn().Err(err).Msg("⚠️  Minting anchor migration failed")
		} else {
			evidenceSink = pgSink
		}
	}
	// ── Blockchain Queue (shared NATS connection) ────────────
	// One connection backs the producer side used by the Evidence
	// Pipeline and Reindexer (evidence.NatsQueue) and the Consumer
	// subscribed below; nil/unset on every path degrades gracefully
	// rather than blocking evidence ingestion.
	var natsConn *nats.Conn
	var evidenceQueue evidence.Queue
	if nc, err := nats.Connect(cfg.NATS.URL); err != nil {
		log.Warn().Err(err).Msg("⚠️  NATS unreachable, Blockchain Queue producer disabled")
	} else {
		natsConn = nc
		evidenceQueue = evidence.NewNatsQueue(nc)
		log.Info().Msg("✅ Blockchain Queue producer connected")
	}

	evidencePipeline := &evidence.Pipeline{
		Identity:  evidenceMinter,
		Ledger:    evidenceLedger,
		Semantic:  semanticStore,
		Queue:     evidenceQueue,
		Extractor: evidence.NewGatewayExtractor(gw, 20*time.Second),
		Scorer:    evidence.NewGatewayScorer(gw, 20*time.Second),
		Embedder:  gw,
	}
	log.Info().Msg("✅ Evidence Pipeline initialized")

	// ── Minting Decision Service ─────────────────────────────
	var beacon minting.BeaconSource
	if cfg.Beacon.Enabled && cfg.Beacon.URL != "" {
		beacon = minting.NewHTTPBeaconSource(cfg.Beacon.URL)
	}
	decider := minting.NewDecider(minting.Policy{
		HardScoreThreshold: cfg.Mint.SecurityThreshold,
		HardRandomPercent:  cfg.Mint.HardRandomPercent,
		BeaconEnabled:      cfg.Beacon.Enabled,
	}, beacon)
	log.Info().Msg("✅ Minting Decision Service initialized")

	// ── Service Integration Orchestrator ─────────────────────
	// No concrete SchemaValidator/EventStore/IntegrityVerifier/
	// ComplianceChecker/CanonicalStore/CaseLinker implementation exists
	// in this deployment; every step gracefully no-ops on a nil
	// collaborator, so the orchestrator still sequences correctly with
	// all six left unset until those external services are stood up.
	orch := &orchestrator.Orchestrator{Identity: identity}
	log.Info().Msg("✅ Service Integration Orchestrator initialized (no external collaborators wired)")

	// ── Email Pipeline ───────────────────────────────────────
	emailPipeline, emailDLQ := buildEmailPipeline(cfg, gw, identity, workingStore, episodicStore)
	log.Info().Msg("✅ Email Pipeline initialized")

	// ── Blockchain Queue Consumer ─────────────────────────────
	var consumer *evidence.Consumer
	bgCtx, cancelBackground := context.WithCancel(context.Background())
	if natsConn == nil {
		log.Warn().Msg("⚠️  NATS unreachable, Blockchain Queue Consumer disabled")
	} else if evidenceLedger == nil || evidenceSink == nil {
		log.Warn().Msg("⚠️  Aggregate tier unavailable, Blockchain Queue Consumer disabled")
	} else {
		c, err := evidence.NewConsumer(natsConn, evidence.ConsumerConfig{}, evidenceLedger, decider, orch, evidenceSink, nil)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️  Blockchain Queue Consumer init failed")
		} else {
			consumer = c
			log.Info().Str("subject", cfg.NATS.QueueSubject).Msg("✅ Blockchain Queue Consumer subscribed")
			go runConsumerLoop(bgCtx, consumer, disp)
		}
	}

	// ── Reindexer ─────────────────────────────────────────────
	if evidenceLedger != nil {
		reindexer := &evidence.Reindexer{
			Ledger:   evidenceLedger,
			Scorer:   evidencePipeline.Scorer,
			Semantic: semanticStore,
			Identity: evidenceMinter,
			Embedder: gw,
			Queue:    evidenceQueue,
		}
		go runReindexLoop(bgCtx, reindexer, disp)
		log.Info().Msg("✅ Reindexer scheduled")
	}

	// ── Pluggable Auth ────────────────────────────────────────
	// Every non-health endpoint requires a successful Authenticate; this
	// is a hardcoded property of internal/auth.Middleware, not a
	// toggle. cfg.Auth.RequireAuth is retained for operational
	// visibility (surfaced in the startup log below) rather than wired
	// to a bypass, since disabling auth entirely is not a supported
	// deployment mode for this gateway.
	if !cfg.Auth.RequireAuth {
		log.Warn().Msg("⚠️  CHITTYROUTER_REQUIRE_AUTH=false has no effect: authentication is always mandatory on non-health routes")
	}
	authChain := chittyauth.NewProviderChain()
	apiKeyProvider := chittyauth.NewAPIKeyProvider()
	if apiKeyProvider.Enabled() {
		authChain.RegisterProvider(apiKeyProvider)
	}
	svcAcctProvider := chittyauth.NewServiceAccountProvider()
	if svcAcctProvider.Enabled() {
		authChain.RegisterProvider(svcAcctProvider)
	}

	// ── HTTP surface ──────────────────────────────────────────
	router := httpapi.NewRouter(&httpapi.Deps{
		Config:      cfg,
		Dispatcher:  disp,
		Gateway:     gw,
		Agents:      agents,
		SyncHub:     hub,
		Pipeline:    pipelineEngine,
		AuthChain:   authChain,
		EvidenceDLQ: consumer,
		EmailDLQ:    emailDLQ,
	})

	return &Server{
		Handler:           router,
		Config:            cfg,
		Port:              cfg.Port,
		Gateway:           gw,
		Dispatcher:        disp,
		Agents:            agents,
		SyncHub:           hub,
		Pipeline:          pipelineEngine,
		Evidence:          evidencePipeline,
		EmailPipeline:     emailPipeline,
		EmailDLQ:          emailDLQ,
		Consumer:          consumer,
		AuthChain:         authChain,
		Aggregate:         aggregateStore,
		natsConn:          natsConn,
		cancelBackground:  cancelBackground,
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

// buildEmailPipeline wires the Email Pipeline's routing, whitelist, and
// notification collaborators from configuration.
func buildEmailPipeline(cfg *config.Config, gw *gateway.Gateway, identity *identityclient.Client, workingStore working.Store, episodicStore *episodic.Store) (*emailpipeline.Pipeline, *emailpipeline.MemoryDeadLetterStore) {
	whitelist := emailpipeline.NewWhitelist(nil, nil)
	router := emailpipeline.NewRouter(nil, "general")
	dlq := emailpipeline.NewMemoryDeadLetterStore(200)

	ecfg := emailpipeline.Config{
		Whitelist:       whitelist,
		Router:          router,
		RejectThreshold: cfg.Spam.RejectThreshold,
		SenderLimit:     cfg.RateLimit.SenderPerHour,
		SenderWindow:    time.Duration(cfg.RateLimit.SenderWindowSeconds) * time.Second,
		DomainLimit:     cfg.RateLimit.DomainPerHour,
		DomainWindow:    time.Duration(cfg.RateLimit.DomainWindowSeconds) * time.Second,
		ClassifyTimeout: 20 * time.Second,
		ForwardRetries:  3,
		AuditBCC:        cfg.SMTP.AuditBCC,
		Working:         workingStore,
		Episodic:        episodicStore,
		Gateway:         gw,
		Identity:        identity,
		DeadLetter:      dlq.Record,
	}

	if webhookURL := os.Getenv("CHITTYROUTER_NOTIFY_WEBHOOK_URL"); webhookURL != "" {
		notifier := emailpipeline.NewWebhookNotifier(webhookURL, os.Getenv("CHITTYROUTER_NOTIFY_WEBHOOK_SECRET"))
		ecfg.Notify = notifier.Notify
	}

	if cfg.SMTP.Addr != "" {
		var auth smtp.Auth
		if cfg.SMTP.Username != "" {
			host, _, _ := net.SplitHostPort(cfg.SMTP.Addr)
			auth = smtp.PlainAuth("", cfg.SMTP.Username, cfg.SMTP.Password, host)
		}
		forwarder := emailpipeline.NewSMTPForwarder(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.AuditBCC, auth)
		ecfg.Forward = forwarder.Forward
		log.Info().Str("addr", cfg.SMTP.Addr).Msg("✅ Email forward relay configured")
	} else {
		log.Warn().Msg("⚠️  SMTP_ADDR unset, email forward step disabled (forward-with-retry becomes a no-op)")
	}

	return emailpipeline.New(ecfg), dlq
}

// registerGatewayDrivers registers a driver for each of openai, anthropic,
// mistral, huggingface and workersAI whose credentials are present in the
// environment. The gateway's fallback chain also names google, but no
// google driver exists, so google is never registered.
func registerGatewayDrivers(gw *gateway.Gateway) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		gw.RegisterDriver(gateway.NewOpenAIDriver(envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"), key))
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		gw.RegisterDriver(gateway.NewAnthropicDriver(envOr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"), key))
	}
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" {
		gw.RegisterDriver(gateway.NewOpenAICompatibleDriver("mistral", envOr("MISTRAL_BASE_URL", "https://api.mistral.ai/v1"), key))
	}
	if key := os.Getenv("HUGGINGFACE_API_KEY"); key != "" {
		gw.RegisterDriver(gateway.NewOpenAICompatibleDriver("huggingface", envOr("HUGGINGFACE_BASE_URL", "https://api-inference.huggingface.co/v1"), key))
	}
	if key := os.Getenv("WORKERS_AI_API_KEY"); key != "" {
		gw.RegisterDriver(gateway.NewOpenAICompatibleDriver("workersAI", os.Getenv("WORKERS_AI_BASE_URL"), key))
	}
}

// runConsumerLoop drains the Blockchain Queue on a fixed interval until
// ctx is canceled.
func runConsumerLoop(ctx context.Context, c *evidence.Consumer, disp *dispatcher.Dispatcher) {
	ticker := time.NewTicker(consumerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx, disp.NextCorrelationID())
		}
	}
}

// runReindexLoop re-scores the evidence ledger's sliding window on a
// fixed interval until ctx is canceled.
func runReindexLoop(ctx context.Context, r *evidence.Reindexer, disp *dispatcher.Dispatcher) {
	ticker := time.NewTicker(reindexInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Run(ctx, disp.NextCorrelationID()); err != nil {
				log.Warn().Err(err).Msg("reindex pass failed")
			}
		}
	}
}

func identityAuthorityURL() string {
	return envOr("CHITTYID_AUTHORITY_URL", "http://localhost:9090")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Shutdown stops all background goroutines and flushes telemetry. Should
// be called on graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBackground != nil {
		s.cancelBackground()
	}
	if s.Aggregate != nil {
		s.Aggregate.Close()
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	if s.shutdownTelemetry != nil {
		return s.shutdownTelemetry(ctx)
	}
	return nil
}
