// Package httpapi wires the Service Dispatcher, Persistent Agent
// registry, Sync Hub, and Pipeline Execution engine onto the external
// HTTP surface.
//
// Grounded on the teacher's internal/api/router.go NewRouter — same
// chi + chimw.{RequestID,RealIP,Recoverer,Compress} + cors.Handler
// skeleton — generalized from the teacher's Kitchen/recipe/model-router
// route tree to this repo's agent/todo/session/pipeline tree, and with
// middleware.TenantExtractor dropped (no Kitchen concept) and the
// pluggable auth middleware made mandatory rather than optional.
package httpapi

import (
	"github.com/chittycorp/chittyrouter/internal/agent"
	"github.com/chittycorp/chittyrouter/internal/config"
	"github.com/chittycorp/chittyrouter/internal/dispatcher"
	"github.com/chittycorp/chittyrouter/internal/emailpipeline"
	"github.com/chittycorp/chittyrouter/internal/evidence"
	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/pipeline"
	"github.com/chittycorp/chittyrouter/internal/synchub"
	"github.com/chittycorp/chittyrouter/pkg/contracts"
)

// Deps bundles every collaborator a handler may call into. Handlers
// never reach past this struct for dependencies, matching the
// teacher's *handlers.Handlers aggregate-dependency style.
type Deps struct {
	Config     *config.Config
	Dispatcher *dispatcher.Dispatcher
	Gateway    *gateway.Gateway
	Agents     *agent.Registry
	SyncHub    *synchub.Hub
	Pipeline   *pipeline.Engine
	AuthChain  contracts.AuthProviderChain

	// EvidenceDLQ and EmailDLQ are optional read-side dead-letter views;
	// nil when the Blockchain Queue Consumer or Email Pipeline isn't
	// running (e.g. NATS unavailable at startup).
	EvidenceDLQ *evidence.Consumer
	EmailDLQ    *emailpipeline.MemoryDeadLetterStore
}
