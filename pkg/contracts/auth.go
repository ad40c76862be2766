// Package contracts defines the small set of interfaces that cross the
// internal/pkg boundary: the authentication contract consumed by the
// HTTP layer and implemented by internal/auth's providers.
package contracts

import (
	"context"
	"net/http"
	"time"
)

// ── Identity ────────────────────────────────────────────────

// Identity represents an authenticated caller — a human operator, an
// agent-to-agent service call, or a CI/CD pipeline.
//
// This is the contract boundary between authentication (pluggable, one
// of several provider strategies) and everything downstream of it: no
// handler ever knows whether the caller came from a static API key or
// a signed service token.
type Identity struct {
	// Subject is the unique identifier (API key hash, service account name).
	Subject string `json:"subject"`

	// DisplayName is a human-readable name.
	DisplayName string `json:"display_name,omitempty"`

	// Provider identifies which auth provider authenticated this identity.
	// Values: "apikey", "service_account".
	Provider string `json:"provider"`

	// Role scopes what the identity may do. Values: "operator", "service", "viewer".
	Role string `json:"role"`

	// ExpiresAt is when this identity's credential expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// ── AuthProvider ────────────────────────────────────────────

// AuthProvider authenticates an HTTP request and returns an Identity.
// Each provider implements one authentication strategy.
//
// The chain pattern:
//   - Return (*Identity, nil) → authenticated, stop chain
//   - Return (nil, nil) → this provider doesn't handle this request, try next
//   - Return (nil, error) → authentication was attempted but failed, reject
type AuthProvider interface {
	// Name returns the provider identifier (e.g. "apikey", "service_account").
	Name() string

	// Authenticate inspects the request and returns an Identity.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// Enabled returns whether this provider is configured and active.
	Enabled() bool
}

// ── AuthProviderChain ───────────────────────────────────────

// AuthProviderChain tries providers in priority order until one returns an Identity.
type AuthProviderChain interface {
	// Authenticate walks the chain of providers in order.
	// Returns the first successful Identity, or (nil, nil) if no provider matched.
	Authenticate(ctx context.Context, r *http.Request) (*Identity, error)

	// RegisterProvider adds a provider to the end of the chain.
	// Providers are tried in registration order.
	RegisterProvider(provider AuthProvider)
}
