// Package gateway implements the AI Gateway Client: a unified outbound
// client over N upstream providers with a per-provider cost model,
// cache-key support, and an ordered fallback chain.
//
// Generalized from the teacher's model-router provider-driver registry:
// the same ProviderDriver interface and ordered-fallback Route loop, with
// "recipe/kitchen" concerns stripped out and a response cache added.
package gateway

import "context"

// CompletionRequest is the input to Complete.
type CompletionRequest struct {
	Prompt           string
	Model            string
	PreferredProvider string
	NoCache          bool
	MaxTokens        int
}

// CompletionResult is the output of Complete.
type CompletionResult struct {
	Text      string
	Provider  string
	Cost      float64
	Cached    bool
	LatencyMs int64
	Success   bool
	LastError string
}

// ProviderDriver is implemented once per upstream AI provider.
type ProviderDriver interface {
	Kind() string
	Call(ctx context.Context, req CompletionRequest) (text string, tokensIn, tokensOut int, err error)
	HealthCheck(ctx context.Context) error
}

// EmbeddingCapableDriver is an optional capability some drivers implement,
// used by the Semantic memory tier's embedder.
type EmbeddingCapableDriver interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
