package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// costEntry mirrors the teacher's "cost model is data, not code" price
// table: per-provider, per-model input/output token prices.
type costEntry struct {
	InputPerToken  float64
	OutputPerToken float64
	FlatPerCall    float64
}

// defaultCosts is the documented price table; $ per token, 2026 list
// prices. Kept as data in this one table; nothing loads overrides at
// runtime, so changing a price is a code change.
var defaultCosts = map[string]map[string]costEntry{
	"openai": {
		"gpt-4o-mini": {InputPerToken: 0.00000015, OutputPerToken: 0.0000006},
		"gpt-4o":      {InputPerToken: 0.0000025, OutputPerToken: 0.00001},
	},
	"anthropic": {
		"claude-3-5-haiku":  {InputPerToken: 0.0000008, OutputPerToken: 0.000004},
		"claude-3-5-sonnet": {InputPerToken: 0.000003, OutputPerToken: 0.000015},
	},
	"workersAI":    {"default": {InputPerToken: 0, OutputPerToken: 0}},
	"mistral":      {"default": {InputPerToken: 0.0000002, OutputPerToken: 0.0000006}},
	"huggingface":  {"default": {InputPerToken: 0, OutputPerToken: 0}},
	"google":       {"default": {InputPerToken: 0.0000001, OutputPerToken: 0.0000004}},
}

// fallbackChain is the global default provider order, tried after
// options.preferredProvider.
var fallbackChain = []string{"openai", "anthropic", "workersAI", "mistral", "huggingface", "google"}

// Gateway is the AI Gateway Client.
type Gateway struct {
	mu      sync.RWMutex
	drivers map[string]ProviderDriver

	cache *gocache.Cache

	perProviderDeadline time.Duration
}

// New builds a Gateway with an empty driver registry and a response
// cache keyed on a hash of (model, prompt, max tokens); the prompt is
// hashed as given, without normalization.
func New() *Gateway {
	return &Gateway{
		drivers:             make(map[string]ProviderDriver),
		cache:               gocache.New(5*time.Minute, 10*time.Minute),
		perProviderDeadline: 20 * time.Second,
	}
}

// RegisterDriver adds a provider driver under its Kind().
func (g *Gateway) RegisterDriver(d ProviderDriver) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drivers[d.Kind()] = d
}

func (g *Gateway) driver(kind string) (ProviderDriver, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.drivers[kind]
	return d, ok
}

// HealthCheck pings every registered provider.
func (g *Gateway) HealthCheck(ctx context.Context) map[string]string {
	g.mu.RLock()
	drivers := make(map[string]ProviderDriver, len(g.drivers))
	for k, v := range g.drivers {
		drivers[k] = v
	}
	g.mu.RUnlock()

	out := make(map[string]string, len(drivers))
	for kind, d := range drivers {
		if err := d.HealthCheck(ctx); err != nil {
			out[kind] = "unhealthy: " + err.Error()
		} else {
			out[kind] = "healthy"
		}
	}
	return out
}

func cacheKey(req CompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte(req.Prompt))
	h.Write([]byte(fmt.Sprintf("|%d", req.MaxTokens)))
	return hex.EncodeToString(h.Sum(nil))
}

// Complete attempts each provider in order: options.preferredProvider
// first (if set), then the global fallback chain. It never panics or
// throws across the client boundary — total failure is reported via
// CompletionResult.Success=false.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) CompletionResult {
	key := cacheKey(req)
	if !req.NoCache {
		if cached, ok := g.cache.Get(key); ok {
			r := cached.(CompletionResult)
			r.Cached = true
			return r
		}
	}

	order := buildOrder(req.PreferredProvider)

	var lastErr error
	for _, kind := range order {
		d, ok := g.driver(kind)
		if !ok {
			continue
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, g.perProviderDeadline)
		text, tokensIn, tokensOut, err := d.Call(callCtx, req)
		cancel()
		latency := time.Since(start).Milliseconds()

		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("provider", kind).Msg("gateway provider call failed, trying fallback")
			continue
		}

		cost := costFor(kind, req.Model, tokensIn, tokensOut)
		result := CompletionResult{
			Text:      text,
			Provider:  kind,
			Cost:      cost,
			Cached:    false,
			LatencyMs: latency,
			Success:   true,
		}
		if !req.NoCache {
			g.cache.Set(key, result, gocache.DefaultExpiration)
		}
		return result
	}

	msg := "all providers failed"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	return CompletionResult{Success: false, LastError: msg}
}

func buildOrder(preferred string) []string {
	order := make([]string, 0, len(fallbackChain)+1)
	seen := map[string]bool{}
	if preferred != "" {
		order = append(order, preferred)
		seen[preferred] = true
	}
	for _, k := range fallbackChain {
		if !seen[k] {
			order = append(order, k)
			seen[k] = true
		}
	}
	return order
}

func costFor(provider, model string, tokensIn, tokensOut int) float64 {
	byModel, ok := defaultCosts[provider]
	if !ok {
		return 0
	}
	entry, ok := byModel[model]
	if !ok {
		entry, ok = byModel["default"]
		if !ok {
			return 0
		}
	}
	return entry.FlatPerCall + float64(tokensIn)*entry.InputPerToken + float64(tokensOut)*entry.OutputPerToken
}

// Embed delegates to a registered driver implementing
// EmbeddingCapableDriver; drivers are held in a map, so when several
// implement it, which one answers is not defined. It follows the semantic tier's degrade-gracefully
// contract: callers treat a nil/empty result as "no embedding available"
// rather than an error.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, d := range g.drivers {
		if ec, ok := d.(EmbeddingCapableDriver); ok {
			return ec.Embed(ctx, text)
		}
	}
	return nil, nil
}
