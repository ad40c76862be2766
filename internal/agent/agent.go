// Package agent implements the Persistent Agent: a stateful per-name
// singleton combining the four memory tiers, the AI Gateway client, a
// score-based learning table, and a provider-fallback self-healing loop.
//
// Grounded on the teacher's per-kitchen bookkeeping style in its model
// router (rolling cost/latency tables guarded by a mutex), generalized to
// a per-agent singleton with durable learning state instead of ephemeral
// in-process counters.
package agent

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/guardrails"
	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/internal/memory/aggregate"
	"github.com/chittycorp/chittyrouter/internal/memory/episodic"
	"github.com/chittycorp/chittyrouter/internal/memory/semantic"
	"github.com/chittycorp/chittyrouter/internal/memory/working"
	"github.com/chittycorp/chittyrouter/pkg/apierr"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// fallbackWinDelta and fallbackLossDelta adjust modelScores when the
// gateway answers from a provider other than the preferred one: the
// preferred provider loses fallbackLossDelta (floored at 0) and the
// provider that answered gains fallbackWinDelta.
const fallbackWinDelta = 0.8
const fallbackLossDelta = 1.0

// CompleteRequest is the input to Agent.Complete.
type CompleteRequest struct {
	Prompt    string
	TaskType  string
	SessionID string
}

// CompleteResult mirrors the documented /agents/{name}/complete response
// shape.
type CompleteResult struct {
	Success           bool
	Provider          string
	Cost              float64
	AgentID           models.Identifier
	MemoryContextUsed bool
	Text              string
	Error             string
}

// Agent is a single named, isolated stateful entity. mu enforces the
// single-writer discipline over ModelScores/AggregateStats required by
// the concurrency model: interactions for one agent never interleave
// partial updates.
type Agent struct {
	mu     sync.Mutex
	record models.Agent

	working  working.Store
	semantic *semantic.Store
	episodic *episodic.Store
	aggregate *aggregate.Store
	gateway  *gateway.Gateway
	identity *identityclient.Client

	guardrails     *guardrails.Service
	guardrailRules []guardrails.Rule

	workingTTL time.Duration
}

// Config bundles the shared tier backends every agent singleton uses.
type Config struct {
	Working    working.Store
	Semantic   *semantic.Store
	Episodic   *episodic.Store
	Aggregate  *aggregate.Store
	Gateway    *gateway.Gateway
	Identity   *identityclient.Client
	WorkingTTL time.Duration

	// Guardrails and GuardrailRules are optional. When Guardrails is nil,
	// no input/output safety check runs. When GuardrailRules is nil but
	// Guardrails is set, guardrails.DefaultRules() applies.
	Guardrails     *guardrails.Service
	GuardrailRules []guardrails.Rule
}

func newAgent(record models.Agent, cfg Config) *Agent {
	rules := cfg.GuardrailRules
	if rules == nil && cfg.Guardrails != nil {
		rules = guardrails.DefaultRules()
	}
	return &Agent{
		record:         record,
		working:        cfg.Working,
		semantic:       cfg.Semantic,
		episodic:       cfg.Episodic,
		aggregate:      cfg.Aggregate,
		gateway:        cfg.Gateway,
		identity:       cfg.Identity,
		guardrails:     cfg.Guardrails,
		guardrailRules: rules,
		workingTTL:     cfg.WorkingTTL,
	}
}

// Stats returns a snapshot of the agent's durable counters for the
// /agents/{name}/stats endpoint.
func (a *Agent) Stats() models.Agent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneAgent(a.record)
}

func cloneAgent(r models.Agent) models.Agent {
	out := r
	out.ModelScores = make(map[string]float64, len(r.ModelScores))
	for k, v := range r.ModelScores {
		out.ModelScores[k] = v
	}
	out.AggregateStats.ProviderUsage = make(map[string]int64, len(r.AggregateStats.ProviderUsage))
	for k, v := range r.AggregateStats.ProviderUsage {
		out.AggregateStats.ProviderUsage[k] = v
	}
	return out
}

// Complete runs one agent turn: retrieve memory context, choose a
// preferred provider from modelScores, call the AI Gateway with
// self-healing fallback, then run the learning loop.
func (a *Agent) Complete(ctx context.Context, correlationID string, req CompleteRequest) (CompleteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.guardrails != nil {
		eval, err := a.guardrails.EvaluateInput(ctx, a.guardrailRules, req.Prompt)
		if err == nil && !eval.Passed {
			return CompleteResult{Success: false, AgentID: a.record.AgentID, Error: guardrailFailureMessage(eval)}, nil
		}
	}

	memoryUsed := false
	contextPrefix := ""

	if req.SessionID != "" {
		key := fmt.Sprintf("agent:%s:session:%s", a.record.AgentID, req.SessionID)
		if v, ok, _ := a.working.Get(ctx, key); ok {
			contextPrefix = v
			memoryUsed = true
		}
	}

	if emb, err := a.gateway.Embed(ctx, req.Prompt); err == nil && len(emb) > 0 {
		similar := a.semantic.Query(string(a.record.AgentID), emb, 3)
		if len(similar) > 0 {
			memoryUsed = true
		}
	}

	preferred := a.preferredProvider(req.TaskType)
	prompt := req.Prompt
	if contextPrefix != "" {
		prompt = contextPrefix + "\n\n" + req.Prompt
	}

	start := time.Now()
	result := a.gateway.Complete(ctx, gateway.CompletionRequest{Prompt: prompt, PreferredProvider: preferred})
	latency := time.Since(start).Milliseconds()

	if !result.Success {
		a.recordFailure(req.TaskType, preferred)
		return CompleteResult{Success: false, AgentID: a.record.AgentID, Error: result.LastError}, nil
	}

	if a.guardrails != nil {
		eval, err := a.guardrails.EvaluateOutput(ctx, a.guardrailRules, result.Text)
		if err == nil && !eval.Passed {
			a.recordFailure(req.TaskType, result.Provider)
			return CompleteResult{Success: false, AgentID: a.record.AgentID, Error: guardrailFailureMessage(eval)}, nil
		}
	}

	// Self-healing: the provider that actually answered may differ from
	// the preferred one if Gateway fell back internally.
	won := result.Provider
	if won != preferred && preferred != "" {
		a.adjustScore(req.TaskType, preferred, -fallbackLossDelta)
		a.adjustScore(req.TaskType, won, fallbackWinDelta)
	}

	quality := qualityHeuristic(result.Text)
	a.adjustScore(req.TaskType, won, quality)

	a.record.AggregateStats.TotalInteractions++
	a.record.AggregateStats.TotalCost += result.Cost
	if a.record.AggregateStats.ProviderUsage == nil {
		a.record.AggregateStats.ProviderUsage = map[string]int64{}
	}
	a.record.AggregateStats.ProviderUsage[won]++

	if a.aggregate != nil {
		if err := a.aggregate.SaveAgent(ctx, &a.record); err != nil {
			log.Warn().Err(err).Str("agent", a.record.Name).Msg("failed to persist agent aggregate state")
		}
		logID, mintErr := a.identity.Mint(ctx, correlationID, models.TypeEvent, map[string]string{"kind": "interaction"})
		if mintErr != nil {
			logID = models.Identifier("")
		}
		_ = a.aggregate.AppendInteraction(ctx, &models.InteractionLog{
			ID: logID, AgentID: a.record.AgentID, TaskType: req.TaskType, Prompt: req.Prompt,
			Provider: won, Response: result.Text, Success: true, QualityScore: quality,
			Cost: result.Cost, LatencyMs: latency, OccurredAt: time.Now().UTC(),
		})
	}

	if req.SessionID != "" {
		key := fmt.Sprintf("agent:%s:session:%s", a.record.AgentID, req.SessionID)
		_ = a.working.Put(ctx, key, result.Text, a.workingTTL)
	}

	if emb, err := a.gateway.Embed(ctx, req.Prompt+" "+result.Text); err == nil && len(emb) > 0 {
		_ = a.semantic.Upsert(string(a.record.AgentID), uuid.NewString(), emb, map[string]string{"taskType": req.TaskType})
	}

	if a.episodic != nil {
		day := time.Now().UTC()
		sid := req.SessionID
		if sid == "" {
			sid = uuid.NewString()
		}
		_ = a.episodic.Put(ctx, episodic.EpisodeKey(string(a.record.AgentID), day, sid),
			[]byte(fmt.Sprintf(`{"prompt":%q,"response":%q,"provider":%q,"quality":%s}`, req.Prompt, result.Text, won, strconv.FormatFloat(quality, 'f', 3, 64))))
	}

	return CompleteResult{
		Success: true, Provider: won, Cost: result.Cost, AgentID: a.record.AgentID,
		MemoryContextUsed: memoryUsed, Text: result.Text,
	}, nil
}

// preferredProvider is argmax over providers of score(taskType, provider).
// Ties are not broken by cost: scores are read from a map, so which of
// several equally scored providers is returned is not defined.
func (a *Agent) preferredProvider(taskType string) string {
	best := ""
	bestScore := -1.0
	for key, score := range a.record.ModelScores {
		tt, provider, ok := splitScoreKey(key)
		if !ok || tt != taskType {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = provider
		}
	}
	return best
}

func splitScoreKey(key string) (taskType, provider string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

func (a *Agent) adjustScore(taskType, provider string, delta float64) {
	if provider == "" {
		return
	}
	key := models.ModelScoreKey(taskType, provider)
	if a.record.ModelScores == nil {
		a.record.ModelScores = map[string]float64{}
	}
	// Rounded to 1e-6 so repeated fractional deltas sum exactly
	// (ten deltas of 0.8 give 8, not 7.999999999999999).
	a.record.ModelScores[key] = math.Round((a.record.ModelScores[key]+delta)*1e6) / 1e6
	if a.record.ModelScores[key] < 0 {
		a.record.ModelScores[key] = 0
	}
}

func (a *Agent) recordFailure(taskType, provider string) {
	if provider == "" {
		return
	}
	key := models.ModelScoreKey(taskType, provider)
	if a.record.ModelScores == nil {
		a.record.ModelScores = map[string]float64{}
	}
	current := a.record.ModelScores[key]
	next := current - 1
	if next < 0 {
		next = 0
	}
	a.record.ModelScores[key] = next
}

// qualityHeuristic is computed from static heuristics — response length and a
// structural check — explicitly not ML, per the learning loop design.
func qualityHeuristic(text string) float64 {
	if text == "" {
		return 0
	}
	score := 0.5
	if len(text) > 40 {
		score += 0.2
	}
	if len(text) > 200 {
		score += 0.1
	}
	hasPunctuation := false
	for _, r := range text {
		if r == '.' || r == '!' || r == '?' {
			hasPunctuation = true
			break
		}
	}
	if hasPunctuation {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// TopModelScores returns the model-score table sorted descending, for the
// /agents/{name}/stats endpoint.
func TopModelScores(scores map[string]float64) []string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return scores[keys[i]] > scores[keys[j]] })
	return keys
}

// ErrUnknownAgent is returned when a request names an agent that has
// never been created.
var ErrUnknownAgent = apierr.New(apierr.NotFound, "", "unknown agent")

// guardrailFailureMessage surfaces the first failing guardrail's message,
// since that's the one the caller needs to act on.
func guardrailFailureMessage(eval *guardrails.Evaluation) string {
	for _, r := range eval.Results {
		if !r.Passed {
			return "guardrail rejected: " + r.Message
		}
	}
	return "guardrail rejected request"
}
