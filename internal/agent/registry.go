package agent

import (
	"context"
	"sync"
	"time"

	"github.com/chittycorp/chittyrouter/pkg/models"
)

// Registry holds one Agent singleton per name; requests to
// /agents/<name>/* all dispatch to the same instance so state (and its
// mutex) is never duplicated.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	cfg    Config
}

// NewRegistry builds an empty registry sharing the given tier backends
// across every agent it creates.
func NewRegistry(cfg Config) *Registry {
	return &Registry{agents: make(map[string]*Agent), cfg: cfg}
}

// GetOrCreate returns the existing singleton for name, or mints a new
// Agent identifier and creates one. Agent isolation is structural: each
// Agent's memory-tier calls are always namespaced by its own agentID, so
// no write by one agent is ever visible to another (internal/memory/semantic
// enforces this at the query layer; working/episodic keys are always
// prefixed with agentID by the caller).
func (r *Registry) GetOrCreate(ctx context.Context, correlationID, name string) (*Agent, error) {
	r.mu.RLock()
	a, ok := r.agents[name]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.agents[name]; ok {
		return a, nil
	}

	if r.cfg.Aggregate != nil {
		if existing, err := r.cfg.Aggregate.GetAgentByName(ctx, name); err == nil {
			newAgent := newAgent(*existing, r.cfg)
			r.agents[name] = newAgent
			return newAgent, nil
		}
	}

	agentID, err := r.cfg.Identity.Mint(ctx, correlationID, models.TypeActor, map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	record := models.Agent{
		AgentID:     agentID,
		Name:        name,
		ModelScores: map[string]float64{},
		AggregateStats: models.AggregateStats{
			ProviderUsage: map[string]int64{},
		},
		CreatedAt: time.Now().UTC(),
	}
	if r.cfg.Aggregate != nil {
		if err := r.cfg.Aggregate.CreateAgent(ctx, &record); err != nil {
			return nil, err
		}
	}

	newAgent := newAgent(record, r.cfg)
	r.agents[name] = newAgent
	return newAgent, nil
}

// Names lists every agent name currently instantiated in this process.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.agents))
	for name := range r.agents {
		out = append(out, name)
	}
	return out
}
