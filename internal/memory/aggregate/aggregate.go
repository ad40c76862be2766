// Package aggregate implements the Aggregate (Tier 4) memory store:
// durable per-agent structured state — counters, score tables, and
// metadata — persisted to Postgres via pgx. Single-writer discipline is
// enforced by the agent singleton (internal/agent), not by this package;
// Store's job is durability, not concurrency control.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chittycorp/chittyrouter/pkg/models"
)

// Store persists Agent records and Interaction Log entries.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres at connString.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Pool exposes the underlying connection pool so sibling stores that
// share this Postgres instance (the evidence ledger and minting anchor
// sink) can reuse it instead of opening a second pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates the tables Aggregate needs. Called once at startup,
// mirroring the teacher's Store.Migrate contract.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS agents (
	agent_id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	model_scores JSONB NOT NULL DEFAULT '{}',
	aggregate_stats JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS interaction_logs (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL REFERENCES agents(agent_id),
	task_type TEXT NOT NULL,
	provider TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	quality_score DOUBLE PRECISION NOT NULL,
	cost DOUBLE PRECISION NOT NULL,
	latency_ms BIGINT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_interaction_logs_agent ON interaction_logs(agent_id, occurred_at);
`)
	return err
}

// ErrAgentNotFound is returned by GetAgentByName when no row matches.
var ErrAgentNotFound = errors.New("agent not found")

// GetAgentByName loads an agent's durable record, or ErrAgentNotFound.
func (s *Store) GetAgentByName(ctx context.Context, name string) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx, `SELECT agent_id, name, model_scores, aggregate_stats, created_at FROM agents WHERE name = $1`, name)
	var a models.Agent
	var scoresRaw, statsRaw []byte
	if err := row.Scan(&a.AgentID, &a.Name, &scoresRaw, &statsRaw, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(scoresRaw, &a.ModelScores); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(statsRaw, &a.AggregateStats); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAgent inserts a brand-new agent record.
func (s *Store) CreateAgent(ctx context.Context, a *models.Agent) error {
	scoresRaw, err := json.Marshal(a.ModelScores)
	if err != nil {
		return err
	}
	statsRaw, err := json.Marshal(a.AggregateStats)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO agents (agent_id, name, model_scores, aggregate_stats, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO NOTHING`, a.AgentID, a.Name, scoresRaw, statsRaw, a.CreatedAt)
	return err
}

// SaveAgent persists the current state of an already-created agent.
// Called transactionally with each interaction by the agent singleton,
// which is the sole writer for a given agentID.
func (s *Store) SaveAgent(ctx context.Context, a *models.Agent) error {
	scoresRaw, err := json.Marshal(a.ModelScores)
	if err != nil {
		return err
	}
	statsRaw, err := json.Marshal(a.AggregateStats)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
UPDATE agents SET model_scores = $2, aggregate_stats = $3 WHERE agent_id = $1`, a.AgentID, scoresRaw, statsRaw)
	return err
}

// AppendInteraction writes one Interaction Log row.
func (s *Store) AppendInteraction(ctx context.Context, l *models.InteractionLog) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO interaction_logs (id, agent_id, task_type, provider, success, quality_score, cost, latency_ms, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		l.ID, l.AgentID, l.TaskType, l.Provider, l.Success, l.QualityScore, l.Cost, l.LatencyMs, l.OccurredAt)
	return err
}

// RecentInteractions returns the last `limit` interaction logs for agentID,
// most recent first.
func (s *Store) RecentInteractions(ctx context.Context, agentID models.Identifier, limit int) ([]models.InteractionLog, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, agent_id, task_type, provider, success, quality_score, cost, latency_ms, occurred_at
FROM interaction_logs WHERE agent_id = $1 ORDER BY occurred_at DESC LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.InteractionLog
	for rows.Next() {
		var l models.InteractionLog
		if err := rows.Scan(&l.ID, &l.AgentID, &l.TaskType, &l.Provider, &l.Success, &l.QualityScore, &l.Cost, &l.LatencyMs, &l.OccurredAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
