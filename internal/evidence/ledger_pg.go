package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chittycorp/chittyrouter/pkg/models"
)

// ErrRecordNotFound is returned when a chittyId has no ledger entry.
var ErrRecordNotFound = errors.New("evidence record not found")

// PGLedger is the durable evidence ledger, grounded on the Aggregate
// tier's pgx/v5 pool usage, re-purposed here for evidence records instead
// of agent state.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewPGLedger wraps an existing pool (shared with the Aggregate tier).
func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// Migrate creates the evidence_records table.
func (l *PGLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS evidence_records (
	chitty_id TEXT PRIMARY KEY,
	probability DOUBLE PRECISION NOT NULL,
	priority TEXT NOT NULL,
	payload_hash TEXT NOT NULL,
	entities JSONB NOT NULL,
	reindex_history JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL,
	document_type TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL DEFAULT '',
	monetary_value_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	caller_legal_weight DOUBLE PRECISION NOT NULL DEFAULT 0
)`)
	return err
}

// Save inserts a new evidence record; evidence records are immutable
// once written, so this never updates an existing row.
func (l *PGLedger) Save(ctx context.Context, rec models.EvidenceRecord) error {
	entities, _ := json.Marshal(rec.Entities)
	_, err := l.pool.Exec(ctx, `
INSERT INTO evidence_records (chitty_id, probability, priority, payload_hash, entities, reindex_history, created_at, document_type, classification, monetary_value_usd, caller_legal_weight)
VALUES ($1, $2, $3, $4, $5, '[]', $6, $7, $8, $9, $10)
ON CONFLICT (chitty_id) DO NOTHING`,
		string(rec.ChittyID), rec.Probability, string(rec.Priority), rec.PayloadHash, entities, rec.CreatedAt,
		rec.DocumentType, rec.Classification, rec.MonetaryValueUSD, rec.CallerLegalWeight)
	return err
}

// Get loads a record by chittyId.
func (l *PGLedger) Get(ctx context.Context, chittyID models.Identifier) (models.EvidenceRecord, error) {
	row := l.pool.QueryRow(ctx, `
SELECT chitty_id, probability, priority, payload_hash, entities, reindex_history, created_at, document_type, classification, monetary_value_usd, caller_legal_weight
FROM evidence_records WHERE chitty_id = $1`, string(chittyID))

	var rec models.EvidenceRecord
	var cid, priority string
	var entities, reindex []byte
	if err := row.Scan(&cid, &rec.Probability, &priority, &rec.PayloadHash, &entities, &reindex, &rec.CreatedAt,
		&rec.DocumentType, &rec.Classification, &rec.MonetaryValueUSD, &rec.CallerLegalWeight); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EvidenceRecord{}, ErrRecordNotFound
		}
		return models.EvidenceRecord{}, err
	}
	rec.ChittyID = models.Identifier(cid)
	rec.Priority = models.Priority(priority)
	_ = json.Unmarshal(entities, &rec.Entities)
	_ = json.Unmarshal(reindex, &rec.ReindexHistory)
	return rec, nil
}

// AppendReindex appends one reindex pass to the record's history.
func (l *PGLedger) AppendReindex(ctx context.Context, chittyID models.Identifier, ev models.ReindexEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
UPDATE evidence_records
SET reindex_history = reindex_history || $2::jsonb
WHERE chitty_id = $1`, string(chittyID), payload)
	return err
}

// RecentForReindex returns records created within the sliding window,
// eligible for the periodic probability recompute pass.
func (l *PGLedger) RecentForReindex(ctx context.Context, window time.Duration) ([]models.EvidenceRecord, error) {
	since := time.Now().UTC().Add(-window)
	rows, err := l.pool.Query(ctx, `
SELECT chitty_id, probability, priority, payload_hash, entities, reindex_history, created_at, document_type, classification, monetary_value_usd, caller_legal_weight
FROM evidence_records WHERE created_at >= $1`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EvidenceRecord
	for rows.Next() {
		var rec models.EvidenceRecord
		var cid, priority string
		var entities, reindex []byte
		if err := rows.Scan(&cid, &rec.Probability, &priority, &rec.PayloadHash, &entities, &reindex, &rec.CreatedAt,
			&rec.DocumentType, &rec.Classification, &rec.MonetaryValueUSD, &rec.CallerLegalWeight); err != nil {
			return nil, err
		}
		rec.ChittyID = models.Identifier(cid)
		rec.Priority = models.Priority(priority)
		_ = json.Unmarshal(entities, &rec.Entities)
		_ = json.Unmarshal(reindex, &rec.ReindexHistory)
		out = append(out, rec)
	}
	return out, rows.Err()
}
