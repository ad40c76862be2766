// Package evidence implements the Evidence Pipeline's universal-ingestion
// path: every submitted document is scored, entity-extracted, hashed,
// ledgered, semantically indexed, and conditionally enqueued onto the
// Blockchain Queue — never dropped regardless of its probability score.
package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/chittycorp/chittyrouter/internal/gateway"
	"github.com/chittycorp/chittyrouter/internal/memory/semantic"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// probabilityThreshold is the EVNT/INFO and enqueue-eligibility cutoff.
const probabilityThreshold = 0.7

// Submission is the universal-ingestion input shape.
type Submission struct {
	Source      string
	ContentType string
	Payload     []byte
	Hints       map[string]string
	Priority    models.Priority

	// DocumentType, Classification, MonetaryValueUSD and CallerLegalWeight
	// are caller-declared scoring inputs for the Minting Decision Service;
	// a caller that has no opinion leaves them zero-valued.
	DocumentType      string
	Classification    string
	MonetaryValueUSD  float64
	CallerLegalWeight float64
}

// Minter produces a fresh Identifier for an evidence submission. The
// production implementation routes every evidence mint through the
// five-stage identifier pipeline (internal/pipeline) rather than the
// identity authority directly — evidence is the high-stakes path the
// wiring rule reserves the full trust/authorization sequence for.
type Minter interface {
	Mint(ctx context.Context, correlationID string, entityType models.IdentifierType, payload interface{}) (models.Identifier, error)
}

// Ledger is the durable evidence record store; Aggregate tier's pgx pool
// backs the production implementation (see ledger_pg.go).
type Ledger interface {
	Save(ctx context.Context, rec models.EvidenceRecord) error
	Get(ctx context.Context, chittyID models.Identifier) (models.EvidenceRecord, error)
	AppendReindex(ctx context.Context, chittyID models.Identifier, ev models.ReindexEvent) error
	RecentForReindex(ctx context.Context, window time.Duration) ([]models.EvidenceRecord, error)
}

// Queue is the Blockchain Queue producer side.
type Queue interface {
	Enqueue(ctx context.Context, chittyID models.Identifier, priority models.Priority, at time.Time) error
}

// Extractor pulls entities from a payload; implementations may call the
// AI Gateway or run a local heuristic.
type Extractor interface {
	Extract(ctx context.Context, payload []byte, contentType string) (models.Entities, error)
}

// Scorer computes AIProbability(payload, hints).
type Scorer interface {
	Score(ctx context.Context, payload []byte, hints map[string]string) (float64, error)
}

// Pipeline runs the seven-step universal ingestion.
type Pipeline struct {
	Identity  Minter
	Ledger    Ledger
	Semantic  *semantic.Store
	Queue     Queue
	Extractor Extractor
	Scorer    Scorer
	Embedder  semantic.Embedder
}

// Ingest runs the universal ingestion. Scorer, extractor, embedding and
// enqueue failures degrade gracefully to a zero-value contribution; a
// mint or ledger failure aborts the ingestion and is returned.
func (p *Pipeline) Ingest(ctx context.Context, correlationID string, sub Submission) (models.EvidenceRecord, error) {
	probability, err := p.Scorer.Score(ctx, sub.Payload, sub.Hints)
	if err != nil {
		probability = 0
	}

	entityType := models.TypeInfo
	if probability > probabilityThreshold {
		entityType = models.TypeEvent
	}

	chittyID, err := p.Identity.Mint(ctx, correlationID, entityType, map[string]string{"source": sub.Source})
	if err != nil {
		return models.EvidenceRecord{}, err
	}

	entities, err := p.Extractor.Extract(ctx, sub.Payload, sub.ContentType)
	if err != nil {
		entities = models.Entities{}
	}

	hash := sha256.Sum256(sub.Payload)

	rec := models.EvidenceRecord{
		ChittyID:          chittyID,
		Probability:       probability,
		Priority:          sub.Priority,
		PayloadHash:       hex.EncodeToString(hash[:]),
		Entities:          entities,
		CreatedAt:         time.Now().UTC(),
		DocumentType:      sub.DocumentType,
		Classification:    sub.Classification,
		MonetaryValueUSD:  sub.MonetaryValueUSD,
		CallerLegalWeight: sub.CallerLegalWeight,
	}
	if err := p.Ledger.Save(ctx, rec); err != nil {
		return models.EvidenceRecord{}, err
	}

	if p.Semantic != nil && p.Embedder != nil {
		if vec, err := p.Embedder.Embed(ctx, string(sub.Payload)); err == nil && len(vec) > 0 {
			meta, _ := json.Marshal(entities)
			_ = p.Semantic.Upsert("evidence", string(chittyID), vec, map[string]string{"entities": string(meta)})
		}
	}

	if sub.Priority == models.PriorityCritical || probability > probabilityThreshold {
		_ = p.Queue.Enqueue(ctx, chittyID, sub.Priority, rec.CreatedAt)
	}

	return rec, nil
}

// gatewayScorer implements Scorer over the AI Gateway Client, grounded on
// the Email Pipeline's classify() deadline-and-degrade pattern.
type gatewayScorer struct {
	gw      *gateway.Gateway
	timeout time.Duration
}

// NewGatewayScorer builds a Scorer backed by the AI Gateway.
func NewGatewayScorer(gw *gateway.Gateway, timeout time.Duration) Scorer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &gatewayScorer{gw: gw, timeout: timeout}
}

func (s *gatewayScorer) Score(ctx context.Context, payload []byte, hints map[string]string) (float64, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.gw.Complete(cctx, gateway.CompletionRequest{
		Prompt: "Rate the evidentiary significance of this document from 0 to 1. Return only the number.\n\n" + string(payload),
	})
	if !res.Success {
		return 0, errScoreUnavailable
	}
	return parseProbability(res.Text), nil
}

var errScoreUnavailable = &scoreError{"evidence scorer: gateway unavailable"}

type scoreError struct{ msg string }

func (e *scoreError) Error() string { return e.msg }

func parseProbability(text string) float64 {
	var digits []byte
	seenDot := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c >= '0' && c <= '9' {
			digits = append(digits, c)
			continue
		}
		if c == '.' && !seenDot && len(digits) > 0 {
			digits = append(digits, c)
			seenDot = true
			continue
		}
		if len(digits) > 0 {
			break
		}
	}
	if len(digits) == 0 {
		return 0
	}
	var whole, frac float64
	var fracDiv float64 = 1
	inFrac := false
	for _, c := range digits {
		if c == '.' {
			inFrac = true
			continue
		}
		d := float64(c - '0')
		if inFrac {
			fracDiv *= 10
			frac = frac*10 + d
		} else {
			whole = whole*10 + d
		}
	}
	v := whole + frac/fracDiv
	if v > 1 {
		v = v / 100 // model answered as a percentage
	}
	if v > 1 {
		v = 1
	}
	return v
}

// gatewayExtractor implements Extractor over the AI Gateway Client.
type gatewayExtractor struct {
	gw      *gateway.Gateway
	timeout time.Duration
}

// NewGatewayExtractor builds an Extractor backed by the AI Gateway.
func NewGatewayExtractor(gw *gateway.Gateway, timeout time.Duration) Extractor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &gatewayExtractor{gw: gw, timeout: timeout}
}

type extractedEntities struct {
	People     []string `json:"people"`
	Places     []string `json:"places"`
	Properties []string `json:"properties"`
}

func (e *gatewayExtractor) Extract(ctx context.Context, payload []byte, contentType string) (models.Entities, error) {
	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res := e.gw.Complete(cctx, gateway.CompletionRequest{
		Prompt: "Extract people, places, and properties mentioned in this document as JSON {\"people\":[],\"places\":[],\"properties\":[]}.\n\n" + string(payload),
	})
	if !res.Success {
		return models.Entities{}, errScoreUnavailable
	}
	var ex extractedEntities
	if err := json.Unmarshal([]byte(res.Text), &ex); err != nil {
		return models.Entities{}, nil
	}
	return models.Entities{People: ex.People, Places: ex.Places, Properties: ex.Properties}, nil
}
