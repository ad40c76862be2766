package evidence

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chittycorp/chittyrouter/internal/memory/semantic"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// elevationSimilarityThreshold is the cosine-similarity cutoff a
// companion record must clear to be marked for elevation consideration.
const elevationSimilarityThreshold = 0.85

// Reindexer periodically re-scores records within a sliding window and
// mints a companion EVNT identifier when a record's probability crosses
// 0.7 upward.
type Reindexer struct {
	Ledger   Ledger
	Scorer   Scorer
	Semantic *semantic.Store
	Identity Minter
	Embedder semantic.Embedder
	Queue    Queue
	Window   time.Duration
}

// Run executes one reindex pass over records in the sliding window.
func (r *Reindexer) Run(ctx context.Context, correlationID string) error {
	window := r.Window
	if window <= 0 {
		window = 24 * time.Hour
	}

	records, err := r.Ledger.RecentForReindex(ctx, window)
	if err != nil {
		return err
	}

	for _, rec := range records {
		newProb, err := r.Scorer.Score(ctx, []byte(rec.PayloadHash), nil)
		if err != nil {
			continue
		}

		elevated := rec.Probability <= probabilityThreshold && newProb > probabilityThreshold
		ev := models.ReindexEvent{
			At:             time.Now().UTC(),
			OldProbability: rec.Probability,
			NewProbability: newProb,
			Elevated:       elevated,
		}

		if elevated {
			companionID, err := r.Identity.Mint(ctx, correlationID, models.TypeEvent, map[string]string{
				"companionOf": string(rec.ChittyID),
			})
			if err != nil {
				log.Warn().Err(err).Str("chittyId", string(rec.ChittyID)).Msg("reindex: companion mint failed")
			} else {
				ev.CompanionID = companionID
				r.markSimilarForElevation(ctx, rec)
			}

			if r.Queue != nil {
				if err := r.Queue.Enqueue(ctx, rec.ChittyID, models.PriorityHigh, time.Now()); err != nil {
					log.Warn().Err(err).Str("chittyId", string(rec.ChittyID)).Msg("reindex: elevation enqueue failed")
				}
			}
		}

		if err := r.Ledger.AppendReindex(ctx, rec.ChittyID, ev); err != nil {
			log.Warn().Err(err).Str("chittyId", string(rec.ChittyID)).Msg("reindex: append failed")
		}
	}
	return nil
}

// markSimilarForElevation queries the semantic index for records similar
// to rec and logs them as elevation candidates; actual elevation is a
// human/downstream decision, this only surfaces the candidate set.
func (r *Reindexer) markSimilarForElevation(ctx context.Context, rec models.EvidenceRecord) {
	if r.Semantic == nil || r.Embedder == nil {
		return
	}
	vec, err := r.Embedder.Embed(ctx, rec.PayloadHash)
	if err != nil || len(vec) == 0 {
		return
	}
	similar := r.Semantic.QueryScored("evidence", vec, 10)
	for _, s := range similar {
		if s.Score >= elevationSimilarityThreshold && s.Entry.ID != string(rec.ChittyID) {
			log.Info().Str("chittyId", s.Entry.ID).Float64("similarity", s.Score).
				Msg("reindex: marked similar record for elevation consideration")
		}
	}
}
