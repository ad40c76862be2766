package evidence

import (
	"context"
	"errors"

	"github.com/chittycorp/chittyrouter/internal/pipeline"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// PipelineMinter adapts the five-stage identifier pipeline to the
// Minter interface, so the Evidence Pipeline's ingestion and reindex
// mints run through router/intake/trust/authorization/generation
// instead of calling the identity authority directly — the wiring rule
// this repo applies to the evidence (high-stakes) path.
type PipelineMinter struct {
	Engine *pipeline.Engine
	Kind   string // e.g. "evidence"
	Source string
}

// Mint satisfies the Minter interface by running a full pipeline
// execution and returning its minted identifier, or the first failed
// stage's reason as an error.
func (m *PipelineMinter) Mint(ctx context.Context, correlationID string, entityType models.IdentifierType, payload interface{}) (models.Identifier, error) {
	hints, _ := payload.(map[string]string)
	exec, err := m.Engine.Generate(ctx, correlationID, pipeline.Request{
		Kind:       m.Kind,
		EntityType: entityType,
		Payload:    hints,
		Caller:     pipeline.CallerContext{Source: m.Source},
	})
	if err != nil {
		return "", err
	}
	if exec.Status != models.PipelineCompleted {
		reason := "pipeline did not complete"
		if len(exec.StageResults) > 0 {
			reason = exec.StageResults[len(exec.StageResults)-1].Reason
		}
		return "", errors.New("evidence: mint pipeline failed: " + reason)
	}
	return exec.ChittyID, nil
}
