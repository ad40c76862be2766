// Package orchestrator implements the Service Integration Orchestrator's
// evidence path: a strict ordered sequence of external collaborators,
// each step failing closed. The orchestrator owns ordering and error
// aggregation only — no business rules beyond step sequencing, matching
// the teacher's workflow Engine's separation of step-sequencing from
// step-semantics.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

// SchemaValidator confirms a submitted document matches its declared
// schema, an external collaborator.
type SchemaValidator interface {
	Validate(ctx context.Context, chittyID models.Identifier) error
}

// EventStore appends the local event-sourced record for a chittyId.
type EventStore interface {
	RecordEvent(ctx context.Context, chittyID models.Identifier) error
}

// IntegrityVerifier confirms a record's hash chain has not been tampered
// with, an external collaborator.
type IntegrityVerifier interface {
	Verify(ctx context.Context, chittyID models.Identifier) error
}

// ComplianceChecker confirms a record clears retention/jurisdiction rules,
// an external collaborator.
type ComplianceChecker interface {
	Check(ctx context.Context, chittyID models.Identifier) error
}

// CanonicalStore commits the record to the canonical schema/store service.
type CanonicalStore interface {
	Store(ctx context.Context, chittyID models.Identifier) error
}

// CaseLinker associates a record with its governing case, an external
// collaborator.
type CaseLinker interface {
	Link(ctx context.Context, chittyID models.Identifier) error
}

// Orchestrator strictly sequences the six evidence-path steps that follow
// the identifier mint (step one of the seven, done before Run). Every
// collaborator is optional; a nil collaborator skips its step rather than
// failing, so partially-wired deployments (e.g. the Blockchain Queue
// Consumer, which only needs the four external-service steps) can reuse
// the same type.
type Orchestrator struct {
	Identity   *identityclient.Client
	Schema     SchemaValidator
	Events     EventStore
	Integrity  IntegrityVerifier
	Compliance ComplianceChecker
	Canonical  CanonicalStore
	CaseLink   CaseLinker
}

// step names the six fixed stages, in strict order.
type step struct {
	name string
	run  func(ctx context.Context, chittyID models.Identifier) error
}

func (o *Orchestrator) steps(correlationID string) []step {
	return []step{
		{"schema-validation", func(ctx context.Context, id models.Identifier) error {
			if o.Schema == nil {
				return nil
			}
			return o.Schema.Validate(ctx, id)
		}},
		{"event-record", func(ctx context.Context, id models.Identifier) error {
			if o.Events == nil {
				return nil
			}
			return o.Events.RecordEvent(ctx, id)
		}},
		{"integrity-verification", func(ctx context.Context, id models.Identifier) error {
			if o.Integrity == nil {
				return nil
			}
			return o.Integrity.Verify(ctx, id)
		}},
		{"compliance-check", func(ctx context.Context, id models.Identifier) error {
			if o.Compliance == nil {
				return nil
			}
			return o.Compliance.Check(ctx, id)
		}},
		{"canonical-storage", func(ctx context.Context, id models.Identifier) error {
			if o.Canonical == nil {
				return nil
			}
			return o.Canonical.Store(ctx, id)
		}},
		{"case-linkage", func(ctx context.Context, id models.Identifier) error {
			if o.CaseLink == nil {
				return nil
			}
			return o.CaseLink.Link(ctx, id)
		}},
	}
}

// Run executes the orchestrator's steps in strict order against an
// already-minted chittyId (identifier mint is the evidence ingestion
// path's responsibility, step one of the full seven; by the time the
// Blockchain Queue Consumer calls Run the record already exists). A
// failing step terminates the run immediately and returns its error —
// fail closed, no partial credit.
func (o *Orchestrator) Run(ctx context.Context, correlationID string, chittyID models.Identifier) error {
	start := time.Now()
	for _, s := range o.steps(correlationID) {
		if err := s.run(ctx, chittyID); err != nil {
			log.Warn().Str("correlationId", correlationID).Str("chittyId", string(chittyID)).
				Str("step", s.name).Err(err).Msg("orchestrator: step failed, terminating")
			return fmt.Errorf("orchestrator: step %q failed: %w", s.name, err)
		}
	}
	log.Info().Str("correlationId", correlationID).Str("chittyId", string(chittyID)).
		Dur("elapsed", time.Since(start)).Msg("orchestrator: evidence path complete")
	return nil
}
