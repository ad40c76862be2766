// Package policy provides the default Trust and Authorization
// collaborators for the five-stage identifier generation pipeline
// (internal/pipeline). Every caller reaching a pipeline-backed endpoint
// has already cleared the mandatory auth chain (internal/auth), so the
// only signal available to score or gate it is the resulting
// contracts.Identity.Role — these types turn that role into the
// pipeline's trust score and authorization decision.
//
// Grounded on internal/minting's weighted-sum SecurityScore: a small
// fixed table of role weights, clamped to [0,1], rather than a rule
// engine.
package policy

import (
	"context"
	"fmt"

	"github.com/chittycorp/chittyrouter/internal/pipeline"
)

// tierScore is the trust weight assigned to each known auth role. An
// unrecognized or empty tier scores 0 and fails the pipeline's trust
// floor, matching the fail-closed default the rest of this codebase
// applies to unknown callers.
var tierScore = map[string]float64{
	"operator": 1.0,
	"service":  0.8,
	"viewer":   0.2,
}

// TierTrustScorer scores a caller purely from its auth tier.
type TierTrustScorer struct{}

func (TierTrustScorer) Score(_ context.Context, caller pipeline.CallerContext) (float64, error) {
	return tierScore[caller.AuthTier], nil
}

// restrictedKinds maps a pipeline Kind to the minimum role allowed to
// mint it. Kinds not listed here are open to any authenticated caller.
var restrictedKinds = map[string]string{
	"evidence": "service",
}

// tierRank orders roles for the >= comparison restrictedKinds needs.
var tierRank = map[string]int{
	"viewer":   1,
	"service":  2,
	"operator": 3,
}

// AuthenticatedAuthorizer allows any caller with a recognized auth tier,
// except for kinds in restrictedKinds, which require at least the
// "service" tier.
type AuthenticatedAuthorizer struct{}

func (AuthenticatedAuthorizer) Authorize(_ context.Context, caller pipeline.CallerContext, kind string) error {
	if _, known := tierRank[caller.AuthTier]; !known {
		return fmt.Errorf("policy: unrecognized auth tier %q", caller.AuthTier)
	}
	min, restricted := restrictedKinds[kind]
	if !restricted {
		return nil
	}
	if tierRank[caller.AuthTier] < tierRank[min] {
		return fmt.Errorf("policy: tier %q may not mint kind %q (requires %q)", caller.AuthTier, kind, min)
	}
	return nil
}
