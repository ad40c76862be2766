package minting

import (
	"context"
	"time"

	"github.com/chittycorp/chittyrouter/pkg/models"
)

// ScoreInputs are the weighted-sum factors for the security score.
type ScoreInputs struct {
	DocumentType       string
	Classification     string
	MonetaryValueUSD   float64
	CallerLegalWeight  float64 // caller-declared, in [0,1]
}

// alwaysHardDocumentTypes bypasses the score entirely.
var alwaysHardDocumentTypes = map[string]bool{
	"criminal-evidence": true,
	"court-order":        true,
	"property-deed":      true,
}

// docTypeBoost mirrors the spec's "document type boost" weight.
var docTypeBoost = map[string]float64{
	"criminal-evidence": 0.5,
	"court-order":        0.45,
	"property-deed":      0.35,
	"contract":           0.2,
	"correspondence":     0.05,
}

var classificationBoost = map[string]float64{
	"confidential": 0.3,
	"privileged":   0.35,
	"public":       0.0,
}

const monetaryThresholdUSD = 50_000
const monetaryBoost = 0.25

// SecurityScore computes s in [0,1] as a weighted sum, clamped.
func SecurityScore(in ScoreInputs) float64 {
	s := docTypeBoost[in.DocumentType] + classificationBoost[in.Classification]
	if in.MonetaryValueUSD > monetaryThresholdUSD {
		s += monetaryBoost
	}
	s += 0.1 * clamp01(in.CallerLegalWeight)
	return clamp01(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Policy bundles configuration for Decide.
type Policy struct {
	HardScoreThreshold float64 // default 0.8
	HardRandomPercent  float64 // default 1.0 (i.e. r < 1.0 out of 100)
	BeaconEnabled      bool
}

// Decider runs the Minting Decision Service.
type Decider struct {
	policy Policy
	beacon BeaconSource
}

// NewDecider builds a Decider; when policy.BeaconEnabled is false, beacon
// is ignored and any score below the hard threshold always decides soft.
func NewDecider(policy Policy, beacon BeaconSource) *Decider {
	if policy.HardScoreThreshold == 0 {
		policy.HardScoreThreshold = 0.8
	}
	if policy.HardRandomPercent == 0 {
		policy.HardRandomPercent = 1.0
	}
	return &Decider{policy: policy, beacon: beacon}
}

// Decide is a pure function of (chittyID, evidence hash, score inputs,
// beacon round) — given the same beacon round it reproduces the same
// decision bit-for-bit, satisfying the determinism invariant.
func (d *Decider) Decide(ctx context.Context, chittyID models.Identifier, payloadHash string, in ScoreInputs) (models.MintingDecision, error) {
	s := SecurityScore(in)
	now := time.Now().UTC()

	if s > d.policy.HardScoreThreshold || alwaysHardDocumentTypes[in.DocumentType] {
		return models.MintingDecision{
			ChittyID:      chittyID,
			Strategy:      models.MintHard,
			SecurityScore: s,
			Verifiable:    false,
			Rationale: models.Rationale{
				SecurityScore: s,
				Note:          "score or document type forced hard",
			},
			DecidedAt: now,
		}, nil
	}

	if !d.policy.BeaconEnabled {
		// no beacon consultation configured: skip the random-hard draw
		// entirely rather than compute one against an empty beacon value.
		return models.MintingDecision{
			ChittyID:      chittyID,
			Strategy:      models.MintSoft,
			SecurityScore: s,
			Verifiable:    false,
			Rationale: models.Rationale{
				SecurityScore: s,
				Note:          "beacon disabled, soft by policy",
			},
			DecidedAt: now,
		}, nil
	}

	beacon, err := d.beacon.Latest(ctx)
	if err != nil {
		// beacon unavailable: degrade to soft rather than block minting.
		return models.MintingDecision{
			ChittyID:      chittyID,
			Strategy:      models.MintSoft,
			SecurityScore: s,
			Verifiable:    false,
			Rationale: models.Rationale{
				SecurityScore: s,
				Note:          "beacon unavailable, defaulted soft",
			},
			DecidedAt: now,
		}, nil
	}

	r := deterministicUniform([]byte(beacon.Value + "|" + payloadHash))

	if r < d.policy.HardRandomPercent {
		return models.MintingDecision{
			ChittyID:      chittyID,
			Strategy:      models.MintHard,
			SecurityScore: s,
			Verifiable:    true,
			BeaconRound:   beacon.Round,
			BeaconValue:   beacon.Value,
			Rationale: models.Rationale{
				SecurityScore: s,
				BeaconRound:   beacon.Round,
				Draw:          r,
			},
			DecidedAt: now,
		}, nil
	}

	return models.MintingDecision{
		ChittyID:      chittyID,
		Strategy:      models.MintSoft,
		SecurityScore: s,
		Verifiable:    true,
		BeaconRound:   beacon.Round,
		BeaconValue:   beacon.Value,
		Rationale: models.Rationale{
			SecurityScore: s,
			BeaconRound:   beacon.Round,
			Draw:          r,
		},
		DecidedAt: now,
	}, nil
}

// BillingEvent is emitted alongside every Decision.
type BillingEvent struct {
	ChittyID  models.Identifier
	Strategy  models.MintStrategy
	CostUSD   float64
	Timestamp time.Time
}

const (
	softCostUSD = 0.01
	hardCostUSD = 40.0
)

// Billing computes the reference billing event for a decision.
func Billing(d models.MintingDecision) BillingEvent {
	cost := softCostUSD
	if d.Strategy == models.MintHard {
		cost = hardCostUSD
	}
	return BillingEvent{ChittyID: d.ChittyID, Strategy: d.Strategy, CostUSD: cost, Timestamp: d.DecidedAt}
}
