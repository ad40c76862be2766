package minting

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittycorp/chittyrouter/pkg/models"
)

type fixedBeacon struct {
	round uint64
	value string
}

func (f fixedBeacon) Latest(ctx context.Context) (Beacon, error) {
	return Beacon{Round: f.round, Value: f.value}, nil
}

func TestAlwaysHardDocumentTypeWins(t *testing.T) {
	d := NewDecider(Policy{BeaconEnabled: true}, fixedBeacon{round: 1, value: "abc"})
	decision, err := d.Decide(context.Background(), "CHITTY-EVNT-001-AB", "hash1", ScoreInputs{DocumentType: "court-order"})
	require.NoError(t, err)
	assert.Equal(t, models.MintHard, decision.Strategy)
	assert.False(t, decision.Verifiable)
}

func TestHighScoreForcesHard(t *testing.T) {
	d := NewDecider(Policy{BeaconEnabled: true}, fixedBeacon{round: 1, value: "abc"})
	in := ScoreInputs{DocumentType: "criminal-evidence", Classification: "privileged", MonetaryValueUSD: 60_000, CallerLegalWeight: 1}
	require.Greater(t, SecurityScore(in), 0.8)

	decision, err := d.Decide(context.Background(), "CHITTY-EVNT-002-AB", "hash2", in)
	require.NoError(t, err)
	assert.Equal(t, models.MintHard, decision.Strategy)
	assert.False(t, decision.Verifiable)
}

// Determinism invariant: (chittyId, beacon.round, payloadHash) -> decision
// is a pure function.
func TestDecisionIsDeterministic(t *testing.T) {
	d := NewDecider(Policy{BeaconEnabled: true}, fixedBeacon{round: 42, value: "fixed-randomness"})
	in := ScoreInputs{DocumentType: "contract", Classification: "public"}

	first, err := d.Decide(context.Background(), "CHITTY-EVNT-003-AB", "samehash", in)
	require.NoError(t, err)
	second, err := d.Decide(context.Background(), "CHITTY-EVNT-003-AB", "samehash", in)
	require.NoError(t, err)

	assert.Equal(t, first.Strategy, second.Strategy)
	assert.Equal(t, first.Rationale, second.Rationale)
}

func TestRationaleCarriesScoreRoundAndDraw(t *testing.T) {
	d := NewDecider(Policy{BeaconEnabled: true}, fixedBeacon{round: 7, value: "seed"})
	in := ScoreInputs{DocumentType: "correspondence", Classification: "public"}
	decision, err := d.Decide(context.Background(), "CHITTY-EVNT-004-AB", "hashx", in)
	require.NoError(t, err)

	assert.Equal(t, decision.SecurityScore, decision.Rationale.SecurityScore)
	assert.Equal(t, uint64(7), decision.Rationale.BeaconRound)
	assert.Equal(t, deterministicUniform([]byte("seed|hashx")), decision.Rationale.Draw)
}

func TestBeaconDisabledDefaultsSoftUnlessForcedHard(t *testing.T) {
	d := NewDecider(Policy{BeaconEnabled: false}, DisabledBeaconSource{})
	in := ScoreInputs{DocumentType: "correspondence", Classification: "public"}
	decision, err := d.Decide(context.Background(), "CHITTY-EVNT-005-AB", "hashy", in)
	require.NoError(t, err)
	assert.Equal(t, models.MintSoft, decision.Strategy)
}

func TestBillingMatchesStrategy(t *testing.T) {
	soft := models.MintingDecision{Strategy: models.MintSoft}
	hard := models.MintingDecision{Strategy: models.MintHard}
	assert.Equal(t, 0.01, Billing(soft).CostUSD)
	assert.Equal(t, 40.0, Billing(hard).CostUSD)
}
