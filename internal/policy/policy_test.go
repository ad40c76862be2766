package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittycorp/chittyrouter/internal/pipeline"
)

func TestTierTrustScorerRanksByTier(t *testing.T) {
	s := TierTrustScorer{}

	operator, err := s.Score(context.Background(), pipeline.CallerContext{AuthTier: "operator"})
	require.NoError(t, err)

	viewer, err := s.Score(context.Background(), pipeline.CallerContext{AuthTier: "viewer"})
	require.NoError(t, err)

	assert.Greater(t, operator, viewer)
}

func TestTierTrustScorerUnknownTierScoresZero(t *testing.T) {
	s := TierTrustScorer{}
	score, err := s.Score(context.Background(), pipeline.CallerContext{AuthTier: "bogus"})
	require.NoError(t, err)
	assert.Zero(t, score)
}

func TestAuthenticatedAuthorizerRejectsUnrecognizedTier(t *testing.T) {
	a := AuthenticatedAuthorizer{}
	err := a.Authorize(context.Background(), pipeline.CallerContext{AuthTier: ""}, "fact")
	assert.Error(t, err)
}

func TestAuthenticatedAuthorizerAllowsOpenKindForAnyKnownTier(t *testing.T) {
	a := AuthenticatedAuthorizer{}
	err := a.Authorize(context.Background(), pipeline.CallerContext{AuthTier: "viewer"}, "fact")
	assert.NoError(t, err)
}

func TestAuthenticatedAuthorizerRestrictsEvidenceKindToServiceOrAbove(t *testing.T) {
	a := AuthenticatedAuthorizer{}

	err := a.Authorize(context.Background(), pipeline.CallerContext{AuthTier: "viewer"}, "evidence")
	assert.Error(t, err)

	err = a.Authorize(context.Background(), pipeline.CallerContext{AuthTier: "service"}, "evidence")
	assert.NoError(t, err)

	err = a.Authorize(context.Background(), pipeline.CallerContext{AuthTier: "operator"}, "evidence")
	assert.NoError(t, err)
}
