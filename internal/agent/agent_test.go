package agent

import (
	"testing"

	"github.com/chittycorp/chittyrouter/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestAgentLearningLoop(t *testing.T) {
	record := models.Agent{AgentID: "CHITTY-ACTOR-1-AB", Name: "router-bot", ModelScores: map[string]float64{}}
	a := &Agent{record: record}

	for i := 0; i < 10; i++ {
		a.adjustScore("email_routing", "workersai", 0.8)
	}
	a.adjustScore("triage", "workersai", 0.8)

	emailScore := a.record.ModelScores[models.ModelScoreKey("email_routing", "workersai")]
	triageScore := a.record.ModelScores[models.ModelScoreKey("triage", "workersai")]

	assert.GreaterOrEqual(t, emailScore, 8.0)
	assert.Greater(t, triageScore, 0.0)
	assert.Equal(t, "workersai", a.preferredProvider("email_routing"))
}

func TestAgentFailureResetsScore(t *testing.T) {
	record := models.Agent{AgentID: "CHITTY-ACTOR-1-AB", ModelScores: map[string]float64{
		models.ModelScoreKey("triage", "openai"): 0.5,
	}}
	a := &Agent{record: record}

	a.recordFailure("triage", "openai")
	assert.Equal(t, 0.0, a.record.ModelScores[models.ModelScoreKey("triage", "openai")])
}

func TestQualityHeuristic(t *testing.T) {
	assert.Equal(t, 0.0, qualityHeuristic(""))
	assert.Greater(t, qualityHeuristic("A short but complete sentence with enough length to score well."), 0.5)
}
