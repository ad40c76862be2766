// Package models holds the data model shared across ChittyRouter's
// components: identifiers, vector clocks, sessions, todos, evidence
// records, minting decisions, agents, interaction logs, and pipeline
// executions.
package models

import "time"

// VectorClock maps replica-ID to a monotonic counter. See internal/vclock
// for Merge/Compare/Tick operations.
type VectorClock map[string]uint64

// IdentifierType is the TYPE field of a ChittyID.
type IdentifierType string

const (
	TypePerson   IdentifierType = "PEO"
	TypePlace    IdentifierType = "PLACE"
	TypeProperty IdentifierType = "PROP"
	TypeEvent    IdentifierType = "EVNT"
	TypeInfo     IdentifierType = "INFO"
	TypeAuth     IdentifierType = "AUTH"
	TypeContext  IdentifierType = "CONTEXT"
	TypeFact     IdentifierType = "FACT"
	TypeActor    IdentifierType = "ACTOR"
)

// Identifier is the opaque, externally minted name of a durable entity.
// Shape: <PREFIX>-<TYPE>-<SEQ>-<CHECK>. Minted through
// internal/identityclient; the one local fallback is synchub.Hub, which
// assigns a random UUID when it is built without an identity client.
type Identifier string

// SessionStatus enumerates the lifecycle of a Sync Hub session.
type SessionStatus string

const (
	SessionActive     SessionStatus = "ACTIVE"
	SessionTerminated SessionStatus = "TERMINATED"
)

// Session is owned by the Sync Hub and mutated only via UpdateSession.
type Session struct {
	ID          Identifier             `json:"id"`
	ReplicaID   string                 `json:"replicaId"`
	Clock       VectorClock            `json:"clock"`
	State       map[string]interface{} `json:"state"`
	CreatedAt   time.Time              `json:"createdAt"`
	LastUpdated time.Time              `json:"lastUpdated"`
	Status      SessionStatus          `json:"status"`
}

// TodoStatus enumerates the lifecycle of a Todo.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
)

// Todo is soft-delete only; two todos are in conflict iff their clocks
// are concurrent and any user-visible field differs.
type Todo struct {
	ID           Identifier  `json:"id"`
	UserID       string      `json:"userId"`
	Content      string      `json:"content"`
	Status       TodoStatus  `json:"status"`
	ActiveForm   string      `json:"activeForm,omitempty"`
	Platform     string      `json:"platform,omitempty"`
	SessionID    Identifier  `json:"sessionId,omitempty"`
	ProjectID    Identifier  `json:"projectId,omitempty"`
	Clock        VectorClock `json:"clock"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	DeletedAt    *time.Time  `json:"deletedAt,omitempty"`
	ConflictWith Identifier  `json:"conflictWith,omitempty"`
}

// Visible reports whether the todo is not soft-deleted.
func (t *Todo) Visible() bool { return t.DeletedAt == nil }

// Priority is shared by email classification and evidence records.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Entities is the extracted-entity bundle shared by evidence and email
// classification.
type Entities struct {
	People     []string `json:"people,omitempty"`
	Places     []string `json:"places,omitempty"`
	Properties []string `json:"properties,omitempty"`
}

// EvidenceRecord is preserved regardless of probability; probability > 0.7
// forces TypeEvent, otherwise TypeInfo.
type EvidenceRecord struct {
	ChittyID       Identifier     `json:"chittyId"`
	Probability    float64        `json:"probability"`
	Priority       Priority       `json:"priority"`
	PayloadHash    string         `json:"payloadHash"`
	Entities       Entities       `json:"entities"`
	CreatedAt      time.Time      `json:"createdAt"`
	ReindexHistory []ReindexEvent `json:"reindexHistory,omitempty"`

	// DocumentType, Classification, MonetaryValueUSD and CallerLegalWeight
	// feed the Minting Decision Service's weighted security score; they
	// are caller-declared at submission time and carried through to the
	// Blockchain Queue consumer so scoring never degenerates to the
	// beacon-only default.
	DocumentType      string  `json:"documentType,omitempty"`
	Classification    string  `json:"classification,omitempty"`
	MonetaryValueUSD  float64 `json:"monetaryValueUsd,omitempty"`
	CallerLegalWeight float64 `json:"callerLegalWeight,omitempty"`
}

// ReindexEvent records one reindex pass over an evidence record.
type ReindexEvent struct {
	At             time.Time  `json:"at"`
	OldProbability float64    `json:"oldProbability"`
	NewProbability float64    `json:"newProbability"`
	Elevated       bool       `json:"elevated"`
	CompanionID    Identifier `json:"companionId,omitempty"`
}

// MintStrategy is the decided outcome of the Minting Decision Service.
type MintStrategy string

const (
	MintSoft MintStrategy = "soft"
	MintHard MintStrategy = "hard"
)

// MintingDecision is immutable once written; it is the audit trail.
// (chittyId, beaconRound) -> (strategy, securityScore) is a pure function.
type MintingDecision struct {
	ChittyID      Identifier   `json:"chittyId"`
	Strategy      MintStrategy `json:"strategy"`
	SecurityScore float64      `json:"securityScore"`
	Verifiable    bool         `json:"verifiable"`
	BeaconRound   uint64       `json:"beaconRound"`
	BeaconValue   string       `json:"beaconValue,omitempty"`
	Rationale     Rationale    `json:"rationale"`
	DecidedAt     time.Time    `json:"decidedAt"`
}

// Rationale carries the three values a verifier needs to recheck a
// Minting Decision: the security score, the beacon round, and the
// derived uniform draw.
type Rationale struct {
	SecurityScore float64 `json:"s"`
	BeaconRound   uint64  `json:"beaconRound"`
	Draw          float64 `json:"r"`
	Note          string  `json:"note,omitempty"`
}

// Agent is the per-name singleton record; agentId exclusively owns all
// four memory tiers for that agent.
type Agent struct {
	AgentID        Identifier     `json:"agentId"`
	Name           string         `json:"name"`
	ModelScores    map[string]float64 `json:"modelScores"`
	AggregateStats AggregateStats `json:"aggregateStats"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// AggregateStats is the durable per-agent counter bundle.
type AggregateStats struct {
	TotalInteractions int64            `json:"totalInteractions"`
	TotalCost         float64          `json:"totalCost"`
	ProviderUsage     map[string]int64 `json:"providerUsage"`
}

// ModelScoreKey formats the (taskType, provider) composite key used in
// Agent.ModelScores.
func ModelScoreKey(taskType, provider string) string {
	return taskType + "|" + provider
}

// InteractionLog is appended on every agent completion and drives learning.
type InteractionLog struct {
	ID           Identifier `json:"id"`
	AgentID      Identifier `json:"agentId"`
	TaskType     string     `json:"taskType"`
	Prompt       string     `json:"prompt"`
	Provider     string     `json:"provider"`
	Response     string     `json:"response"`
	Success      bool       `json:"success"`
	QualityScore float64    `json:"qualityScore"`
	Cost         float64    `json:"cost"`
	LatencyMs    int64      `json:"latencyMs"`
	OccurredAt   time.Time  `json:"occurredAt"`
}

// StageStatus is the state of one Pipeline Execution stage.
type StageStatus string

const (
	StagePending   StageStatus = "PENDING"
	StageCompleted StageStatus = "COMPLETED"
	StageFailed    StageStatus = "FAILED"
)

// StageName enumerates the five fixed pipeline stages, in order.
type StageName string

const (
	StageRouter        StageName = "router"
	StageIntake        StageName = "intake"
	StageTrust         StageName = "trust"
	StageAuthorization StageName = "authorization"
	StageGeneration    StageName = "generation"
)

// PipelineStages is the fixed, ordered stage list.
var PipelineStages = []StageName{StageRouter, StageIntake, StageTrust, StageAuthorization, StageGeneration}

// StageResult records the outcome of one stage.
type StageResult struct {
	Stage     StageName   `json:"stage"`
	Status    StageStatus `json:"status"`
	Reason    string      `json:"reason,omitempty"`
	StartedAt time.Time   `json:"startedAt"`
	EndedAt   time.Time   `json:"endedAt,omitempty"`
}

// PipelineStatus is the overall state of a Pipeline Execution.
type PipelineStatus string

const (
	PipelineRunning   PipelineStatus = "RUNNING"
	PipelineCompleted PipelineStatus = "COMPLETED"
	PipelineFailed    PipelineStatus = "FAILED"
)

// PipelineExecution tracks one run of the five-stage identifier pipeline.
type PipelineExecution struct {
	PipelineID    string         `json:"pipelineId"`
	CorrelationID string         `json:"correlationId"`
	SessionID     Identifier     `json:"sessionId,omitempty"`
	Kind          string         `json:"kind"`
	Status        PipelineStatus `json:"status"`
	ChittyID      Identifier     `json:"chittyId,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	StageResults  []StageResult  `json:"stageResults"`
}
