// Package pipeline implements the mandatory five-stage identifier
// generation pipeline (router -> intake -> trust -> authorization ->
// generation). Per the wiring decision recorded in this repo's design
// notes, only the Evidence path and explicit pipeline-generate callers
// run through it; the Email Pipeline mints directly.
//
// Grounded on the teacher's internal/workflow/engine.go stage-result
// bookkeeping (named stages, PENDING/COMPLETED/FAILED status, start/end
// timestamps persisted per run), generalized from a DAG of
// caller-defined recipe steps to this package's fixed five-stage
// sequence.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chittycorp/chittyrouter/internal/identityclient"
	"github.com/chittycorp/chittyrouter/pkg/models"
)

var ErrPipelineNotFound = errors.New("pipeline: execution not found")

// CallerContext carries the trust/authorization inputs for one request.
type CallerContext struct {
	Source   string
	AuthTier string
}

// Request is one pipeline invocation's input.
type Request struct {
	SessionID  models.Identifier
	Kind       string
	EntityType models.IdentifierType
	Payload    map[string]string
	Caller     CallerContext
}

// TrustScorer scores a caller against policy; implementations may
// consult source reputation, auth tier, or historical behavior.
type TrustScorer interface {
	Score(ctx context.Context, caller CallerContext) (float64, error)
}

// Authorizer checks a caller's authorization for the requested kind of
// identifier generation.
type Authorizer interface {
	Authorize(ctx context.Context, caller CallerContext, kind string) error
}

// minTrustScore is the default trust-score floor below which the Trust
// stage fails closed.
const minTrustScore = 0.3

// Engine runs the five-stage pipeline and persists each execution's
// stage-by-stage progress for later status queries.
type Engine struct {
	mu         sync.RWMutex
	executions map[string]*models.PipelineExecution

	Identity *identityclient.Client
	Trust    TrustScorer
	Authz    Authorizer
}

// New builds an Engine.
func New(identity *identityclient.Client, trust TrustScorer, authz Authorizer) *Engine {
	return &Engine{executions: make(map[string]*models.PipelineExecution), Identity: identity, Trust: trust, Authz: authz}
}

// Generate runs the five stages in strict order for one request. A
// failing stage halts the pipeline immediately — a failed pipeline never
// produces an identifier.
func (e *Engine) Generate(ctx context.Context, correlationID string, req Request) (models.PipelineExecution, error) {
	exec := &models.PipelineExecution{
		PipelineID:    uuid.NewString(),
		CorrelationID: correlationID,
		SessionID:     req.SessionID,
		Kind:          req.Kind,
		Status:        models.PipelineRunning,
		StartedAt:     time.Now().UTC(),
	}
	e.store(exec)

	if !e.runStage(exec, models.StageRouter, func() error { return stageRouter(req) }) {
		return e.finish(exec, models.PipelineFailed), nil
	}
	if !e.runStage(exec, models.StageIntake, func() error { return stageIntake(req) }) {
		return e.finish(exec, models.PipelineFailed), nil
	}
	if !e.runStage(exec, models.StageTrust, func() error { return e.stageTrust(ctx, req) }) {
		return e.finish(exec, models.PipelineFailed), nil
	}
	if !e.runStage(exec, models.StageAuthorization, func() error { return e.stageAuthorization(ctx, req) }) {
		return e.finish(exec, models.PipelineFailed), nil
	}

	var chittyID models.Identifier
	if !e.runStage(exec, models.StageGeneration, func() error {
		id, err := e.Identity.Mint(ctx, correlationID, req.EntityType, req.Payload)
		if err != nil {
			return err
		}
		chittyID = id
		return nil
	}) {
		return e.finish(exec, models.PipelineFailed), nil
	}

	exec.ChittyID = chittyID
	return e.finish(exec, models.PipelineCompleted), nil
}

// Status returns the current state of a pipeline execution.
func (e *Engine) Status(pipelineID string) (models.PipelineExecution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[pipelineID]
	if !ok {
		return models.PipelineExecution{}, ErrPipelineNotFound
	}
	return *exec, nil
}

func (e *Engine) store(exec *models.PipelineExecution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[exec.PipelineID] = exec
}

func (e *Engine) finish(exec *models.PipelineExecution, status models.PipelineStatus) models.PipelineExecution {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec.Status = status
	now := time.Now().UTC()
	exec.CompletedAt = &now
	return *exec
}

// runStage executes fn, recording a StageResult with start/end timestamps
// and a FAILED status with the error's message on failure.
func (e *Engine) runStage(exec *models.PipelineExecution, name models.StageName, fn func() error) bool {
	result := models.StageResult{Stage: name, Status: models.StagePending, StartedAt: time.Now().UTC()}
	err := fn()
	result.EndedAt = time.Now().UTC()
	if err != nil {
		result.Status = models.StageFailed
		result.Reason = err.Error()
		e.appendStage(exec, result)
		return false
	}
	result.Status = models.StageCompleted
	e.appendStage(exec, result)
	return true
}

func (e *Engine) appendStage(exec *models.PipelineExecution, result models.StageResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	exec.StageResults = append(exec.StageResults, result)
}

func stageRouter(req Request) error {
	if req.Kind == "" {
		return errors.New("pipeline: request kind required")
	}
	return nil
}

func stageIntake(req Request) error {
	if req.EntityType == "" {
		return errors.New("pipeline: entity type required")
	}
	return nil
}

func (e *Engine) stageTrust(ctx context.Context, req Request) error {
	if e.Trust == nil {
		return nil
	}
	score, err := e.Trust.Score(ctx, req.Caller)
	if err != nil {
		return err
	}
	if score < minTrustScore {
		return errors.New("pipeline: caller trust score below policy floor")
	}
	return nil
}

func (e *Engine) stageAuthorization(ctx context.Context, req Request) error {
	if e.Authz == nil {
		return nil
	}
	return e.Authz.Authorize(ctx, req.Caller, req.Kind)
}
