package task

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scan-hub/scan-hub/internal/apperr"
	appAIJob "github.com/scan-hub/scan-hub/internal/application/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/dispatch"
	"github.com/scan-hub/scan-hub/internal/domain/engine"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/domain/review"
	"github.com/scan-hub/scan-hub/internal/domain/stage"
	"github.com/scan-hub/scan-hub/internal/domain/task"
	"github.com/scan-hub/scan-hub/internal/infrastructure/sse"
)

// ExecutorGate resolves and updates executors.
type ExecutorGate interface {
	ResolveOptional(ctx context.Context, tenantID string, executorID *string) (*string, error)
	UpdateStatus(ctx context.Context, tenantID, executorID string, status executor.Status) error
}

// Dispatcher delivers payloads to connected executors.
type Dispatcher interface {
	Send(id executor.Identity, payload []byte) error
}

// Publisher relays task events to streaming clients.
type Publisher interface {
	PublishTask(tenantID string, taskID uuid.UUID, msg *sse.Message) int
}

// JobRunner runs work in the background behind a ticket.
type JobRunner interface {
	Submit(ctx context.Context, tenantID, jobType string, taskID *uuid.UUID, fn appAIJob.JobFunc) (*aijob.Ticket, error)
}

// Reviewer runs AI review stages.
type Reviewer interface {
	Review(ctx context.Context, tenantID string, taskID uuid.UUID, in review.Input) (*stage.Summary, error)
}

// ReviewStage requests an AI review after the scan. The stage runs only when
// Condition holds; an empty condition always runs.
type ReviewStage struct {
	Input     review.Input `json:"input"`
	Condition string       `json:"condition,omitempty"`
}

// SubmitRequest describes a task to create and dispatch.
type SubmitRequest struct {
	TenantID     string          `json:"-"`
	RepositoryID string          `json:"repositoryId"`
	Type         task.Type       `json:"type"`
	Engine       *string         `json:"engine,omitempty"`
	ExecutorID   *string         `json:"executorId,omitempty"`
	Target       engine.Target   `json:"target"`
	Context      json.RawMessage `json:"context,omitempty"`
	Review       *ReviewStage    `json:"review,omitempty"`
}

var scanStages = map[task.Type]stage.Type{
	task.TypeCodeCheck:   stage.TypeStaticAnalysis,
	task.TypeSCACheck:    stage.TypeDependencyScan,
	task.TypeSecretCheck: stage.TypeSecretScan,
}

// Service handles task submission, local execution and executor reports.
type Service struct {
	taskRepo  task.Repository
	logRepo   task.LogRepository
	stageRepo stage.Repository
	engines   *engine.Registry
	executors ExecutorGate
	conns     Dispatcher
	jobs      JobRunner
	reviewer  Reviewer
	events    Publisher
	workDir   string
	logger    zerolog.Logger
}

// NewService creates a task service.
func NewService(
	taskRepo task.Repository,
	logRepo task.LogRepository,
	stageRepo stage.Repository,
	engines *engine.Registry,
	executors ExecutorGate,
	conns Dispatcher,
	jobs JobRunner,
	reviewer Reviewer,
	events Publisher,
	workDir string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		taskRepo:  taskRepo,
		logRepo:   logRepo,
		stageRepo: stageRepo,
		engines:   engines,
		executors: executors,
		conns:     conns,
		jobs:      jobs,
		reviewer:  reviewer,
		events:    events,
		workDir:   workDir,
		logger:    logger.With().Str("service", "task").Logger(),
	}
}

// Submit validates and persists a task, then hands it to its executor or
// runs it locally. Engine and executor checks happen before anything is
// stored.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*task.Task, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, apperr.Validation("tenantId is required")
	}
	if !validTenantID(req.TenantID) {
		return nil, apperr.Validation("invalid tenantId: %q", req.TenantID)
	}
	if req.Type == "" {
		return nil, apperr.Validation("type is required")
	}
	if err := req.Target.Validate(); err != nil {
		return nil, apperr.Validation("invalid target: %s %q", req.Target.Kind, req.Target.Ref)
	}
	if len(req.Context) > 0 && !json.Valid(req.Context) {
		return nil, apperr.Validation("context must be valid JSON")
	}

	engineID, err := task.ResolveEngine(req.Type, req.Engine)
	if err != nil {
		return nil, err
	}
	var adapter engine.Adapter
	if engineID != nil {
		if adapter, err = s.engines.Resolve(*engineID); err != nil {
			return nil, err
		}
	} else if req.Type != task.TypeAIReview {
		return nil, apperr.Validation("task type %s requires an engine", req.Type)
	}

	executorID, err := s.executors.ResolveOptional(ctx, req.TenantID, req.ExecutorID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &task.Task{
		TaskID:       uuid.New(),
		TenantID:     req.TenantID,
		RepositoryID: req.RepositoryID,
		Type:         req.Type,
		Engine:       engineID,
		ExecutorID:   executorID,
		Target:       req.Target,
		Context:      req.Context,
		Status:       task.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.taskRepo.Create(ctx, t); err != nil {
		return nil, err
	}
	log := s.logger.With().Str("tenant_id", t.TenantID).Str("task_id", t.TaskID.String()).Logger()
	log.Info().Str("type", string(t.Type)).Str("engine", deref(t.Engine)).Str("executor_id", deref(t.ExecutorID)).Msg("task submitted")

	if t.IsRemote() {
		return t, s.dispatchRemote(ctx, t, log)
	}
	if err := s.runLocal(ctx, t, adapter, req.Review); err != nil {
		return t, err
	}
	return t, nil
}

func (s *Service) dispatchRemote(ctx context.Context, t *task.Task, log zerolog.Logger) error {
	payload, err := dispatch.Encode(dispatch.KindDispatch, dispatch.Dispatch{
		TaskID:       t.TaskID,
		TenantID:     t.TenantID,
		RepositoryID: t.RepositoryID,
		TaskType:     t.Type,
		Engine:       t.Engine,
		Target:       t.Target,
		Context:      t.Context,
	})
	if err != nil {
		return err
	}
	// The executor may report back before Send returns, so DISPATCHED must be
	// stored first.
	if err := t.MarkDispatched(); err != nil {
		return err
	}
	if err := s.taskRepo.Update(ctx, t); err != nil {
		return err
	}
	s.publishStatus(t)

	id := executor.Identity{TenantID: t.TenantID, ExecutorID: *t.ExecutorID}
	if err := s.conns.Send(id, payload); err != nil {
		log.Warn().Err(err).Msg("dispatch failed")
		_ = s.finish(ctx, t, err)
		return err
	}
	return nil
}

func (s *Service) runLocal(ctx context.Context, t *task.Task, adapter engine.Adapter, reviewStage *ReviewStage) error {
	snapshot := *t
	_, err := s.jobs.Submit(ctx, t.TenantID, aijob.JobTypeScan, &t.TaskID, func(ctx context.Context) (json.RawMessage, error) {
		summaries, err := s.execute(ctx, &snapshot, adapter, reviewStage)
		if err != nil {
			return nil, err
		}
		return json.Marshal(summaries)
	})
	if err != nil {
		_ = s.finish(ctx, t, err)
	}
	return err
}

// execute runs a task in-process: the scan stage, then the optional review
// stage. The task always ends in a terminal state.
func (s *Service) execute(ctx context.Context, t *task.Task, adapter engine.Adapter, reviewStage *ReviewStage) ([]*stage.Summary, error) {
	if err := t.Start(); err != nil {
		return nil, err
	}
	if err := s.taskRepo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.publishStatus(t)

	var summaries []*stage.Summary
	scanStatus := string(stage.StatusSkipped)

	if adapter != nil {
		summary, scanErr := s.scan(ctx, t, adapter)
		if err := s.saveStage(ctx, t.TenantID, summary); err != nil {
			_ = s.finish(ctx, t, err)
			return nil, err
		}
		summaries = append(summaries, summary)
		if scanErr != nil {
			_ = s.finish(ctx, t, scanErr)
			return summaries, scanErr
		}
		scanStatus = string(summary.Status)
	}

	if reviewStage != nil || t.Type == task.TypeAIReview {
		summary, err := s.review(ctx, t, reviewStage, scanStatus)
		if err != nil {
			_ = s.finish(ctx, t, err)
			return summaries, err
		}
		summaries = append(summaries, summary)
	}

	_ = s.finish(ctx, t, nil)
	return summaries, nil
}

// validTenantID reports whether id is safe to use as a directory name under
// the scan work directory.
func validTenantID(id string) bool {
	if id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}

func (s *Service) scan(ctx context.Context, t *task.Task, adapter engine.Adapter) (*stage.Summary, error) {
	started := time.Now().UTC()
	artifacts, err := adapter.Scan(ctx, engine.ScanRequest{
		Target:    t.Target,
		OutputDir: filepath.Join(s.workDir, t.TenantID, t.TaskID.String()),
	})
	ended := time.Now().UTC()
	summary := &stage.Summary{
		StageID:   uuid.New(),
		TaskID:    t.TaskID,
		StageType: scanStages[t.Type],
		Status:    stage.StatusSucceeded,
		Artifacts: map[string]string{},
		StartedAt: &started,
		EndedAt:   &ended,
	}
	if err != nil {
		summary.Status = stage.StatusFailed
		return summary, err
	}
	summary.Artifacts = artifacts.AsMap()
	return summary, nil
}

func (s *Service) review(ctx context.Context, t *task.Task, reviewStage *ReviewStage, scanStatus string) (*stage.Summary, error) {
	in := review.Input{Enabled: true}
	condition := ""
	if reviewStage != nil {
		in = reviewStage.Input
		condition = reviewStage.Condition
	}
	run, err := evaluateCondition(condition, conditionParams(t.Context, scanStatus))
	if err != nil {
		return nil, apperr.Validation("invalid review condition: %v", err)
	}
	if !run {
		now := time.Now().UTC()
		skipped := &stage.Summary{
			StageID:   uuid.New(),
			TaskID:    t.TaskID,
			StageType: stage.TypeAIReview,
			Status:    stage.StatusSkipped,
			Artifacts: map[string]string{},
			StartedAt: &now,
			EndedAt:   &now,
		}
		return skipped, s.saveStage(ctx, t.TenantID, skipped)
	}
	summary, err := s.reviewer.Review(ctx, t.TenantID, t.TaskID, in)
	if err != nil {
		return nil, err
	}
	return summary, s.saveStage(ctx, t.TenantID, summary)
}

// finish moves t to COMPLETED, or FAILED when cause is set. Failures are
// logged and returned; local runs ignore them since the task may already be
// terminal.
func (s *Service) finish(ctx context.Context, t *task.Task, cause error) error {
	var err error
	if cause != nil {
		err = t.Fail(cause.Error())
	} else {
		err = t.Complete()
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", t.TaskID.String()).Str("status", string(t.Status)).Msg("task not finished")
		return apperr.Validation("task %s cannot finish from %s", t.TaskID, t.Status)
	}
	if err := s.taskRepo.Update(ctx, t); err != nil {
		s.logger.Error().Err(err).Str("task_id", t.TaskID.String()).Msg("failed to persist task result")
		return err
	}
	s.publishStatus(t)
	return nil
}

func (s *Service) saveStage(ctx context.Context, tenantID string, summary *stage.Summary) error {
	if err := s.stageRepo.Save(ctx, tenantID, summary); err != nil {
		return err
	}
	s.publish(tenantID, summary.TaskID, sse.EventStage, summary)
	return nil
}

// Get returns a task owned by the tenant.
func (s *Service) Get(ctx context.Context, tenantID string, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.taskRepo.GetByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("task", taskID.String())
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, tenantID string, status *task.Status, limit, offset int) ([]*task.Task, error) {
	return s.taskRepo.List(ctx, tenantID, status, limit, offset)
}

func (s *Service) Stages(ctx context.Context, tenantID string, taskID uuid.UUID) ([]*stage.Summary, error) {
	if _, err := s.Get(ctx, tenantID, taskID); err != nil {
		return nil, err
	}
	return s.stageRepo.ListByTask(ctx, tenantID, taskID)
}

func (s *Service) Logs(ctx context.Context, tenantID string, taskID uuid.UUID, limit int) ([]*task.LogEntry, error) {
	if _, err := s.Get(ctx, tenantID, taskID); err != nil {
		return nil, err
	}
	return s.logRepo.ListByTask(ctx, tenantID, taskID, limit)
}

func (s *Service) publishStatus(t *task.Task) {
	s.publish(t.TenantID, t.TaskID, sse.EventTaskStatus, map[string]interface{}{
		"taskId":    t.TaskID,
		"status":    t.Status,
		"lastError": t.LastError,
	})
}

func (s *Service) publish(tenantID string, taskID uuid.UUID, event string, v interface{}) {
	if s.events == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Str("event", event).Msg("failed to encode event")
		return
	}
	s.events.PublishTask(tenantID, taskID, sse.NewMessage(event, data))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
