package task

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/engine"
)

// Type represents the kind of scan a task performs.
type Type string

const (
	TypeCodeCheck   Type = "CODE_CHECK"
	TypeSCACheck    Type = "SCA_CHECK"
	TypeSecretCheck Type = "SECRET_CHECK"
	TypeAIReview    Type = "AI_REVIEW"
)

// Status represents task status.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusDispatched Status = "DISPATCHED"
	StatusRunning    Status = "RUNNING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

var ErrInvalidTransition = errors.New("invalid task status transition")

// Task represents a scan task scoped to a tenant repository.
type Task struct {
	ID           int64           `json:"id"`
	TaskID       uuid.UUID       `json:"taskId"`
	TenantID     string          `json:"tenantId"`
	RepositoryID string          `json:"repositoryId"`
	Type         Type            `json:"type"`
	Engine       *string         `json:"engine,omitempty"`
	ExecutorID   *string         `json:"executorId,omitempty"`
	Target       engine.Target   `json:"target"`
	Context      json.RawMessage `json:"context,omitempty"`
	Status       Status          `json:"status"`
	LastError    *string         `json:"lastError,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// IsRemote reports whether the task runs on a remote executor.
func (t *Task) IsRemote() bool {
	return t.ExecutorID != nil
}

// CanTransitionTo validates task status transition.
func (t *Task) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:    {StatusDispatched, StatusRunning, StatusFailed},
		StatusDispatched: {StatusRunning, StatusCompleted, StatusFailed},
		StatusRunning:    {StatusCompleted, StatusFailed},
		StatusCompleted:  {},
		StatusFailed:     {},
	}
	for _, s := range transitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (t *Task) transition(target Status) error {
	if !t.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	t.Status = target
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkDispatched records that the task was handed to an executor.
func (t *Task) MarkDispatched() error {
	return t.transition(StatusDispatched)
}

// Start sets task to running.
func (t *Task) Start() error {
	return t.transition(StatusRunning)
}

// Complete sets task to completed.
func (t *Task) Complete() error {
	return t.transition(StatusCompleted)
}

// Fail sets task to failed and records the reason.
func (t *Task) Fail(reason string) error {
	if err := t.transition(StatusFailed); err != nil {
		return err
	}
	t.LastError = &reason
	return nil
}

// IsTerminal returns true if the task is in a terminal state.
func (t *Task) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
