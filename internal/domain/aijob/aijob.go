package aijob

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/apperr"
)

// Status represents the lifecycle state of an AI job ticket.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Job types.
const (
	JobTypeReview = "AI_REVIEW"
	JobTypeScan   = "SCAN"
)

// TimestampLayout is the textual form of ticket timestamps in JSON.
const TimestampLayout = "2006-01-02 15:04:05"

var (
	ErrInvalidTransition = apperr.Validation("invalid ai job status transition")
	ErrTerminal          = apperr.Validation("ai job ticket already terminal")
)

// Ticket tracks one asynchronous AI job. Terminal tickets are immutable.
type Ticket struct {
	ID        int64
	JobID     uuid.UUID
	TenantID  string
	TaskID    *uuid.UUID
	JobType   string
	Status    Status
	Result    json.RawMessage
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a ticket in CREATED state with equal timestamps.
func New(tenantID, jobType string, taskID *uuid.UUID) *Ticket {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &Ticket{
		JobID:     uuid.New(),
		TenantID:  tenantID,
		TaskID:    taskID,
		JobType:   jobType,
		Status:    StatusCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true once the ticket has succeeded or failed.
func (t *Ticket) IsTerminal() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// CanTransitionTo checks if a transition to the target status is valid.
func (t *Ticket) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusCreated:   {StatusRunning, StatusFailed},
		StatusRunning:   {StatusSucceeded, StatusFailed},
		StatusSucceeded: {},
		StatusFailed:    {},
	}
	for _, s := range transitions[t.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Start moves the ticket to RUNNING.
func (t *Ticket) Start() error {
	if err := t.check(StatusRunning); err != nil {
		return err
	}
	t.Status = StatusRunning
	t.touch()
	return nil
}

// Succeed moves the ticket to SUCCEEDED with its result.
func (t *Ticket) Succeed(result json.RawMessage) error {
	if err := t.check(StatusSucceeded); err != nil {
		return err
	}
	if result == nil {
		result = json.RawMessage(`null`)
	}
	t.Status = StatusSucceeded
	t.Result = result
	t.Error = nil
	t.touch()
	return nil
}

// Fail moves the ticket to FAILED with an error message.
func (t *Ticket) Fail(msg string) error {
	if err := t.check(StatusFailed); err != nil {
		return err
	}
	t.Status = StatusFailed
	t.Error = &msg
	t.Result = nil
	t.touch()
	return nil
}

// Clone returns a deep copy.
func (t *Ticket) Clone() *Ticket {
	c := *t
	if t.TaskID != nil {
		id := *t.TaskID
		c.TaskID = &id
	}
	if t.Result != nil {
		c.Result = append(json.RawMessage(nil), t.Result...)
	}
	if t.Error != nil {
		msg := *t.Error
		c.Error = &msg
	}
	return &c
}

func (t *Ticket) check(target Status) error {
	if t.IsTerminal() {
		return ErrTerminal
	}
	if !t.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	return nil
}

// touch advances UpdatedAt; storage keeps microseconds, so a transition within
// the same microsecond still moves forward by one.
func (t *Ticket) touch() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}

type ticketJSON struct {
	JobID     uuid.UUID       `json:"jobId"`
	TenantID  string          `json:"tenantId"`
	TaskID    *uuid.UUID      `json:"taskId,omitempty"`
	JobType   string          `json:"jobType"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *string         `json:"error,omitempty"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
}

func (t Ticket) MarshalJSON() ([]byte, error) {
	return json.Marshal(ticketJSON{
		JobID:     t.JobID,
		TenantID:  t.TenantID,
		TaskID:    t.TaskID,
		JobType:   t.JobType,
		Status:    t.Status,
		Result:    t.Result,
		Error:     t.Error,
		CreatedAt: t.CreatedAt.UTC().Format(TimestampLayout),
		UpdatedAt: t.UpdatedAt.UTC().Format(TimestampLayout),
	})
}

func (t *Ticket) UnmarshalJSON(data []byte) error {
	var raw ticketJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	created, err := time.ParseInLocation(TimestampLayout, raw.CreatedAt, time.UTC)
	if err != nil {
		return err
	}
	updated, err := time.ParseInLocation(TimestampLayout, raw.UpdatedAt, time.UTC)
	if err != nil {
		return err
	}
	*t = Ticket{
		JobID:     raw.JobID,
		TenantID:  raw.TenantID,
		TaskID:    raw.TaskID,
		JobType:   raw.JobType,
		Status:    raw.Status,
		Result:    raw.Result,
		Error:     raw.Error,
		CreatedAt: created,
		UpdatedAt: updated,
	}
	return nil
}
