package stage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies a pipeline stage.
type Type string

const (
	TypeStaticAnalysis Type = "STATIC_ANALYSIS"
	TypeDependencyScan Type = "DEPENDENCY_SCAN"
	TypeSecretScan     Type = "SECRET_SCAN"
	TypeAIReview       Type = "AI_REVIEW"
)

// Status represents the outcome of a stage.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusPartial   Status = "PARTIAL"
	StatusFailed    Status = "FAILED"
	StatusSkipped   Status = "SKIPPED"
)

// Summary is a snapshot of one stage execution. It is produced once and not
// mutated after it has been returned.
type Summary struct {
	StageID   uuid.UUID         `json:"stageId"`
	TaskID    uuid.UUID         `json:"taskId"`
	StageType Type              `json:"stageType"`
	Status    Status            `json:"status"`
	Artifacts map[string]string `json:"artifacts"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
}

// Repository persists stage summaries.
type Repository interface {
	Save(ctx context.Context, tenantID string, summary *Summary) error
	ListByTask(ctx context.Context, tenantID string, taskID uuid.UUID) ([]*Summary, error)
}
