package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines task persistence. Every lookup is tenant-qualified.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, tenantID string, taskID uuid.UUID) (*Task, error)
	List(ctx context.Context, tenantID string, status *Status, limit, offset int) ([]*Task, error)
	Update(ctx context.Context, task *Task) error
}

// LogEntry is one log line reported while a task runs.
type LogEntry struct {
	ID        int64     `json:"id"`
	TenantID  string    `json:"tenantId"`
	TaskID    uuid.UUID `json:"taskId"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"createdAt"`
}

// LogRepository stores task log lines.
type LogRepository interface {
	Append(ctx context.Context, entry *LogEntry) error
	ListByTask(ctx context.Context, tenantID string, taskID uuid.UUID, limit int) ([]*LogEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)
}
