package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/stage"
	"github.com/scan-hub/scan-hub/internal/domain/task"
)

type taskKey struct {
	tenantID string
	taskID   uuid.UUID
}

// TaskRepository implements task.Repository.
type TaskRepository struct {
	mu     sync.RWMutex
	nextID int64
	tasks  map[taskKey]*task.Task
}

func NewTaskRepository() *TaskRepository {
	return &TaskRepository{tasks: make(map[taskKey]*task.Task)}
}

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	r.tasks[taskKey{t.TenantID, t.TaskID}] = cloneTask(t)
	return nil
}

func (r *TaskRepository) GetByID(ctx context.Context, tenantID string, taskID uuid.UUID) (*task.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[taskKey{tenantID, taskID}]
	if !ok {
		return nil, nil
	}
	return cloneTask(t), nil
}

func (r *TaskRepository) List(ctx context.Context, tenantID string, status *task.Status, limit, offset int) ([]*task.Task, error) {
	r.mu.RLock()
	out := make([]*task.Task, 0)
	for k, t := range r.tasks {
		if k.tenantID != tenantID {
			continue
		}
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, cloneTask(t))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := taskKey{t.TenantID, t.TaskID}
	if _, ok := r.tasks[key]; !ok {
		return nil
	}
	r.tasks[key] = cloneTask(t)
	return nil
}

func cloneTask(t *task.Task) *task.Task {
	cp := *t
	if t.Context != nil {
		cp.Context = append(json.RawMessage(nil), t.Context...)
	}
	return &cp
}

// LogRepository implements task.LogRepository.
type LogRepository struct {
	mu      sync.RWMutex
	nextID  int64
	entries []*task.LogEntry
}

func NewLogRepository() *LogRepository {
	return &LogRepository{}
}

func (r *LogRepository) Append(ctx context.Context, entry *task.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	entry.ID = r.nextID
	cp := *entry
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *LogRepository) ListByTask(ctx context.Context, tenantID string, taskID uuid.UUID, limit int) ([]*task.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*task.LogEntry, 0)
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.TaskID == taskID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return page(out, limit, 0), nil
}

func (r *LogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	removed := 0
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// StageRepository implements stage.Repository.
type StageRepository struct {
	mu     sync.RWMutex
	stages map[taskKey][]*stage.Summary
}

func NewStageRepository() *StageRepository {
	return &StageRepository{stages: make(map[taskKey][]*stage.Summary)}
}

func (r *StageRepository) Save(ctx context.Context, tenantID string, summary *stage.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := taskKey{tenantID, summary.TaskID}
	cp := *summary
	r.stages[key] = append(r.stages[key], &cp)
	return nil
}

func (r *StageRepository) ListByTask(ctx context.Context, tenantID string, taskID uuid.UUID) ([]*stage.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.stages[taskKey{tenantID, taskID}]
	out := make([]*stage.Summary, 0, len(src))
	for _, s := range src {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}
