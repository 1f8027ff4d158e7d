package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scan-hub/scan-hub/internal/domain/stage"
	"github.com/scan-hub/scan-hub/internal/domain/task"
)

// TaskRepository implements task.Repository.
type TaskRepository struct {
	pool *pgxpool.Pool
}

func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

const taskColumns = `id, task_id, tenant_id, repository_id, task_type, engine, executor_id, target_kind, target_ref, context, status, last_error, created_at, updated_at`

func (r *TaskRepository) Create(ctx context.Context, t *task.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (task_id, tenant_id, repository_id, task_type, engine, executor_id, target_kind, target_ref, context, status, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id
	`, t.TaskID, t.TenantID, t.RepositoryID, t.Type, t.Engine, t.ExecutorID, t.Target.Kind, t.Target.Ref,
		nullableJSON(t.Context), t.Status, t.LastError, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
}

func (r *TaskRepository) GetByID(ctx context.Context, tenantID string, taskID uuid.UUID) (*task.Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE tenant_id=$1 AND task_id=$2`, tenantID, taskID)
	return scanTask(row)
}

func (r *TaskRepository) List(ctx context.Context, tenantID string, status *task.Status, limit, offset int) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE tenant_id=$1`
	args := []interface{}{tenantID}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(" AND status=$%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*task.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepository) Update(ctx context.Context, t *task.Task) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status=$1, last_error=$2, executor_id=$3, updated_at=$4
		WHERE tenant_id=$5 AND task_id=$6
	`, t.Status, t.LastError, t.ExecutorID, t.UpdatedAt, t.TenantID, t.TaskID)
	return err
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var t task.Task
	var contextJSON []byte
	if err := row.Scan(&t.ID, &t.TaskID, &t.TenantID, &t.RepositoryID, &t.Type, &t.Engine, &t.ExecutorID,
		&t.Target.Kind, &t.Target.Ref, &contextJSON, &t.Status, &t.LastError, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(contextJSON) > 0 {
		t.Context = json.RawMessage(contextJSON)
	}
	return &t, nil
}

// TaskLogRepository implements task.LogRepository.
type TaskLogRepository struct {
	pool *pgxpool.Pool
}

func NewTaskLogRepository(pool *pgxpool.Pool) *TaskLogRepository {
	return &TaskLogRepository{pool: pool}
}

func (r *TaskLogRepository) Append(ctx context.Context, e *task.LogEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO task_logs (tenant_id, task_id, line, created_at) VALUES ($1,$2,$3,$4) RETURNING id
	`, e.TenantID, e.TaskID, e.Line, e.CreatedAt).Scan(&e.ID)
}

func (r *TaskLogRepository) ListByTask(ctx context.Context, tenantID string, taskID uuid.UUID, limit int) ([]*task.LogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, task_id, line, created_at
		FROM task_logs WHERE tenant_id=$1 AND task_id=$2 ORDER BY id ASC LIMIT $3
	`, tenantID, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*task.LogEntry, 0)
	for rows.Next() {
		var e task.LogEntry
		if err := rows.Scan(&e.ID, &e.TenantID, &e.TaskID, &e.Line, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (r *TaskLogRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.pool.Exec(ctx, `DELETE FROM task_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(res.RowsAffected()), nil
}

// StageRepository implements stage.Repository.
type StageRepository struct {
	pool *pgxpool.Pool
}

func NewStageRepository(pool *pgxpool.Pool) *StageRepository {
	return &StageRepository{pool: pool}
}

func (r *StageRepository) Save(ctx context.Context, tenantID string, s *stage.Summary) error {
	artifacts, err := json.Marshal(s.Artifacts)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO task_stages (stage_id, task_id, tenant_id, stage_type, status, artifacts, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, s.StageID, s.TaskID, tenantID, s.StageType, s.Status, string(artifacts), s.StartedAt, s.EndedAt)
	return err
}

func (r *StageRepository) ListByTask(ctx context.Context, tenantID string, taskID uuid.UUID) ([]*stage.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT stage_id, task_id, stage_type, status, artifacts, started_at, ended_at
		FROM task_stages WHERE tenant_id=$1 AND task_id=$2 ORDER BY seq ASC
	`, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*stage.Summary, 0)
	for rows.Next() {
		var s stage.Summary
		var artifacts []byte
		if err := rows.Scan(&s.StageID, &s.TaskID, &s.StageType, &s.Status, &artifacts, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(artifacts, &s.Artifacts); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}
