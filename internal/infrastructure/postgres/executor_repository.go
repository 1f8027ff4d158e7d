package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

// ExecutorRepository implements executor.Repository.
type ExecutorRepository struct {
	pool *pgxpool.Pool
}

func NewExecutorRepository(pool *pgxpool.Pool) *ExecutorRepository {
	return &ExecutorRepository{pool: pool}
}

const executorColumns = `tenant_id, executor_id, display_name, capability_tags, status, last_seen_at, created_at, updated_at`

func (r *ExecutorRepository) Create(ctx context.Context, exec *executor.Executor) error {
	caps := exec.Capabilities
	if caps == nil {
		caps = []string{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO executors (`+executorColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, exec.TenantID, exec.ExecutorID, exec.DisplayName, caps, exec.Status, exec.LastSeenAt, exec.CreatedAt, exec.UpdatedAt)
	return err
}

func (r *ExecutorRepository) GetByID(ctx context.Context, tenantID, executorID string) (*executor.Executor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+executorColumns+`
		FROM executors WHERE tenant_id=$1 AND executor_id=$2
	`, tenantID, executorID)
	return scanExecutor(row)
}

func (r *ExecutorRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*executor.Executor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executorColumns+`
		FROM executors WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*executor.Executor, 0)
	for rows.Next() {
		exec, err := scanExecutor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

func (r *ExecutorRepository) UpdateStatus(ctx context.Context, tenantID, executorID string, status executor.Status) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE executors SET status=$1, last_seen_at=NOW(), updated_at=NOW()
		WHERE tenant_id=$2 AND executor_id=$3
	`, status, tenantID, executorID)
	return err
}

func scanExecutor(row pgx.Row) (*executor.Executor, error) {
	var exec executor.Executor
	if err := row.Scan(&exec.TenantID, &exec.ExecutorID, &exec.DisplayName, &exec.Capabilities, &exec.Status, &exec.LastSeenAt, &exec.CreatedAt, &exec.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}
