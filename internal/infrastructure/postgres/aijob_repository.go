package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scan-hub/scan-hub/internal/domain/aijob"
)

// TicketRepository implements aijob.Repository.
type TicketRepository struct {
	pool *pgxpool.Pool
}

func NewTicketRepository(pool *pgxpool.Pool) *TicketRepository {
	return &TicketRepository{pool: pool}
}

func (r *TicketRepository) Create(ctx context.Context, t *aijob.Ticket) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO ai_job_tickets (job_id, tenant_id, task_id, job_type, status, result, error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING id
	`, t.JobID, t.TenantID, t.TaskID, t.JobType, t.Status, nullableJSON(t.Result), t.Error, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
}

func (r *TicketRepository) GetByID(ctx context.Context, tenantID string, jobID uuid.UUID) (*aijob.Ticket, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, job_id, tenant_id, task_id, job_type, status, result, error, created_at, updated_at
		FROM ai_job_tickets WHERE tenant_id=$1 AND job_id=$2
	`, tenantID, jobID)
	return scanTicket(row)
}

// Transition writes the ticket only if its stored status is still from.
func (r *TicketRepository) Transition(ctx context.Context, t *aijob.Ticket, from aijob.Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ai_job_tickets SET status=$1, result=$2, error=$3, updated_at=$4
		WHERE tenant_id=$5 AND job_id=$6 AND status=$7
	`, t.Status, nullableJSON(t.Result), t.Error, t.UpdatedAt, t.TenantID, t.JobID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanTicket(row pgx.Row) (*aijob.Ticket, error) {
	var t aijob.Ticket
	var result []byte
	if err := row.Scan(&t.ID, &t.JobID, &t.TenantID, &t.TaskID, &t.JobType, &t.Status, &result, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if len(result) > 0 {
		t.Result = json.RawMessage(result)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
