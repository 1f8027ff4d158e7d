package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

// TokenRepository implements executor.TokenRepository.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Create(ctx context.Context, t *executor.Token) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO executor_tokens (token_id, tenant_id, executor_id, secret_hash, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, t.TokenID, t.TenantID, t.ExecutorID, t.SecretHash, t.CreatedAt, t.ExpiresAt)
	return err
}

func (r *TokenRepository) GetByID(ctx context.Context, tokenID uuid.UUID) (*executor.Token, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT token_id, tenant_id, executor_id, secret_hash, created_at, expires_at
		FROM executor_tokens WHERE token_id=$1
	`, tokenID)
	return scanToken(row)
}

func (r *TokenRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*executor.Token, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT token_id, tenant_id, executor_id, secret_hash, created_at, expires_at
		FROM executor_tokens WHERE expires_at < $1 ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*executor.Token, 0)
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TokenRepository) Delete(ctx context.Context, tokenID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM executor_tokens WHERE token_id=$1`, tokenID)
	return err
}

func scanToken(row pgx.Row) (*executor.Token, error) {
	var t executor.Token
	if err := row.Scan(&t.TokenID, &t.TenantID, &t.ExecutorID, &t.SecretHash, &t.CreatedAt, &t.ExpiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
