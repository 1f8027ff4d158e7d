package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

//go:generate mockgen -source=repository.go -destination=mocks/mock_repository.go -package=mocks

// Repository defines executor persistence. Lookups are tenant-qualified.
type Repository interface {
	Create(ctx context.Context, exec *Executor) error
	GetByID(ctx context.Context, tenantID, executorID string) (*Executor, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*Executor, error)
	UpdateStatus(ctx context.Context, tenantID, executorID string, status Status) error
}

// TokenRepository defines executor token persistence.
type TokenRepository interface {
	Create(ctx context.Context, token *Token) error
	GetByID(ctx context.Context, tokenID uuid.UUID) (*Token, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Token, error)
	Delete(ctx context.Context, tokenID uuid.UUID) error
}
