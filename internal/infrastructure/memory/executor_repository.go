// Package memory holds mutex-guarded repositories for tests and for running
// the control plane without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/executor"
)

// ExecutorRepository implements executor.Repository.
type ExecutorRepository struct {
	mu    sync.RWMutex
	execs map[executor.Identity]*executor.Executor
}

func NewExecutorRepository() *ExecutorRepository {
	return &ExecutorRepository{execs: make(map[executor.Identity]*executor.Executor)}
}

func (r *ExecutorRepository) Create(ctx context.Context, exec *executor.Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *exec
	cp.Capabilities = append([]string(nil), exec.Capabilities...)
	r.execs[exec.Identity()] = &cp
	return nil
}

func (r *ExecutorRepository) GetByID(ctx context.Context, tenantID, executorID string) (*executor.Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.execs[executor.Identity{TenantID: tenantID, ExecutorID: executorID}]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r *ExecutorRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*executor.Executor, error) {
	r.mu.RLock()
	out := make([]*executor.Executor, 0)
	for id, e := range r.execs {
		if id.TenantID != tenantID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func (r *ExecutorRepository) UpdateStatus(ctx context.Context, tenantID, executorID string, status executor.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.execs[executor.Identity{TenantID: tenantID, ExecutorID: executorID}]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	e.Status = status
	e.LastSeenAt = &now
	e.UpdatedAt = now
	return nil
}

// TokenRepository implements executor.TokenRepository.
type TokenRepository struct {
	mu     sync.RWMutex
	tokens map[uuid.UUID]*executor.Token
}

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{tokens: make(map[uuid.UUID]*executor.Token)}
}

func (r *TokenRepository) Create(ctx context.Context, token *executor.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *token
	r.tokens[token.TokenID] = &cp
	return nil
}

func (r *TokenRepository) GetByID(ctx context.Context, tokenID uuid.UUID) (*executor.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *TokenRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*executor.Token, error) {
	r.mu.RLock()
	out := make([]*executor.Token, 0)
	for _, t := range r.tokens {
		if t.IsExpired(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return page(out, limit, 0), nil
}

func (r *TokenRepository) Delete(ctx context.Context, tokenID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, tokenID)
	return nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
