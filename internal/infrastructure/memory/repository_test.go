package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scan-hub/scan-hub/internal/domain/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/domain/task"
)

func TestTicketRepository_TransitionComparesStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository()
	ticket := aijob.New("tenant-a", aijob.JobTypeReview, nil)
	require.NoError(t, repo.Create(ctx, ticket))
	assert.Equal(t, int64(1), ticket.ID)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := ticket.Clone()
			if i%2 == 0 {
				_ = next.Fail("boom")
			} else {
				_ = next.Start()
			}
			ok, err := repo.Transition(ctx, next, aijob.StatusCreated)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	ok, err := repo.Transition(ctx, aijob.New("tenant-a", aijob.JobTypeReview, nil), aijob.StatusCreated)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := repo.GetByID(ctx, "tenant-b", ticket.JobID)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestTicketRepository_StoresCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository()
	ticket := aijob.New("tenant-a", aijob.JobTypeReview, nil)
	require.NoError(t, repo.Create(ctx, ticket))

	ticket.Status = aijob.StatusFailed
	got, err := repo.GetByID(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusCreated, got.Status)

	require.NoError(t, got.Start())
	ok, err := repo.Transition(ctx, got, aijob.StatusCreated)
	require.NoError(t, err)
	require.True(t, ok)
	got.Status = aijob.StatusFailed

	again, err := repo.GetByID(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusRunning, again.Status)
}

func TestExecutorRepository_TenantScoped(t *testing.T) {
	ctx := context.Background()
	repo := NewExecutorRepository()
	now := time.Now().UTC()
	require.NoError(t, repo.Create(ctx, &executor.Executor{TenantID: "a", ExecutorID: "e1", Status: executor.StatusRegistered, CreatedAt: now}))
	require.NoError(t, repo.Create(ctx, &executor.Executor{TenantID: "a", ExecutorID: "e2", Status: executor.StatusRegistered, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, repo.Create(ctx, &executor.Executor{TenantID: "b", ExecutorID: "e1", Status: executor.StatusRegistered, CreatedAt: now}))

	require.NoError(t, repo.UpdateStatus(ctx, "a", "e1", executor.StatusBusy))
	a, err := repo.GetByID(ctx, "a", "e1")
	require.NoError(t, err)
	assert.Equal(t, executor.StatusBusy, a.Status)
	require.NotNil(t, a.LastSeenAt)
	b, err := repo.GetByID(ctx, "b", "e1")
	require.NoError(t, err)
	assert.Equal(t, executor.StatusRegistered, b.Status)

	list, err := repo.List(ctx, "a", 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e2", list[0].ExecutorID)

	list, err = repo.List(ctx, "a", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTokenRepository_ListExpired(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository()
	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Create(ctx, &executor.Token{TokenID: uuid.New(), ExpiresAt: now.Add(-time.Duration(i) * time.Hour)}))
	}
	require.NoError(t, repo.Create(ctx, &executor.Token{TokenID: uuid.New(), ExpiresAt: now.Add(time.Hour)}))

	expired, err := repo.ListExpired(ctx, now, 2)
	require.NoError(t, err)
	require.Len(t, expired, 2)
	assert.True(t, expired[0].ExpiresAt.Before(expired[1].ExpiresAt))

	for _, tok := range expired {
		require.NoError(t, repo.Delete(ctx, tok.TokenID))
	}
	expired, err = repo.ListExpired(ctx, now, 10)
	require.NoError(t, err)
	assert.Len(t, expired, 1)
}

func TestLogRepository_DeleteBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewLogRepository()
	taskID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, repo.Append(ctx, &task.LogEntry{TenantID: "a", TaskID: taskID, Line: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Append(ctx, &task.LogEntry{TenantID: "a", TaskID: taskID, Line: "new", CreatedAt: now}))
	require.NoError(t, repo.Append(ctx, &task.LogEntry{TenantID: "b", TaskID: taskID, Line: "other tenant", CreatedAt: now}))

	removed, err := repo.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	lines, err := repo.ListByTask(ctx, "a", taskID, 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "new", lines[0].Line)

	removed, err = repo.DeleteBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}
