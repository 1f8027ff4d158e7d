package aijob

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/aijob"
	"github.com/scan-hub/scan-hub/internal/infrastructure/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTracker(t *testing.T, workers int) *Tracker {
	t.Helper()
	tr := NewTracker(memory.NewTicketRepository(), workers, zerolog.Nop())
	t.Cleanup(tr.Close)
	return tr
}

func TestTracker_CreateAndGet(t *testing.T) {
	tr := newTracker(t, 1)
	ctx := context.Background()

	ticket, err := tr.Create(ctx, "tenant-a", aijob.JobTypeReview, nil)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusCreated, ticket.Status)
	assert.Equal(t, ticket.CreatedAt, ticket.UpdatedAt)

	got, err := tr.Get(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, ticket.JobID, got.JobID)

	_, err = tr.Get(ctx, "tenant-b", ticket.JobID)
	assert.True(t, apperr.IsNotFound(err))

	_, err = tr.Create(ctx, "", aijob.JobTypeReview, nil)
	assert.True(t, apperr.IsValidation(err))
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := newTracker(t, 1)
	ctx := context.Background()

	ticket, err := tr.Create(ctx, "tenant-a", aijob.JobTypeReview, nil)
	require.NoError(t, err)

	running, err := tr.Start(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.True(t, running.UpdatedAt.After(ticket.UpdatedAt))

	done, err := tr.Succeed(ctx, "tenant-a", ticket.JobID, json.RawMessage(`{"ok":true}`))
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusSucceeded, done.Status)
	assert.JSONEq(t, `{"ok":true}`, string(done.Result))
	assert.Nil(t, done.Error)
	assert.Equal(t, ticket.CreatedAt, done.CreatedAt)

	_, err = tr.Fail(ctx, "tenant-a", ticket.JobID, "too late")
	assert.ErrorIs(t, err, aijob.ErrTerminal)

	stored, err := tr.Get(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusSucceeded, stored.Status)
}

func TestTracker_ConcurrentTerminalWritesHaveOneWinner(t *testing.T) {
	tr := newTracker(t, 1)
	ctx := context.Background()

	ticket, err := tr.Create(ctx, "tenant-a", aijob.JobTypeReview, nil)
	require.NoError(t, err)
	_, err = tr.Start(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			var err error
			if i%2 == 0 {
				_, err = tr.Succeed(ctx, "tenant-a", ticket.JobID, json.RawMessage(`1`))
			} else {
				_, err = tr.Fail(ctx, "tenant-a", ticket.JobID, "boom")
			}
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, aijob.ErrTerminal)
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

type staleRepo struct {
	*memory.TicketRepository
}

func (staleRepo) Transition(ctx context.Context, ticket *aijob.Ticket, from aijob.Status) (bool, error) {
	return false, nil
}

func TestTracker_LostRaceOnLiveTicket(t *testing.T) {
	tr := NewTracker(staleRepo{memory.NewTicketRepository()}, 1, zerolog.Nop())
	defer tr.Close()
	ctx := context.Background()

	ticket, err := tr.Create(ctx, "tenant-a", aijob.JobTypeReview, nil)
	require.NoError(t, err)

	_, err = tr.Start(ctx, "tenant-a", ticket.JobID)
	assert.ErrorIs(t, err, aijob.ErrInvalidTransition)
}

func TestTracker_SubmitSucceeds(t *testing.T) {
	tr := newTracker(t, 2)
	ctx := context.Background()
	taskID := uuid.New()

	ticket, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, &taskID, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`{"summary":"clean"}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusCreated, ticket.Status)

	tr.Wait()

	got, err := tr.Get(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusSucceeded, got.Status)
	assert.JSONEq(t, `{"summary":"clean"}`, string(got.Result))
	assert.Equal(t, taskID, *got.TaskID)
}

func TestTracker_SubmitFailures(t *testing.T) {
	tr := newTracker(t, 2)
	ctx := context.Background()

	failed, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		return nil, errors.New("review service unavailable")
	})
	require.NoError(t, err)
	panicked, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		panic("bad input")
	})
	require.NoError(t, err)

	tr.Wait()

	got, err := tr.Get(ctx, "tenant-a", failed.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "review service unavailable", *got.Error)
	assert.Nil(t, got.Result)

	got, err = tr.Get(ctx, "tenant-a", panicked.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusFailed, got.Status)
	assert.Contains(t, *got.Error, "bad input")
}

// flakyTicketRepository fails the first transition it sees.
type flakyTicketRepository struct {
	*memory.TicketRepository
	failed atomic.Bool
}

func (r *flakyTicketRepository) Transition(ctx context.Context, ticket *aijob.Ticket, from aijob.Status) (bool, error) {
	if r.failed.CompareAndSwap(false, true) {
		return false, errors.New("connection reset")
	}
	return r.TicketRepository.Transition(ctx, ticket, from)
}

func TestTracker_SubmitStartFailureFailsTicket(t *testing.T) {
	tr := NewTracker(&flakyTicketRepository{TicketRepository: memory.NewTicketRepository()}, 1, zerolog.Nop())
	t.Cleanup(tr.Close)
	ctx := context.Background()

	var ran atomic.Bool
	ticket, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		ran.Store(true)
		return json.RawMessage(`{}`), nil
	})
	require.NoError(t, err)
	tr.Wait()

	got, err := tr.Get(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Contains(t, *got.Error, "job not started")
	assert.False(t, ran.Load())
}

func TestTracker_PoolBoundsConcurrency(t *testing.T) {
	tr := newTracker(t, 1)
	ctx := context.Background()

	started := make(chan struct{})
	release := make(chan struct{})
	first, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		close(started)
		<-release
		return nil, nil
	})
	require.NoError(t, err)
	<-started

	second, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(`2`), nil
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	got, err := tr.Get(ctx, "tenant-a", second.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusCreated, got.Status)

	got, err = tr.Get(ctx, "tenant-a", first.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusRunning, got.Status)

	close(release)
	tr.Wait()

	got, err = tr.Get(ctx, "tenant-a", second.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusSucceeded, got.Status)
}

func TestTracker_CloseCancelsJobs(t *testing.T) {
	tr := NewTracker(memory.NewTicketRepository(), 1, zerolog.Nop())
	ctx := context.Background()

	started := make(chan struct{})
	ticket, err := tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started

	tr.Close()

	got, err := tr.Get(ctx, "tenant-a", ticket.JobID)
	require.NoError(t, err)
	assert.Equal(t, aijob.StatusFailed, got.Status)

	_, err = tr.Submit(ctx, "tenant-a", aijob.JobTypeReview, nil, func(ctx context.Context) (json.RawMessage, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrTrackerClosed)
}
