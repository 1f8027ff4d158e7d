package aijob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/aijob"
)

// JobFunc produces the result of an asynchronous job.
type JobFunc func(ctx context.Context) (json.RawMessage, error)

var ErrTrackerClosed = errors.New("ai job tracker closed")

// Tracker creates tickets and drives them through their lifecycle. Jobs
// submitted with Submit run on a bounded worker pool.
type Tracker struct {
	repo    aijob.Repository
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.RWMutex
	closed  bool
	logger  zerolog.Logger
}

func NewTracker(repo aijob.Repository, workers int, logger zerolog.Logger) *Tracker {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		repo:   repo,
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("service", "aijob").Logger(),
	}
}

// Create persists a new CREATED ticket.
func (t *Tracker) Create(ctx context.Context, tenantID, jobType string, taskID *uuid.UUID) (*aijob.Ticket, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenantId is required")
	}
	if jobType == "" {
		return nil, apperr.Validation("jobType is required")
	}
	ticket := aijob.New(tenantID, jobType, taskID)
	if err := t.repo.Create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (t *Tracker) Get(ctx context.Context, tenantID string, jobID uuid.UUID) (*aijob.Ticket, error) {
	ticket, err := t.repo.GetByID(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if ticket == nil {
		return nil, apperr.NotFound("ai job", jobID.String())
	}
	return ticket, nil
}

func (t *Tracker) Start(ctx context.Context, tenantID string, jobID uuid.UUID) (*aijob.Ticket, error) {
	return t.apply(ctx, tenantID, jobID, func(tk *aijob.Ticket) error { return tk.Start() })
}

func (t *Tracker) Succeed(ctx context.Context, tenantID string, jobID uuid.UUID, result json.RawMessage) (*aijob.Ticket, error) {
	return t.apply(ctx, tenantID, jobID, func(tk *aijob.Ticket) error { return tk.Succeed(result) })
}

func (t *Tracker) Fail(ctx context.Context, tenantID string, jobID uuid.UUID, msg string) (*aijob.Ticket, error) {
	return t.apply(ctx, tenantID, jobID, func(tk *aijob.Ticket) error { return tk.Fail(msg) })
}

// apply mutates a copy of the stored ticket and writes it back only if no
// other writer moved the ticket in between. A lost race is re-validated
// against the winner's state.
func (t *Tracker) apply(ctx context.Context, tenantID string, jobID uuid.UUID, mutate func(*aijob.Ticket) error) (*aijob.Ticket, error) {
	current, err := t.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	ok, err := t.repo.Transition(ctx, next, current.Status)
	if err != nil {
		return nil, err
	}
	if ok {
		return next, nil
	}
	latest, err := t.Get(ctx, tenantID, jobID)
	if err != nil {
		return nil, err
	}
	if latest.IsTerminal() {
		return nil, aijob.ErrTerminal
	}
	return nil, aijob.ErrInvalidTransition
}

// Submit creates a ticket and runs fn in the background. The returned ticket
// is the CREATED snapshot; callers poll Get for progress.
func (t *Tracker) Submit(ctx context.Context, tenantID, jobType string, taskID *uuid.UUID, fn JobFunc) (*aijob.Ticket, error) {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return nil, ErrTrackerClosed
	}
	ticket, err := t.Create(ctx, tenantID, jobType, taskID)
	if err != nil {
		return nil, err
	}
	t.wg.Add(1)
	go t.run(ticket.Clone(), fn)
	return ticket, nil
}

func (t *Tracker) run(ticket *aijob.Ticket, fn JobFunc) {
	defer t.wg.Done()
	log := t.logger.With().Str("tenant_id", ticket.TenantID).Str("job_id", ticket.JobID.String()).Logger()

	if err := t.sem.Acquire(t.ctx, 1); err != nil {
		t.finish(ticket, nil, fmt.Errorf("job not started: %w", err), log)
		return
	}
	defer t.sem.Release(1)

	if _, err := t.Start(context.Background(), ticket.TenantID, ticket.JobID); err != nil {
		log.Error().Err(err).Msg("failed to start ai job")
		t.finish(ticket, nil, fmt.Errorf("job not started: %w", err), log)
		return
	}
	result, err := t.invoke(fn)
	t.finish(ticket, result, err, log)
}

func (t *Tracker) invoke(fn JobFunc) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(t.ctx)
}

func (t *Tracker) finish(ticket *aijob.Ticket, result json.RawMessage, jobErr error, log zerolog.Logger) {
	// Final writes must land even after Close cancelled the pool context.
	ctx := context.Background()
	if jobErr != nil {
		if _, err := t.Fail(ctx, ticket.TenantID, ticket.JobID, jobErr.Error()); err != nil {
			log.Error().Err(err).Msg("failed to record ai job failure")
			return
		}
		log.Warn().Err(jobErr).Msg("ai job failed")
		return
	}
	if _, err := t.Succeed(ctx, ticket.TenantID, ticket.JobID, result); err != nil {
		log.Error().Err(err).Msg("failed to record ai job result")
		return
	}
	log.Info().Msg("ai job succeeded")
}

// Wait blocks until every submitted job has reached a terminal state.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close stops accepting jobs, cancels queued and running ones and waits for
// them to settle.
func (t *Tracker) Close() {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()
	t.cancel()
	t.wg.Wait()
}
