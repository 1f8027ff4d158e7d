package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/domain/aijob"
)

type ticketKey struct {
	tenantID string
	jobID    uuid.UUID
}

// TicketRepository implements aijob.Repository. Transition compares and
// writes under one lock.
type TicketRepository struct {
	mu      sync.Mutex
	nextID  int64
	tickets map[ticketKey]*aijob.Ticket
}

func NewTicketRepository() *TicketRepository {
	return &TicketRepository{tickets: make(map[ticketKey]*aijob.Ticket)}
}

func (r *TicketRepository) Create(ctx context.Context, ticket *aijob.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ticket.ID = r.nextID
	r.tickets[ticketKey{ticket.TenantID, ticket.JobID}] = ticket.Clone()
	return nil
}

func (r *TicketRepository) GetByID(ctx context.Context, tenantID string, jobID uuid.UUID) (*aijob.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketKey{tenantID, jobID}]
	if !ok {
		return nil, nil
	}
	return t.Clone(), nil
}

func (r *TicketRepository) Transition(ctx context.Context, ticket *aijob.Ticket, from aijob.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ticketKey{ticket.TenantID, ticket.JobID}
	cur, ok := r.tickets[key]
	if !ok || cur.Status != from {
		return false, nil
	}
	r.tickets[key] = ticket.Clone()
	return true, nil
}
