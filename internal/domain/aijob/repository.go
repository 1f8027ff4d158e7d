package aijob

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists tickets. Transition is a compare-and-set: it stores the
// ticket only if the persisted status still equals from, and reports whether
// the write happened.
type Repository interface {
	Create(ctx context.Context, ticket *Ticket) error
	GetByID(ctx context.Context, tenantID string, jobID uuid.UUID) (*Ticket, error)
	Transition(ctx context.Context, ticket *Ticket, from Status) (bool, error)
}
