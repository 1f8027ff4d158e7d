package review

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/scan-hub/scan-hub/internal/apperr"
	appAIJob "github.com/scan-hub/scan-hub/internal/application/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/review"
	"github.com/scan-hub/scan-hub/internal/domain/task"
)

// AIReviewService runs review stages asynchronously behind a job ticket.
type AIReviewService struct {
	reviews *Service
	tracker *appAIJob.Tracker
	tasks   task.Repository
}

func NewAIReviewService(reviews *Service, tracker *appAIJob.Tracker, tasks task.Repository) *AIReviewService {
	return &AIReviewService{reviews: reviews, tracker: tracker, tasks: tasks}
}

// SubmitReview returns a CREATED ticket for a task the tenant owns. The
// ticket's result becomes the stage summary once the review finishes.
func (s *AIReviewService) SubmitReview(ctx context.Context, tenantID string, taskID uuid.UUID, in review.Input) (*aijob.Ticket, error) {
	t, err := s.tasks.GetByID(ctx, tenantID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("task", taskID.String())
	}
	return s.tracker.Submit(ctx, tenantID, aijob.JobTypeReview, &taskID, func(ctx context.Context) (json.RawMessage, error) {
		summary, err := s.reviews.Review(ctx, tenantID, taskID, in)
		if err != nil {
			return nil, err
		}
		return json.Marshal(summary)
	})
}

// Ticket returns the current state of a review ticket.
func (s *AIReviewService) Ticket(ctx context.Context, tenantID string, jobID uuid.UUID) (*aijob.Ticket, error) {
	return s.tracker.Get(ctx, tenantID, jobID)
}
