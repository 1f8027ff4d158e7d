package review

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/scan-hub/scan-hub/internal/apperr"
	"github.com/scan-hub/scan-hub/internal/domain/review"
	"github.com/scan-hub/scan-hub/internal/domain/stage"
)

// Service is the boundary in front of the AI review stage runner.
type Service struct {
	runner review.Runner
	logger zerolog.Logger
}

func NewService(runner review.Runner, logger zerolog.Logger) *Service {
	return &Service{
		runner: runner,
		logger: logger.With().Str("service", "review").Logger(),
	}
}

// Review normalizes in and runs a review stage under a freshly minted stage
// ID. The runner's summary is returned as is.
func (s *Service) Review(ctx context.Context, tenantID string, taskID uuid.UUID, in review.Input) (*stage.Summary, error) {
	if tenantID == "" {
		return nil, apperr.Validation("tenantId is required")
	}
	stageID := uuid.New()
	req := review.Normalize(in)

	s.logger.Debug().
		Str("tenant_id", tenantID).
		Str("task_id", taskID.String()).
		Str("stage_id", stageID.String()).
		Str("mode", req.AIReviewMode).
		Msg("running ai review stage")

	summary, err := s.runner.Run(ctx, tenantID, taskID, stageID, req)
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", taskID.String()).Msg("ai review stage failed")
		return nil, err
	}
	return summary, nil
}
