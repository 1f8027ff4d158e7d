package housekeeping

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/domain/task"
)

const (
	DefaultInterval  = time.Hour
	DefaultRetention = 7 * 24 * time.Hour

	tokenBatch = 500
)

// Result summarizes one housekeeping run.
type Result struct {
	TokensDeleted int `json:"tokensDeleted"`
	TokensFailed  int `json:"tokensFailed"`
	LogsDeleted   int `json:"logsDeleted"`
}

// Service removes expired executor tokens and old task logs.
type Service struct {
	tokens    executor.TokenRepository
	logs      task.LogRepository
	retention time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(tokens executor.TokenRepository, logs task.LogRepository, retention time.Duration, logger zerolog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{
		tokens:    tokens,
		logs:      logs,
		retention: retention,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("service", "housekeeping").Logger(),
	}
}

// Run performs one cleanup pass. Tokens are deleted one at a time; a failed
// delete is logged and skipped so the rest of the batch still goes.
func (s *Service) Run(ctx context.Context) (Result, error) {
	var res Result
	now := s.now()

	expired, err := s.tokens.ListExpired(ctx, now, tokenBatch)
	if err != nil {
		return res, err
	}
	for _, tok := range expired {
		if err := s.tokens.Delete(ctx, tok.TokenID); err != nil {
			res.TokensFailed++
			s.logger.Warn().Err(err).Str("token_id", tok.TokenID.String()).Msg("failed to delete expired executor token")
			continue
		}
		res.TokensDeleted++
	}

	res.LogsDeleted, err = s.logs.DeleteBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return res, err
	}

	s.logger.Info().
		Int("tokens_deleted", res.TokensDeleted).
		Int("tokens_failed", res.TokensFailed).
		Int("logs_deleted", res.LogsDeleted).
		Msg("housekeeping completed")
	return res, nil
}
