package housekeeping

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronLogger adapts zerolog.Logger to cron.Logger
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Scheduler runs housekeeping on a fixed interval.
type Scheduler struct {
	svc      *Service
	cron     *cron.Cron
	interval time.Duration
	logger   zerolog.Logger
}

func NewScheduler(svc *Service, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	cl := cronLogger{logger: logger.With().Str("component", "cron").Logger()}
	return &Scheduler{
		svc:      svc,
		cron:     cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		interval: interval,
		logger:   logger.With().Str("service", "housekeeping").Logger(),
	}
}

// Run schedules housekeeping and blocks until ctx is done, then waits for a
// pass in progress to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		if _, err := s.svc.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("housekeeping failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule housekeeping: %w", err)
	}
	s.logger.Info().Dur("interval", s.interval).Msg("housekeeping scheduled")
	s.cron.Start()

	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}
