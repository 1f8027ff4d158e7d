package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	httpapi "github.com/scan-hub/scan-hub/internal/api/http"
	appAIJob "github.com/scan-hub/scan-hub/internal/application/aijob"
	appExecutor "github.com/scan-hub/scan-hub/internal/application/executor"
	"github.com/scan-hub/scan-hub/internal/application/housekeeping"
	appReview "github.com/scan-hub/scan-hub/internal/application/review"
	appTask "github.com/scan-hub/scan-hub/internal/application/task"
	"github.com/scan-hub/scan-hub/internal/domain/aijob"
	"github.com/scan-hub/scan-hub/internal/domain/engine"
	"github.com/scan-hub/scan-hub/internal/domain/executor"
	"github.com/scan-hub/scan-hub/internal/domain/review"
	"github.com/scan-hub/scan-hub/internal/domain/stage"
	"github.com/scan-hub/scan-hub/internal/domain/task"
	"github.com/scan-hub/scan-hub/internal/infrastructure/connection"
	"github.com/scan-hub/scan-hub/internal/infrastructure/memory"
	"github.com/scan-hub/scan-hub/internal/infrastructure/postgres"
	"github.com/scan-hub/scan-hub/internal/infrastructure/scanner"
	"github.com/scan-hub/scan-hub/internal/infrastructure/sse"
)

type repositories struct {
	executors executor.Repository
	tokens    executor.TokenRepository
	tasks     task.Repository
	logs      task.LogRepository
	stages    stage.Repository
	tickets   aijob.Repository
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, closeRepos, err := openRepositories(ctx)
	if err != nil {
		return err
	}
	defer closeRepos()

	// infrastructure
	sseHub := sse.NewHub()
	defer sseHub.Stop()
	conns := connection.NewRegistry(logger)
	defer conns.Close()
	engines := engine.NewRegistry(scanner.Adapters(scanner.NewExecRunner(cfg.ScanTimeout, logger))...)

	var runner review.Runner = &appReview.DefaultRunner{}
	if cfg.AIReviewServiceURL != "" {
		runner = appReview.NewHTTPRunner(cfg.AIReviewServiceURL, &http.Client{Timeout: 5 * time.Minute})
	}

	// services
	tracker := appAIJob.NewTracker(repos.tickets, cfg.AIReviewWorkers, logger)
	defer tracker.Close()
	executorSvc := appExecutor.NewService(repos.executors, repos.tokens, cfg.ExecutorTokenTTL, logger)
	reviewSvc := appReview.NewService(runner, logger)
	taskSvc := appTask.NewService(repos.tasks, repos.logs, repos.stages, engines, executorSvc, conns,
		tracker, reviewSvc, sseHub, cfg.ScanWorkDir, logger)
	aiReviewSvc := appReview.NewAIReviewService(reviewSvc, tracker, repos.tasks)
	housekeepingSvc := housekeeping.NewService(repos.tokens, repos.logs, cfg.LogRetention, logger)

	// API server
	handshakes := rate.NewLimiter(rate.Limit(cfg.HandshakeRate), cfg.HandshakeBurst)
	apiServer := httpapi.NewServer(executorSvc, taskSvc, aiReviewSvc, engines, conns, sseHub, handshakes, logger)
	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.ServerAddr).Strs("engines", engines.IDs()).Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return housekeeping.NewScheduler(housekeepingSvc, cfg.HousekeepingInterval, logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Hijacked executor sockets are not tracked by Shutdown.
		conns.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info().Msg("server stopped")
	return err
}

func openRepositories(ctx context.Context) (*repositories, func(), error) {
	if flagInMemory {
		logger.Warn().Msg("running with in-memory state; nothing survives a restart")
		return &repositories{
			executors: memory.NewExecutorRepository(),
			tokens:    memory.NewTokenRepository(),
			tasks:     memory.NewTaskRepository(),
			logs:      memory.NewLogRepository(),
			stages:    memory.NewStageRepository(),
			tickets:   memory.NewTicketRepository(),
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("db error: %w", err)
	}
	applied, err := postgres.RunMigrations(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	if len(applied) > 0 {
		logger.Info().Strs("applied", applied).Msg("migrations applied")
	}
	return &repositories{
		executors: postgres.NewExecutorRepository(pool),
		tokens:    postgres.NewTokenRepository(pool),
		tasks:     postgres.NewTaskRepository(pool),
		logs:      postgres.NewTaskLogRepository(pool),
		stages:    postgres.NewStageRepository(pool),
		tickets:   postgres.NewTicketRepository(pool),
	}, pool.Close, nil
}
