package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scan-hub/scan-hub/internal/config"
	"github.com/scan-hub/scan-hub/internal/infrastructure/postgres"
)

var (
	cfg    *config.Config
	logger zerolog.Logger

	flagInMemory bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs serve, so it
// accepts the serve flags too.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "scan-hub",
		Short:             "Multi-tenant security scanning control plane",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initServer,
		RunE:              runServe,
	}
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API, executor gateway and housekeeping",
		RunE:  runServe,
	}
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply database migrations and exit",
		RunE:  runMigrate,
	}

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().BoolVar(&flagInMemory, "in-memory", false, "keep all state in process memory instead of Postgres")
	}
	rootCmd.AddCommand(serveCmd, migrateCmd)
	return rootCmd
}

func initServer(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg = loaded
	logger = zerolog.New(os.Stdout).Level(cfg.LogLevel).With().Timestamp().Logger()
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer pool.Close()

	applied, err := postgres.RunMigrations(ctx, pool)
	if err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	logger.Info().Strs("applied", applied).Msg("migrations complete")
	return nil
}
