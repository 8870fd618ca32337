package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medrelief/internal/config"
	"medrelief/internal/logging"
	"medrelief/internal/repository"
)

func init() {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withRepository(func(repo *repository.Repository) error {
				return repo.MigrateUp()
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Revert all migrations, dropping every table",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withRepository(func(repo *repository.Repository) error {
				return repo.MigrateDown()
			})
		},
	})

	rootCmd.AddCommand(migrateCmd)
}

// withRepository opens the database without automatic migrations.
func withRepository(fn func(repo *repository.Repository) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}
	cfg.AutoMigrateUp = false
	cfg.AutoMigrateDown = false

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	repo, err := repository.NewRepository(nil, &cfg.PostgresConfig, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := repo.Close(); cerr != nil {
			logger.Error("repository closing error", zap.Error(cerr))
		}
	}()

	return fn(repo)
}
