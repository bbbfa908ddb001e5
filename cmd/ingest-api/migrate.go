package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/config"
	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/pkg/log"
	"github.com/structhub/asset-ingest/pkg/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the db",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		logLvl, err := zap.ParseAtomicLevel(cfg.Service.LogLevel)
		if err != nil {
			logLvl = zap.NewAtomicLevelAt(zap.InfoLevel)
		}

		logger := log.InitLog(logLvl)
		defer func() { _ = logger.Sync() }()
		undo := zap.ReplaceGlobals(logger)
		defer undo()

		db, err := store.InitDB(cfg)
		if err != nil {
			return err
		}

		s := store.NewStore(db)
		defer s.Close()

		if cfg.Service.MigrationFolder == "" {
			zap.S().Named("migrate").Info("no migration folder configured, running auto-migration")
			return s.InitialMigration()
		}

		pool, err := pgxpool.New(context.Background(), pgxDSN(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()

		return migrations.MigrateStore(db, cfg.Service.MigrationFolder, pool)
	},
}
