package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/aggregation/jobs"
	"github.com/structhub/asset-ingest/internal/config"
	"github.com/structhub/asset-ingest/internal/events"
	"github.com/structhub/asset-ingest/internal/service"
	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/sweeper"
	"github.com/structhub/asset-ingest/pkg/log"
	"github.com/structhub/asset-ingest/pkg/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ingestion workers",
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

		zap.S().Named("ingest_api").Info("starting ingestion workers")
		defer zap.S().Named("ingest_api").Info("ingestion workers stopped")

		db, err := store.InitDB(cfg)
		if err != nil {
			return err
		}

		s := store.NewStore(db)
		defer s.Close()

		if err := s.InitialMigration(); err != nil {
			return err
		}

		metrics.RegisterMetrics()

		pool, err := pgxpool.New(context.Background(), pgxDSN(cfg))
		if err != nil {
			return err
		}
		defer pool.Close()

		debounce, err := time.ParseDuration(cfg.Queue.DebounceDelay)
		if err != nil {
			return err
		}

		queueClient, err := jobs.NewClient(pool, s, debounce, cfg.Queue.MaxWorkers)
		if err != nil {
			return err
		}

		producer := events.NewEventProducer(&events.StdoutWriter{},
			events.WithOutputTopic(cfg.Service.EventTopic))
		defer producer.Close()

		uploadService := service.NewUploadService(s, queueClient, events.NewEmitter(producer))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		if err := queueClient.Start(ctx); err != nil {
			return err
		}

		// crash-recovery pass: clean up after workers that died between an
		// element write and its job generation
		go func() {
			result, err := uploadService.RunOrphanSweep(ctx, time.Now().Add(-24*time.Hour))
			if err != nil {
				zap.S().Named("ingest_api").Errorf("orphan sweep failed: %s", err)
				return
			}
			if result.ElementsDeleted > 0 || result.JobsDeleted > 0 {
				zap.S().Named("ingest_api").Infof("orphan sweep removed %d elements and %d jobs",
					result.ElementsDeleted, result.JobsDeleted)
			}
		}()

		interval, err := time.ParseDuration(cfg.Sweeper.Interval)
		if err != nil {
			return err
		}
		stallThreshold, err := time.ParseDuration(cfg.Sweeper.StallThreshold)
		if err != nil {
			return err
		}
		startupDelay, err := time.ParseDuration(cfg.Sweeper.StartupDelay)
		if err != nil {
			return err
		}

		go sweeper.New(s, interval, stallThreshold, startupDelay).Run(ctx)

		<-ctx.Done()

		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		if err := queueClient.Stop(stopCtx); err != nil {
			zap.S().Named("ingest_api").Errorf("failed to drain queue client: %s", err)
		}

		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-orphans",
	Short: "Remove elements without jobs and jobs without elements",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return err
		}

		db, err := store.InitDB(cfg)
		if err != nil {
			return err
		}

		s := store.NewStore(db)
		defer s.Close()

		writer := service.NewTransactionalWriter(s)
		result, err := writer.OrphanSweep(context.Background(), time.Time{})
		if err != nil {
			return err
		}

		fmt.Printf("deleted %d orphaned elements and %d orphaned jobs\n",
			result.ElementsDeleted, result.JobsDeleted)
		return nil
	},
}

func pgxDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s port=%s dbname=%s",
		cfg.Database.Hostname,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Port,
		cfg.Database.Name,
	)
}
