package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/aggregation/jobs"
	"github.com/structhub/asset-ingest/internal/config"
	"github.com/structhub/asset-ingest/internal/events"
	"github.com/structhub/asset-ingest/internal/service"
	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/pkg/log"
)

var (
	ingestOrgID        string
	ingestUploadID     string
	ingestSubProjectID string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest PROJECT_ID WORKBOOK",
	Short: "Ingest a workbook into a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid project id %q: %w", args[0], err)
		}

		var subProjectID *uuid.UUID
		if ingestSubProjectID != "" {
			id, err := uuid.Parse(ingestSubProjectID)
			if err != nil {
				return fmt.Errorf("invalid sub-project id %q: %w", ingestSubProjectID, err)
			}
			subProjectID = &id
		}

		content, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		uploadID := ingestUploadID
		if uploadID == "" {
			uploadID = filepath.Base(args[1])
		}

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

		session, err := uploadService.IngestWorkbook(cmd.Context(), projectID, subProjectID,
			ingestOrgID, uploadID, content, cfg.Service.BatchSize)
		if err != nil {
			return err
		}

		fmt.Printf("session %s finished as %s: %d/%d batches succeeded, %d elements, %d jobs, %d duplicates skipped\n",
			session.ID,
			session.Status,
			session.Summary.Data.SuccessfulBatches,
			session.TotalBatches,
			session.Summary.Data.TotalElements,
			session.Summary.Data.TotalJobs,
			session.Summary.Data.DuplicatesSkipped,
		)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestOrgID, "org", "internal", "organization owning the upload")
	ingestCmd.Flags().StringVar(&ingestUploadID, "upload-id", "", "client-chosen upload id, defaults to the workbook file name")
	ingestCmd.Flags().StringVar(&ingestSubProjectID, "sub-project", "", "sub-project receiving the elements")
}
