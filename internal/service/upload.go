package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/ingest"
	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
	"github.com/structhub/asset-ingest/internal/workflow"
	"github.com/structhub/asset-ingest/pkg/metrics"
)

// saveRetries bounds the optimistic-concurrency retry loop. The sweeper and
// an active worker may race on the same session document.
const saveRetries = 3

// AggregationScheduler is the queue-facing side of the upload service. Both
// calls return after enqueueing; they never block the completion path.
type AggregationScheduler interface {
	ScheduleProjectStats(ctx context.Context, projectID uuid.UUID)
	ScheduleSubProjectStats(ctx context.Context, subProjectID uuid.UUID)
}

// EventWriter publishes ingestion lifecycle events without blocking.
type EventWriter interface {
	WriteBatchCompleted(ctx context.Context, sessionID uuid.UUID, batchNumber int, status string)
	WriteSessionCompleted(ctx context.Context, sessionID uuid.UUID, status string)
}

type UploadService struct {
	store     store.Store
	writer    *TransactionalWriter
	generator *workflow.Generator
	scheduler AggregationScheduler
	events    EventWriter
	cache     *readCache
}

func NewUploadService(s store.Store, scheduler AggregationScheduler, events EventWriter) *UploadService {
	return &UploadService{
		store:     s,
		writer:    NewTransactionalWriter(s),
		generator: workflow.NewGenerator(s),
		scheduler: scheduler,
		events:    events,
		cache:     newReadCache(),
	}
}

// CreateSession opens a new ingestion run partitioned into totalBatches
// pending batches. Re-submitting the same uploadID for the org returns the
// existing session instead of failing, to tolerate duplicate submissions.
func (s *UploadService) CreateSession(ctx context.Context, projectID uuid.UUID, subProjectID *uuid.UUID, orgID, uploadID string, totalBatches int) (*model.UploadSession, error) {
	if _, err := s.store.Project().Get(ctx, projectID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrProjectNotFound(projectID)
		}
		return nil, err
	}

	session := model.NewUploadSession(projectID, subProjectID, orgID, uploadID, totalBatches)
	created, err := s.store.UploadSession().Create(ctx, session)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return s.store.UploadSession().GetByUploadID(ctx, orgID, uploadID)
		}
		return nil, err
	}
	return created, nil
}

func (s *UploadService) GetSession(ctx context.Context, id uuid.UUID) (*model.UploadSession, error) {
	if cached, found := s.cache.Get(sessionCacheKey(id)); found {
		session := cached.(model.UploadSession)
		return &session, nil
	}

	session, err := s.store.UploadSession().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrSessionNotFound(id)
		}
		return nil, err
	}

	s.cache.Set(sessionCacheKey(id), *session)
	return session, nil
}

func (s *UploadService) ListSessions(ctx context.Context, filter *store.UploadSessionQueryFilter) (model.UploadSessionList, error) {
	return s.store.UploadSession().List(ctx, filter)
}

// ProcessBatch runs one batch of rows through the transactional writer and
// records the outcome on the session. Row failures fail the batch, never the
// session; the transaction guarantees a failed batch leaves no partial
// writes behind.
func (s *UploadService) ProcessBatch(ctx context.Context, sessionID uuid.UUID, batchNumber int, rows []ingest.RawRow) (*model.UploadSession, error) {
	session, err := s.store.UploadSession().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrSessionNotFound(sessionID)
		}
		return nil, err
	}

	batch := session.Batch(batchNumber)
	if batch == nil {
		return nil, NewErrBatchNotFound(sessionID, batchNumber)
	}
	if batch.Status != model.BatchStatusPending {
		return nil, NewErrInvalidBatchState(batchNumber, batch.Status)
	}

	pctx := ingest.ProjectContext{
		ProjectID:    session.ProjectID,
		SubProjectID: session.SubProjectID,
		OrgID:        session.OrgID,
	}

	elements, jobs, duplicates, writeErr := s.writeRowGroup(ctx, pctx, rows)

	session, err = s.updateSession(ctx, sessionID, func(sess *model.UploadSession) error {
		b := sess.Batch(batchNumber)
		if b == nil {
			return NewErrBatchNotFound(sessionID, batchNumber)
		}
		if writeErr != nil {
			b.MarkFailed("batch processing failed", writeErr.Error())
		} else {
			b.MarkSuccess(elements, jobs, duplicates)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if writeErr != nil {
		metrics.IncreaseBatchesProcessedMetric(model.BatchStatusFailed)
		s.events.WriteBatchCompleted(ctx, sessionID, batchNumber, model.BatchStatusFailed)
		s.cache.Invalidate(sessionCacheKey(sessionID))
		return session, nil
	}

	if err := s.store.Project().IncrementElementCount(ctx, session.ProjectID, len(elements)); err != nil {
		zap.S().Named("upload").Errorf("failed to increment element counter for project %s: %s", session.ProjectID, err)
	}
	if session.SubProjectID != nil {
		if err := s.store.Project().IncrementSubProjectElementCount(ctx, *session.SubProjectID, len(elements)); err != nil {
			zap.S().Named("upload").Errorf("failed to increment element counter for sub-project %s: %s", *session.SubProjectID, err)
		}
		s.scheduler.ScheduleSubProjectStats(ctx, *session.SubProjectID)
	}
	s.scheduler.ScheduleProjectStats(ctx, session.ProjectID)

	metrics.IncreaseBatchesProcessedMetric(model.BatchStatusSuccess)
	metrics.AddElementsCreatedMetric(len(elements))
	s.events.WriteBatchCompleted(ctx, sessionID, batchNumber, model.BatchStatusSuccess)
	if session.IsTerminal() {
		s.events.WriteSessionCompleted(ctx, sessionID, session.Status)
	}

	s.cache.Invalidate(sessionCacheKey(sessionID), projectCacheKey(session.ProjectID))
	return session, nil
}

// IngestWorkbook runs a whole workbook through the session pipeline: read the
// rows, chunk them into batches, open the session and process every batch
// still pending. Re-submitting the same uploadID resumes the run where it
// stopped instead of duplicating it.
func (s *UploadService) IngestWorkbook(ctx context.Context, projectID uuid.UUID, subProjectID *uuid.UUID, orgID, uploadID string, content []byte, batchSize int) (*model.UploadSession, error) {
	rows, err := ingest.ReadRows(content)
	if err != nil {
		return nil, NewErrFileCorrupted(err.Error())
	}
	if len(rows) == 0 {
		return nil, NewErrFileCorrupted("workbook has no data rows")
	}

	chunks := ingest.ChunkRows(rows, batchSize)

	session, err := s.CreateSession(ctx, projectID, subProjectID, orgID, uploadID, len(chunks))
	if err != nil {
		return nil, err
	}
	if session.TotalBatches != len(chunks) {
		return nil, NewErrFileCorrupted(fmt.Sprintf("session %s expects %d batches, workbook yields %d",
			session.ID, session.TotalBatches, len(chunks)))
	}

	for i, chunk := range chunks {
		number := i + 1
		if b := session.Batch(number); b == nil || b.Status != model.BatchStatusPending {
			continue
		}
		session, err = s.ProcessBatch(ctx, session.ID, number, chunk)
		if err != nil {
			return session, err
		}
	}

	return session, nil
}

// writeRowGroup creates the batch's elements and jobs under one transaction.
// Any error rolls the whole group back before it propagates.
func (s *UploadService) writeRowGroup(ctx context.Context, pctx ingest.ProjectContext, rows []ingest.RawRow) ([]uuid.UUID, []uuid.UUID, int, error) {
	uow, err := s.writer.Begin(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	defer uow.Close()

	duplicates := 0
	for _, row := range rows {
		element, err := ingest.TransformRow(row, pctx)
		if err != nil {
			_ = uow.Rollback()
			return nil, nil, 0, err
		}

		exists, err := s.store.Element().ExistsByExternalRef(uow.Context(), pctx.ProjectID, element.ExternalRef)
		if err != nil {
			_ = uow.Rollback()
			return nil, nil, 0, err
		}
		if exists {
			duplicates++
			continue
		}

		created, err := s.store.Element().Create(uow.Context(), *element)
		if err != nil {
			_ = uow.Rollback()
			return nil, nil, 0, err
		}
		uow.TrackElement(created.ID)

		jobs, err := s.generator.Generate(uow.Context(), created)
		if err != nil {
			_ = uow.Rollback()
			return nil, nil, 0, err
		}
		uow.TrackJobs(funk.Map(jobs, func(j model.Job) uuid.UUID { return j.ID }).([]uuid.UUID))
	}

	if err := uow.Commit(); err != nil {
		return nil, nil, 0, err
	}

	return uow.CreatedElements(), uow.CreatedJobs(), duplicates, nil
}

// CleanupResult reports what a recovery operation actually changed, not what
// was requested.
type CleanupResult struct {
	BatchesReset    int
	ElementsDeleted int64
	JobsDeleted     int64
}

// CleanupFailedBatches deletes every document referenced by failed batches
// and resets them to pending. Deleting by the recorded id lists is defensive:
// a batch can fail after its transaction committed (e.g. a later step), in
// which case documents do remain.
func (s *UploadService) CleanupFailedBatches(ctx context.Context, sessionID uuid.UUID) (CleanupResult, error) {
	result := CleanupResult{}

	session, err := s.store.UploadSession().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return result, NewErrSessionNotFound(sessionID)
		}
		return result, err
	}

	failedNumbers := []int{}
	for _, b := range session.FailedBatches() {
		failedNumbers = append(failedNumbers, b.BatchNumber)
	}

	for _, number := range failedNumbers {
		partial, err := s.deleteBatchDocuments(ctx, session, number)
		result.ElementsDeleted += partial.ElementsDeleted
		result.JobsDeleted += partial.JobsDeleted
		if err != nil {
			// the summary already reflects what was actually deleted
			return result, err
		}
		result.BatchesReset++
	}

	if result.BatchesReset > 0 {
		s.cache.Invalidate(sessionCacheKey(sessionID), projectCacheKey(session.ProjectID))
	}
	return result, nil
}

// DeleteBatch unconditionally deletes a batch's created documents regardless
// of its status and resets it to pending. Used for manual correction and as
// the precursor to a single-batch retry.
func (s *UploadService) DeleteBatch(ctx context.Context, sessionID uuid.UUID, batchNumber int) (CleanupResult, error) {
	result := CleanupResult{}

	session, err := s.store.UploadSession().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return result, NewErrSessionNotFound(sessionID)
		}
		return result, err
	}

	if session.Batch(batchNumber) == nil {
		return result, NewErrBatchNotFound(sessionID, batchNumber)
	}

	result, err = s.deleteBatchDocuments(ctx, session, batchNumber)
	if err != nil {
		return result, err
	}

	s.cache.Invalidate(sessionCacheKey(sessionID), projectCacheKey(session.ProjectID))
	return result, nil
}

// deleteBatchDocuments removes the documents recorded on one batch, resets
// the batch to pending and persists the recomputed session. The project
// counter moves by the number of elements actually deleted.
func (s *UploadService) deleteBatchDocuments(ctx context.Context, session *model.UploadSession, batchNumber int) (CleanupResult, error) {
	result := CleanupResult{}

	batch := session.Batch(batchNumber)
	if batch == nil {
		return result, NewErrBatchNotFound(session.ID, batchNumber)
	}

	jobsDeleted, err := s.store.Job().DeleteByIDs(ctx, batch.JobsCreated)
	if err != nil {
		return result, err
	}
	result.JobsDeleted = jobsDeleted

	elementsDeleted, err := s.store.Element().DeleteByIDs(ctx, batch.ElementsCreated)
	if err != nil {
		return result, err
	}
	result.ElementsDeleted = elementsDeleted

	if elementsDeleted > 0 {
		if err := s.store.Project().IncrementElementCount(ctx, session.ProjectID, -int(elementsDeleted)); err != nil {
			zap.S().Named("upload").Errorf("failed to decrement element counter for project %s: %s", session.ProjectID, err)
		}
		if session.SubProjectID != nil {
			if err := s.store.Project().IncrementSubProjectElementCount(ctx, *session.SubProjectID, -int(elementsDeleted)); err != nil {
				zap.S().Named("upload").Errorf("failed to decrement element counter for sub-project %s: %s", *session.SubProjectID, err)
			}
		}
	}

	updated, err := s.updateSession(ctx, session.ID, func(sess *model.UploadSession) error {
		b := sess.Batch(batchNumber)
		if b == nil {
			return NewErrBatchNotFound(sess.ID, batchNumber)
		}
		b.Reset()
		return nil
	})
	if err != nil {
		return result, err
	}

	result.BatchesReset = 1
	*session = *updated
	return result, nil
}

// DeleteResult aggregates what DeleteUploadSession removed.
type DeleteResult struct {
	ElementsDeleted int64
	JobsDeleted     int64
}

// DeleteUploadSession deletes every document referenced by every batch, then
// the session record itself. Destructive and irreversible.
func (s *UploadService) DeleteUploadSession(ctx context.Context, sessionID uuid.UUID) (DeleteResult, error) {
	result := DeleteResult{}

	session, err := s.store.UploadSession().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return result, NewErrSessionNotFound(sessionID)
		}
		return result, err
	}

	elementIDs := []uuid.UUID{}
	jobIDs := []uuid.UUID{}
	for _, b := range session.Batches.Data {
		elementIDs = append(elementIDs, b.ElementsCreated...)
		jobIDs = append(jobIDs, b.JobsCreated...)
	}

	jobsDeleted, err := s.store.Job().DeleteByIDs(ctx, jobIDs)
	if err != nil {
		return result, err
	}
	result.JobsDeleted = jobsDeleted

	elementsDeleted, err := s.store.Element().DeleteByIDs(ctx, elementIDs)
	if err != nil {
		return result, err
	}
	result.ElementsDeleted = elementsDeleted

	if elementsDeleted > 0 {
		if err := s.store.Project().IncrementElementCount(ctx, session.ProjectID, -int(elementsDeleted)); err != nil {
			zap.S().Named("upload").Errorf("failed to decrement element counter for project %s: %s", session.ProjectID, err)
		}
		if session.SubProjectID != nil {
			if err := s.store.Project().IncrementSubProjectElementCount(ctx, *session.SubProjectID, -int(elementsDeleted)); err != nil {
				zap.S().Named("upload").Errorf("failed to decrement element counter for sub-project %s: %s", *session.SubProjectID, err)
			}
		}
	}

	if err := s.store.UploadSession().Delete(ctx, sessionID); err != nil {
		return result, err
	}

	s.cache.Invalidate(sessionCacheKey(sessionID), projectCacheKey(session.ProjectID))
	zap.S().Named("upload").Infof("deleted session %s: %d elements, %d jobs",
		sessionID, result.ElementsDeleted, result.JobsDeleted)
	return result, nil
}

// RetryBatch discards a failed batch's partial state and flags it pending so
// the batch-processing path picks it up again.
func (s *UploadService) RetryBatch(ctx context.Context, sessionID uuid.UUID, batchNumber int) (*model.UploadSession, error) {
	session, err := s.store.UploadSession().Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrSessionNotFound(sessionID)
		}
		return nil, err
	}

	batch := session.Batch(batchNumber)
	if batch == nil {
		return nil, NewErrBatchNotFound(sessionID, batchNumber)
	}
	if batch.Status != model.BatchStatusFailed {
		return nil, NewErrInvalidBatchState(batchNumber, batch.Status)
	}

	if _, err := s.deleteBatchDocuments(ctx, session, batchNumber); err != nil {
		return nil, err
	}

	s.cache.Invalidate(sessionCacheKey(sessionID), projectCacheKey(session.ProjectID))
	return session, nil
}

// RetryFailedBatches resets every failed batch of the session for
// reprocessing. Returns the number of batches reset.
func (s *UploadService) RetryFailedBatches(ctx context.Context, sessionID uuid.UUID) (CleanupResult, error) {
	return s.CleanupFailedBatches(ctx, sessionID)
}

// RunOrphanSweep exposes the writer's crash-recovery pass.
func (s *UploadService) RunOrphanSweep(ctx context.Context, since time.Time) (OrphanSweepResult, error) {
	return s.writer.OrphanSweep(ctx, since)
}

// updateSession applies mutate to a freshly loaded session, recomputes the
// derived summary and status and persists the whole document. On a version
// conflict the session is reloaded and the mutation replayed.
func (s *UploadService) updateSession(ctx context.Context, sessionID uuid.UUID, mutate func(*model.UploadSession) error) (*model.UploadSession, error) {
	var lastErr error

	for attempt := 0; attempt < saveRetries; attempt++ {
		session, err := s.store.UploadSession().Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil, NewErrSessionNotFound(sessionID)
			}
			return nil, err
		}

		if err := mutate(session); err != nil {
			return nil, err
		}
		session.Recompute()

		updated, err := s.store.UploadSession().Update(ctx, session)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrConcurrentUpdate) {
			return nil, err
		}
		lastErr = err
		zap.S().Named("upload").Debugf("session %s version conflict, retrying save", sessionID)
	}

	return nil, lastErr
}
