package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/pkg/metrics"
)

// UnitOfWork wraps the creation of one row-group (elements plus their jobs)
// in a single transaction. Created ids are tracked for accounting only; the
// transaction itself is the rollback mechanism.
type UnitOfWork struct {
	ctx             context.Context
	createdElements []uuid.UUID
	createdJobs     []uuid.UUID
	done            bool
}

type TransactionalWriter struct {
	store store.Store
}

func NewTransactionalWriter(s store.Store) *TransactionalWriter {
	return &TransactionalWriter{store: s}
}

// Begin opens the transaction scope. Callers must arrange for Close to run on
// every exit path.
func (w *TransactionalWriter) Begin(ctx context.Context) (*UnitOfWork, error) {
	txCtx, err := w.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, NewErrTransaction(err)
	}
	return &UnitOfWork{
		ctx:             txCtx,
		createdElements: []uuid.UUID{},
		createdJobs:     []uuid.UUID{},
	}, nil
}

// Context returns the transaction-carrying context. All store calls belonging
// to this unit of work must go through it.
func (u *UnitOfWork) Context() context.Context {
	return u.ctx
}

func (u *UnitOfWork) TrackElement(id uuid.UUID) {
	u.createdElements = append(u.createdElements, id)
}

func (u *UnitOfWork) TrackJobs(ids []uuid.UUID) {
	u.createdJobs = append(u.createdJobs, ids...)
}

func (u *UnitOfWork) CreatedElements() []uuid.UUID {
	return u.createdElements
}

func (u *UnitOfWork) CreatedJobs() []uuid.UUID {
	return u.createdJobs
}

// Commit commits the transaction. A commit failure triggers rollback before
// the error is returned, so no partial row-group is ever visible.
func (u *UnitOfWork) Commit() error {
	if u.done {
		return nil
	}
	u.done = true

	ctx, err := store.Commit(u.ctx)
	u.ctx = ctx
	if err != nil {
		_, _ = store.Rollback(u.ctx)
		return NewErrTransaction(err)
	}

	zap.S().Named("writer").Debugf("committed %d elements and %d jobs",
		len(u.createdElements), len(u.createdJobs))
	return nil
}

// Rollback aborts the transaction, discarding all writes made under it.
func (u *UnitOfWork) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true

	ctx, err := store.Rollback(u.ctx)
	u.ctx = ctx
	if err != nil {
		return NewErrTransaction(err)
	}
	return nil
}

// Close releases the transaction resource. It is safe to call on every exit
// path; a unit of work that was neither committed nor rolled back is rolled
// back here.
func (u *UnitOfWork) Close() {
	if u.done {
		return
	}
	if err := u.Rollback(); err != nil {
		zap.S().Named("writer").Errorf("failed to release transaction: %s", err)
	}
}

// OrphanSweepResult reports what a crash-recovery pass actually removed.
type OrphanSweepResult struct {
	ElementsDeleted int64
	JobsDeleted     int64
}

// OrphanSweep deletes elements created after the cutoff that declare a
// workflow but own zero jobs, then jobs whose owning element is gone. Not
// every code path wraps both writes in one transaction scope, so this pass
// runs on demand or at startup to clean up after crashed workers.
func (w *TransactionalWriter) OrphanSweep(ctx context.Context, since time.Time) (OrphanSweepResult, error) {
	result := OrphanSweepResult{}

	orphans, err := w.store.Element().ListOrphaned(ctx, since)
	if err != nil {
		return result, err
	}

	if len(orphans) > 0 {
		ids := make([]uuid.UUID, 0, len(orphans))
		for _, e := range orphans {
			ids = append(ids, e.ID)
		}
		deleted, err := w.store.Element().DeleteByIDs(ctx, ids)
		if err != nil {
			return result, err
		}
		result.ElementsDeleted = deleted
		zap.S().Named("writer").Infof("orphan sweep removed %d elements without jobs", deleted)
	}

	jobsDeleted, err := w.store.Job().DeleteWithoutElement(ctx)
	if err != nil {
		return result, err
	}
	result.JobsDeleted = jobsDeleted

	metrics.AddOrphansDeletedMetric(int(result.ElementsDeleted + result.JobsDeleted))
	return result, nil
}
