package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/structhub/asset-ingest/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Job interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	ListByElement(ctx context.Context, elementID uuid.UUID) (model.JobList, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	UpdateOrderIndexes(ctx context.Context, jobs model.JobList) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	DeleteWithoutElement(ctx context.Context) (int64, error)
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var job model.Job
	result := j.getDB(ctx).First(&job, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

func (j *JobStore) ListByElement(ctx context.Context, elementID uuid.UUID) (model.JobList, error) {
	var jobs model.JobList
	result := j.getDB(ctx).Where("element_id = ?", elementID).Order("order_index").Find(&jobs)
	if result.Error != nil {
		return nil, result.Error
	}
	return jobs, nil
}

func (j *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	result := j.getDB(ctx).Clauses(clause.Returning{}).Create(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &job, nil
}

// UpdateOrderIndexes rewrites the order key of every job in the list. Used by
// the renumbering path when a midpoint interval is exhausted.
func (j *JobStore) UpdateOrderIndexes(ctx context.Context, jobs model.JobList) error {
	db := j.getDB(ctx)
	for i := range jobs {
		result := db.Model(&model.Job{}).
			Where("id = ?", jobs[i].ID).
			Update("order_index", jobs[i].OrderIndex)
		if result.Error != nil {
			return result.Error
		}
	}
	return nil
}

func (j *JobStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := j.getDB(ctx).Unscoped().Where("id IN ?", ids).Delete(&model.Job{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// DeleteWithoutElement removes jobs whose owning element no longer exists.
func (j *JobStore) DeleteWithoutElement(ctx context.Context) (int64, error) {
	result := j.getDB(ctx).Unscoped().
		Where("NOT EXISTS (SELECT 1 FROM elements WHERE elements.id = jobs.element_id)").
		Delete(&model.Job{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return j.db
}
