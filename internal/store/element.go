package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/structhub/asset-ingest/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Element interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Element, error)
	List(ctx context.Context, filter *ElementQueryFilter) (model.ElementList, error)
	Create(ctx context.Context, element model.Element) (*model.Element, error)
	ExistsByExternalRef(ctx context.Context, projectID uuid.UUID, externalRef string) (bool, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
	ListOrphaned(ctx context.Context, since time.Time) (model.ElementList, error)
}

type ElementStore struct {
	db *gorm.DB
}

// Make sure we conform to Element interface
var _ Element = (*ElementStore)(nil)

func NewElementStore(db *gorm.DB) Element {
	return &ElementStore{db: db}
}

func (e *ElementStore) Get(ctx context.Context, id uuid.UUID) (*model.Element, error) {
	var element model.Element
	result := e.getDB(ctx).First(&element, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &element, nil
}

func (e *ElementStore) List(ctx context.Context, filter *ElementQueryFilter) (model.ElementList, error) {
	var elements model.ElementList
	tx := e.getDB(ctx).Model(&elements).Order("created_at")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Find(&elements)
	if result.Error != nil {
		return nil, result.Error
	}
	return elements, nil
}

func (e *ElementStore) Create(ctx context.Context, element model.Element) (*model.Element, error) {
	result := e.getDB(ctx).Clauses(clause.Returning{}).Create(&element)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &element, nil
}

func (e *ElementStore) ExistsByExternalRef(ctx context.Context, projectID uuid.UUID, externalRef string) (bool, error) {
	var count int64
	result := e.getDB(ctx).Model(&model.Element{}).
		Where("project_id = ? AND external_ref = ?", projectID, externalRef).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// DeleteByIDs removes every element whose id is in the set and returns the
// number of rows actually deleted, which may be less than requested.
func (e *ElementStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := e.getDB(ctx).Unscoped().Where("id IN ?", ids).Delete(&model.Element{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListOrphaned finds elements created after the cutoff that declare a workflow
// but own no jobs. They are evidence of a crash between the element write and
// the job generation.
func (e *ElementStore) ListOrphaned(ctx context.Context, since time.Time) (model.ElementList, error) {
	var elements model.ElementList
	result := e.getDB(ctx).
		Where("workflow <> ''").
		Where("created_at > ?", since).
		Where("NOT EXISTS (SELECT 1 FROM jobs WHERE jobs.element_id = elements.id)").
		Find(&elements)
	if result.Error != nil {
		return nil, result.Error
	}
	return elements, nil
}

func (e *ElementStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return e.db
}
