package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/structhub/asset-ingest/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Project interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Project, error)
	Create(ctx context.Context, project model.Project) (*model.Project, error)
	IncrementElementCount(ctx context.Context, id uuid.UUID, delta int) error
	UpdateStats(ctx context.Context, id uuid.UUID, stats model.ProjectStats) error
	GetSubProject(ctx context.Context, id uuid.UUID) (*model.SubProject, error)
	CreateSubProject(ctx context.Context, subProject model.SubProject) (*model.SubProject, error)
	IncrementSubProjectElementCount(ctx context.Context, id uuid.UUID, delta int) error
	UpdateSubProjectStats(ctx context.Context, id uuid.UUID, stats model.ProjectStats) error
}

type ProjectStore struct {
	db *gorm.DB
}

// Make sure we conform to Project interface
var _ Project = (*ProjectStore)(nil)

func NewProjectStore(db *gorm.DB) Project {
	return &ProjectStore{db: db}
}

func (p *ProjectStore) Get(ctx context.Context, id uuid.UUID) (*model.Project, error) {
	var project model.Project
	result := p.getDB(ctx).First(&project, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &project, nil
}

func (p *ProjectStore) Create(ctx context.Context, project model.Project) (*model.Project, error) {
	result := p.getDB(ctx).Clauses(clause.Returning{}).Create(&project)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &project, nil
}

// IncrementElementCount moves the denormalized counter by a relative delta.
// Absolute writes are forbidden here: multiple batches mutate the counter
// concurrently and the increments must interleave safely.
func (p *ProjectStore) IncrementElementCount(ctx context.Context, id uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	result := p.getDB(ctx).Model(&model.Project{}).
		Where("id = ?", id).
		UpdateColumn("element_count", gorm.Expr("element_count + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *ProjectStore) UpdateStats(ctx context.Context, id uuid.UUID, stats model.ProjectStats) error {
	result := p.getDB(ctx).Model(&model.Project{}).
		Where("id = ?", id).
		Update("stats", model.MakeJSONField(stats))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *ProjectStore) GetSubProject(ctx context.Context, id uuid.UUID) (*model.SubProject, error) {
	var subProject model.SubProject
	result := p.getDB(ctx).First(&subProject, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &subProject, nil
}

func (p *ProjectStore) CreateSubProject(ctx context.Context, subProject model.SubProject) (*model.SubProject, error) {
	result := p.getDB(ctx).Clauses(clause.Returning{}).Create(&subProject)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &subProject, nil
}

func (p *ProjectStore) IncrementSubProjectElementCount(ctx context.Context, id uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	result := p.getDB(ctx).Model(&model.SubProject{}).
		Where("id = ?", id).
		UpdateColumn("element_count", gorm.Expr("element_count + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *ProjectStore) UpdateSubProjectStats(ctx context.Context, id uuid.UUID, stats model.ProjectStats) error {
	result := p.getDB(ctx).Model(&model.SubProject{}).
		Where("id = ?", id).
		Update("stats", model.MakeJSONField(stats))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *ProjectStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return p.db
}
