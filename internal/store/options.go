package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByCreatedTime
	SortByUpdatedTime
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type UploadSessionQueryFilter BaseQuerier

func NewUploadSessionQueryFilter() *UploadSessionQueryFilter {
	return &UploadSessionQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *UploadSessionQueryFilter) ByOrgID(orgID string) *UploadSessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("org_id = ?", orgID)
	})
	return qf
}

func (qf *UploadSessionQueryFilter) ByProjectID(projectID uuid.UUID) *UploadSessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("project_id = ?", projectID)
	})
	return qf
}

func (qf *UploadSessionQueryFilter) ByStatus(status string) *UploadSessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

func (qf *UploadSessionQueryFilter) UpdatedBefore(cutoff time.Time) *UploadSessionQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("updated_at < ?", cutoff)
	})
	return qf
}

type ElementQueryFilter BaseQuerier

func NewElementQueryFilter() *ElementQueryFilter {
	return &ElementQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *ElementQueryFilter) ByProjectID(projectID uuid.UUID) *ElementQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("project_id = ?", projectID)
	})
	return qf
}

func (qf *ElementQueryFilter) BySubProjectID(subProjectID uuid.UUID) *ElementQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("sub_project_id = ?", subProjectID)
	})
	return qf
}

func (qf *ElementQueryFilter) ByID(ids []uuid.UUID) *ElementQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id IN ?", ids)
	})
	return qf
}
