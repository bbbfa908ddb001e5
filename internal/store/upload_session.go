package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/structhub/asset-ingest/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UploadSession interface {
	List(ctx context.Context, filter *UploadSessionQueryFilter) (model.UploadSessionList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.UploadSession, error)
	GetByUploadID(ctx context.Context, orgID, uploadID string) (*model.UploadSession, error)
	Create(ctx context.Context, session model.UploadSession) (*model.UploadSession, error)
	Update(ctx context.Context, session *model.UploadSession) (*model.UploadSession, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type UploadSessionStore struct {
	db *gorm.DB
}

// Make sure we conform to UploadSession interface
var _ UploadSession = (*UploadSessionStore)(nil)

func NewUploadSessionStore(db *gorm.DB) UploadSession {
	return &UploadSessionStore{db: db}
}

func (u *UploadSessionStore) List(ctx context.Context, filter *UploadSessionQueryFilter) (model.UploadSessionList, error) {
	var sessions model.UploadSessionList
	tx := u.getDB(ctx).Model(&sessions).Order("created_at DESC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

func (u *UploadSessionStore) Get(ctx context.Context, id uuid.UUID) (*model.UploadSession, error) {
	var session model.UploadSession
	result := u.getDB(ctx).First(&session, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

func (u *UploadSessionStore) GetByUploadID(ctx context.Context, orgID, uploadID string) (*model.UploadSession, error) {
	var session model.UploadSession
	result := u.getDB(ctx).First(&session, "org_id = ? AND upload_id = ?", orgID, uploadID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

func (u *UploadSessionStore) Create(ctx context.Context, session model.UploadSession) (*model.UploadSession, error) {
	result := u.getDB(ctx).Clauses(clause.Returning{}).Create(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &session, nil
}

// Update persists the whole session document guarded by its version column.
// The write only lands if nobody saved the session since it was read,
// otherwise ErrConcurrentUpdate is returned and the caller must reload.
func (u *UploadSessionStore) Update(ctx context.Context, session *model.UploadSession) (*model.UploadSession, error) {
	previousVersion := session.Version
	session.Version = previousVersion + 1

	result := u.getDB(ctx).Model(&model.UploadSession{}).
		Where("id = ? AND version = ?", session.ID, previousVersion).
		Select("batches", "status", "summary", "version", "completed_at", "updated_at").
		Updates(session)
	if result.Error != nil {
		session.Version = previousVersion
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		session.Version = previousVersion
		return nil, ErrConcurrentUpdate
	}

	return session, nil
}

func (u *UploadSessionStore) Delete(ctx context.Context, id uuid.UUID) error {
	result := u.getDB(ctx).Unscoped().Delete(&model.UploadSession{}, "id = ?", id.String())
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (u *UploadSessionStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return u.db
}
