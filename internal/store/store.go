package store

import (
	"context"

	"github.com/structhub/asset-ingest/internal/store/model"
	"gorm.io/gorm"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	UploadSession() UploadSession
	Element() Element
	Job() Job
	Project() Project
	InitialMigration() error
	Close() error
}

type DataStore struct {
	db            *gorm.DB
	uploadSession UploadSession
	element       Element
	job           Job
	project       Project
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		uploadSession: NewUploadSessionStore(db),
		element:       NewElementStore(db),
		job:           NewJobStore(db),
		project:       NewProjectStore(db),
		db:            db,
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) UploadSession() UploadSession {
	return s.uploadSession
}

func (s *DataStore) Element() Element {
	return s.element
}

func (s *DataStore) Job() Job {
	return s.job
}

func (s *DataStore) Project() Project {
	return s.project
}

func (s *DataStore) InitialMigration() error {
	return s.db.AutoMigrate(
		&model.Project{},
		&model.SubProject{},
		&model.Element{},
		&model.Job{},
		&model.UploadSession{},
	)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
