package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	SessionStatusPending            = "pending"
	SessionStatusInProgress         = "in_progress"
	SessionStatusCompleted          = "completed"
	SessionStatusFailed             = "failed"
	SessionStatusPartiallyCompleted = "partially_completed"

	BatchStatusPending = "pending"
	BatchStatusSuccess = "success"
	BatchStatusFailed  = "failed"
)

// Batch is one fixed-size chunk of rows within an upload session. Batches are
// embedded in the session document; they are never addressable on their own.
type Batch struct {
	BatchNumber       int         `json:"batch_number"`
	Status            string      `json:"status"`
	ElementsCreated   []uuid.UUID `json:"elements_created"`
	JobsCreated       []uuid.UUID `json:"jobs_created"`
	DuplicatesSkipped int         `json:"duplicates_skipped"`
	ErrorMessage      string      `json:"error_message,omitempty"`
	ErrorDetails      string      `json:"error_details,omitempty"`
}

type SessionSummary struct {
	SuccessfulBatches int `json:"successful_batches"`
	FailedBatches     int `json:"failed_batches"`
	TotalElements     int `json:"total_elements"`
	TotalJobs         int `json:"total_jobs"`
	DuplicatesSkipped int `json:"duplicates_skipped"`
}

type UploadSession struct {
	ID           uuid.UUID  `gorm:"primaryKey;"`
	UploadID     string     `gorm:"not null;uniqueIndex:upload_sessions_org_id_upload_id"`
	OrgID        string     `gorm:"not null;uniqueIndex:upload_sessions_org_id_upload_id;index:upload_sessions_org_id_idx"`
	ProjectID    uuid.UUID  `gorm:"not null;index:upload_sessions_project_id_idx"`
	SubProjectID *uuid.UUID `gorm:"type:TEXT"`
	TotalBatches int        `gorm:"not null"`

	Batches *JSONField[[]Batch]        `gorm:"type:jsonb;not null"`
	Status  string                     `gorm:"not null;default:pending"`
	Summary *JSONField[SessionSummary] `gorm:"type:jsonb"`

	// Version guards concurrent saves between workers and the stall sweeper.
	Version int `gorm:"not null;default:0"`

	CreatedAt   time.Time `gorm:"not null;default:now()"`
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

type UploadSessionList []UploadSession

func (s UploadSession) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}

// NewUploadSession builds a pending session with totalBatches pending batches.
func NewUploadSession(projectID uuid.UUID, subProjectID *uuid.UUID, orgID, uploadID string, totalBatches int) UploadSession {
	batches := make([]Batch, 0, totalBatches)
	for i := 1; i <= totalBatches; i++ {
		batches = append(batches, NewPendingBatch(i))
	}

	return UploadSession{
		ID:           uuid.New(),
		UploadID:     uploadID,
		OrgID:        orgID,
		ProjectID:    projectID,
		SubProjectID: subProjectID,
		TotalBatches: totalBatches,
		Batches:      MakeJSONField(batches),
		Status:       SessionStatusPending,
		Summary:      MakeJSONField(SessionSummary{}),
	}
}

func NewPendingBatch(number int) Batch {
	return Batch{
		BatchNumber:     number,
		Status:          BatchStatusPending,
		ElementsCreated: []uuid.UUID{},
		JobsCreated:     []uuid.UUID{},
	}
}

// Reset returns the batch to pending, discarding created ids and error state.
func (b *Batch) Reset() {
	b.Status = BatchStatusPending
	b.ElementsCreated = []uuid.UUID{}
	b.JobsCreated = []uuid.UUID{}
	b.DuplicatesSkipped = 0
	b.ErrorMessage = ""
	b.ErrorDetails = ""
}

func (b *Batch) MarkSuccess(elements, jobs []uuid.UUID, duplicatesSkipped int) {
	b.Status = BatchStatusSuccess
	b.ElementsCreated = elements
	b.JobsCreated = jobs
	b.DuplicatesSkipped = duplicatesSkipped
	b.ErrorMessage = ""
	b.ErrorDetails = ""
}

func (b *Batch) MarkFailed(message, details string) {
	b.Status = BatchStatusFailed
	b.ElementsCreated = []uuid.UUID{}
	b.JobsCreated = []uuid.UUID{}
	b.ErrorMessage = message
	b.ErrorDetails = details
}

func (s *UploadSession) Batch(number int) *Batch {
	if s.Batches == nil {
		return nil
	}
	for i := range s.Batches.Data {
		if s.Batches.Data[i].BatchNumber == number {
			return &s.Batches.Data[i]
		}
	}
	return nil
}

func (s *UploadSession) FailedBatches() []*Batch {
	failed := []*Batch{}
	if s.Batches == nil {
		return failed
	}
	for i := range s.Batches.Data {
		if s.Batches.Data[i].Status == BatchStatusFailed {
			failed = append(failed, &s.Batches.Data[i])
		}
	}
	return failed
}

// DeriveStatus computes the session status purely from its batches.
func DeriveStatus(batches []Batch) string {
	if len(batches) == 0 {
		return SessionStatusPending
	}

	pending, success, failed := 0, 0, 0
	for _, b := range batches {
		switch b.Status {
		case BatchStatusSuccess:
			success++
		case BatchStatusFailed:
			failed++
		default:
			pending++
		}
	}

	switch {
	case success == len(batches):
		return SessionStatusCompleted
	case failed == len(batches):
		return SessionStatusFailed
	case pending > 0:
		return SessionStatusInProgress
	default:
		return SessionStatusPartiallyCompleted
	}
}

// Recompute rederives summary and status from the batch list. Every mutation
// of a batch must be followed by a Recompute before the session is persisted.
func (s *UploadSession) Recompute() {
	summary := SessionSummary{}
	batches := []Batch{}
	if s.Batches != nil {
		batches = s.Batches.Data
	}

	for _, b := range batches {
		switch b.Status {
		case BatchStatusSuccess:
			summary.SuccessfulBatches++
		case BatchStatusFailed:
			summary.FailedBatches++
		}
		summary.TotalElements += len(b.ElementsCreated)
		summary.TotalJobs += len(b.JobsCreated)
		summary.DuplicatesSkipped += b.DuplicatesSkipped
	}

	s.Summary = MakeJSONField(summary)
	s.Status = DeriveStatus(batches)

	if s.IsTerminal() {
		if s.CompletedAt == nil {
			now := time.Now()
			s.CompletedAt = &now
		}
	} else {
		// a retry reopened the session
		s.CompletedAt = nil
	}
}

func (s *UploadSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusPartiallyCompleted:
		return true
	}
	return false
}
