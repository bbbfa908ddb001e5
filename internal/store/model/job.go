package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusOpen       = "open"
	JobStatusInProgress = "in_progress"
	JobStatusDone       = "done"
)

// Job is one ordered step of a named workflow attached to an element. Its
// lifecycle is independent of the batch and session that created it.
type Job struct {
	ID           uuid.UUID  `gorm:"primaryKey;"`
	Title        string     `gorm:"not null"`
	ElementID    uuid.UUID  `gorm:"not null;index:jobs_element_id_idx"`
	ProjectID    uuid.UUID  `gorm:"not null;index:jobs_project_id_idx"`
	SubProjectID *uuid.UUID `gorm:"type:TEXT"`
	OrgID        string     `gorm:"not null"`

	// OrderIndex is a sparse key: template steps sit at multiples of 100 so
	// manual insertion between two steps never renumbers its neighbours.
	OrderIndex int    `gorm:"not null"`
	Status     string `gorm:"not null;default:open"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
