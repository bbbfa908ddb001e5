package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ProjectStats struct {
	TotalElements int            `json:"total_elements"`
	TotalJobs     int            `json:"total_jobs"`
	JobsByStatus  map[string]int `json:"jobs_by_status,omitempty"`
	ComputedAt    time.Time      `json:"computed_at"`
}

type Project struct {
	ID    uuid.UUID `gorm:"primaryKey;"`
	Name  string    `gorm:"not null"`
	OrgID string    `gorm:"not null;index:projects_org_id_idx"`

	// ElementCount is denormalized. It is only ever moved by relative
	// increments so concurrent batches cannot clobber each other.
	ElementCount int `gorm:"not null;default:0"`

	Stats *JSONField[ProjectStats] `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time
}

type SubProject struct {
	ID        uuid.UUID `gorm:"primaryKey;"`
	Name      string    `gorm:"not null"`
	ProjectID uuid.UUID `gorm:"not null;index:sub_projects_project_id_idx"`

	ElementCount int `gorm:"not null;default:0"`

	Stats *JSONField[ProjectStats] `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time
}

type ProjectList []Project

func (p Project) String() string {
	val, _ := json.Marshal(p)
	return string(val)
}
