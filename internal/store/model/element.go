package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Element is the primary record derived from one spreadsheet row.
type Element struct {
	ID           uuid.UUID  `gorm:"primaryKey;"`
	Name         string     `gorm:"not null"`
	ExternalRef  string     `gorm:"not null;uniqueIndex:elements_project_id_external_ref"`
	ProjectID    uuid.UUID  `gorm:"not null;uniqueIndex:elements_project_id_external_ref;index:elements_project_id_idx"`
	SubProjectID *uuid.UUID `gorm:"type:TEXT"`
	OrgID        string     `gorm:"not null"`
	ElementType  string     `gorm:"type:VARCHAR(100)"`
	Workflow     string     `gorm:"type:VARCHAR(100)"`
	Properties   []byte     `gorm:"type:jsonb"`
	Jobs         []Job      `gorm:"constraint:OnDelete:CASCADE;"`
	CreatedAt    time.Time  `gorm:"not null;default:now()"`
	UpdatedAt    time.Time
}

type ElementList []Element

func (e Element) String() string {
	val, _ := json.Marshal(e)
	return string(val)
}
