package events

import (
	"time"

	"github.com/google/uuid"
)

type BatchCompletedEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	BatchNumber int       `json:"batch_number"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}

type SessionCompletedEvent struct {
	SessionID   uuid.UUID `json:"session_id"`
	Status      string    `json:"status"`
	CompletedAt time.Time `json:"completed_at"`
}
