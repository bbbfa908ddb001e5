package events

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Emitter adapts the producer to the ingestion lifecycle. Calls return after
// buffering; they never block a batch's completion path.
type Emitter struct {
	producer *EventProducer
}

func NewEmitter(producer *EventProducer) *Emitter {
	return &Emitter{producer: producer}
}

func (e *Emitter) WriteBatchCompleted(ctx context.Context, sessionID uuid.UUID, batchNumber int, status string) {
	e.write(ctx, BatchMessageKind, BatchCompletedEvent{
		SessionID:   sessionID,
		BatchNumber: batchNumber,
		Status:      status,
		CompletedAt: time.Now(),
	})
}

func (e *Emitter) WriteSessionCompleted(ctx context.Context, sessionID uuid.UUID, status string) {
	e.write(ctx, SessionMessageKind, SessionCompletedEvent{
		SessionID:   sessionID,
		Status:      status,
		CompletedAt: time.Now(),
	})
}

func (e *Emitter) write(ctx context.Context, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		zap.S().Named("events").Errorf("failed to marshal %s event: %s", kind, err)
		return
	}
	if err := e.producer.Write(ctx, kind, bytes.NewReader(data)); err != nil {
		zap.S().Named("events").Errorf("failed to buffer %s event: %s", kind, err)
	}
}
